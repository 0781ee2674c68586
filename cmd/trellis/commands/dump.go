package commands

import (
	"context"
	"fmt"

	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/store"
)

// The dump document renders a flow definition with references resolved to
// names, so an exported YAML/TOML file reads as the flow's shape rather
// than as a pile of UUIDs.

type definitionDoc struct {
	Project   projectDoc    `toml:"project" yaml:"project"`
	Timings   []timingDoc   `toml:"timings,omitempty" yaml:"timings,omitempty"`
	Variables []variableDoc `toml:"variables,omitempty" yaml:"variables,omitempty"`
	Templates []templateDoc `toml:"templates,omitempty" yaml:"templates,omitempty"`
	Nodes     []nodeDoc     `toml:"nodes,omitempty" yaml:"nodes,omitempty"`
	Keywords  []keywordDoc  `toml:"keywords,omitempty" yaml:"keywords,omitempty"`
}

type projectDoc struct {
	ID          string `toml:"id" yaml:"id"`
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description,omitempty" yaml:"description,omitempty"`
	Status      string `toml:"status" yaml:"status"`
}

type timingDoc struct {
	Name    string `toml:"name" yaml:"name"`
	Days    int    `toml:"days,omitempty" yaml:"days,omitempty"`
	Hours   int    `toml:"hours,omitempty" yaml:"hours,omitempty"`
	Minutes int    `toml:"minutes,omitempty" yaml:"minutes,omitempty"`
	Seconds int    `toml:"seconds,omitempty" yaml:"seconds,omitempty"`
}

type variableDoc struct {
	Name     string `toml:"name" yaml:"name"`
	Type     string `toml:"type" yaml:"type"`
	IsSystem bool   `toml:"is_system,omitempty" yaml:"is_system,omitempty"`
}

type templateDoc struct {
	Name      string   `toml:"name" yaml:"name"`
	Type      string   `toml:"type" yaml:"type"`
	TextEN    string   `toml:"text_en,omitempty" yaml:"text_en,omitempty"`
	TextES    string   `toml:"text_es,omitempty" yaml:"text_es,omitempty"`
	Variable  string   `toml:"variable,omitempty" yaml:"variable,omitempty"`
	ChoicesEN []string `toml:"choices_en,omitempty" yaml:"choices_en,omitempty"`
	ChoicesES []string `toml:"choices_es,omitempty" yaml:"choices_es,omitempty"`
}

type nodeDoc struct {
	Name       string         `toml:"name" yaml:"name"`
	Template   string         `toml:"template" yaml:"template"`
	Timing     string         `toml:"timing,omitempty" yaml:"timing,omitempty"`
	Terminal   bool           `toml:"terminal,omitempty" yaml:"terminal,omitempty"`
	Activation activationDoc  `toml:"activation" yaml:"activation"`
	Conditions []conditionDoc `toml:"conditions,omitempty" yaml:"conditions,omitempty"`
}

type activationDoc struct {
	Type     string `toml:"type" yaml:"type"`
	Node     string `toml:"node,omitempty" yaml:"node,omitempty"`
	Template string `toml:"template,omitempty" yaml:"template,omitempty"`
	Variable string `toml:"variable,omitempty" yaml:"variable,omitempty"`
}

type conditionDoc struct {
	Variable string `toml:"variable" yaml:"variable"`
	Op       string `toml:"op" yaml:"op"`
	Expected string `toml:"expected" yaml:"expected"`
}

type keywordDoc struct {
	Keyword        string `toml:"keyword" yaml:"keyword"`
	Action         string `toml:"action" yaml:"action"`
	ReferencedNode string `toml:"referenced_node,omitempty" yaml:"referenced_node,omitempty"`
}

// buildDefinitionDoc loads a project's full definition and resolves every
// cross-reference to its display name.
func buildDefinitionDoc(ctx context.Context, s *store.Store, project *flow.Project) (*definitionDoc, error) {
	doc := &definitionDoc{Project: projectDoc{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		Status:      string(project.Status),
	}}

	timings, err := s.ListTimingElements(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	timingNames := make(map[string]string, len(timings))
	for _, t := range timings {
		timingNames[t.ID] = t.Name
		doc.Timings = append(doc.Timings, timingDoc{
			Name: t.Name, Days: t.Days, Hours: t.Hours, Minutes: t.Minutes, Seconds: t.Seconds,
		})
	}

	variables, err := s.ListVariables(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	variableNames := make(map[string]string, len(variables))
	for _, v := range variables {
		variableNames[v.ID] = v.Name
		doc.Variables = append(doc.Variables, variableDoc{
			Name: v.Name, Type: string(v.Type), IsSystem: v.IsSystem,
		})
	}

	templates, err := s.ListMessageTemplates(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	templateNames := make(map[string]string, len(templates))
	for _, t := range templates {
		templateNames[t.ID] = t.Name
		doc.Templates = append(doc.Templates, templateDoc{
			Name:      t.Name,
			Type:      string(t.Type),
			TextEN:    t.TextEN,
			TextES:    t.TextES,
			Variable:  variableNames[t.VariableID],
			ChoicesEN: t.ChoicesEN,
			ChoicesES: t.ChoicesES,
		})
	}

	nodes, err := s.ListNodes(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	nodeNames := make(map[string]string, len(nodes))
	for _, n := range nodes {
		nodeNames[n.ID] = n.Name
	}
	for i := range nodes {
		n := &nodes[i]
		typ, sourceNodeID, pollTemplateID, dateTimeVarID, startDateVarID := flow.EncodeActivation(n.Activation)
		nd := nodeDoc{
			Name:     n.Name,
			Template: templateNames[n.MessageTemplateID],
			Timing:   timingNames[n.ScheduleTimingID],
			Terminal: n.IsTerminal,
			Activation: activationDoc{
				Type:     string(typ),
				Node:     nodeNames[sourceNodeID],
				Template: templateNames[pollTemplateID],
				Variable: variableNames[dateTimeVarID] + variableNames[startDateVarID],
			},
		}

		conditions, err := s.ListNodeConditions(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range conditions {
			nd.Conditions = append(nd.Conditions, conditionDoc{
				Variable: variableNames[c.VariableID],
				Op:       string(c.Operation),
				Expected: c.ExpectedAnswer,
			})
		}
		doc.Nodes = append(doc.Nodes, nd)
	}

	keywords, err := s.ListKeywords(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	for _, k := range keywords {
		doc.Keywords = append(doc.Keywords, keywordDoc{
			Keyword:        k.KeywordText,
			Action:         string(k.Action),
			ReferencedNode: nodeNames[k.ReferencedNodeID],
		})
	}
	return doc, nil
}

// dumpDefinition prints a project definition in the given format
func dumpDefinition(ctx context.Context, s *store.Store, project *flow.Project, format string) error {
	doc, err := buildDefinitionDoc(ctx, s, project)
	if err != nil {
		return err
	}
	raw, err := marshalAs(doc, format)
	if err != nil {
		return err
	}
	fmt.Print(string(raw))
	return nil
}
