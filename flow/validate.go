package flow

import (
	"strings"

	"github.com/candelahq/trellis/errors"
)

// ProjectDefinition is the full in-memory snapshot of one project's
// protocol, as built by a seed routine before it is persisted. Validate
// enforces the structural rules the engine relies on, so that bad
// definitions are rejected before they ever reach the database.
type ProjectDefinition struct {
	Project    Project
	Timings    []TimingElement
	Variables  []Variable
	Templates  []MessageTemplate
	Nodes      []Node
	Conditions []NodeCondition
	Keywords   []Keyword
}

// Validate checks the definition's structural invariants:
//
//   - timing offsets are non-negative and use the After direction
//     (Before is reserved and rejected here)
//   - node templates and timings belong to the definition
//   - AfterPoll activations reference poll templates
//   - StartDate and AfterDateTimeVar activations reference DateTime variables
//   - conditions reference nodes and variables of the definition
//   - keyword texts are non-empty and lower-case
//
// All violations are reported as ErrInvalidDefinition.
func (d *ProjectDefinition) Validate() error {
	timings := make(map[string]*TimingElement, len(d.Timings))
	for i := range d.Timings {
		t := &d.Timings[i]
		if t.Direction == TimingDirectionBefore {
			return errors.NewInvalidDefinitionError("timing %q: the Before direction is reserved and cannot be seeded", t.Name)
		}
		if t.Direction != TimingDirectionAfter {
			return errors.NewInvalidDefinitionError("timing %q: unknown direction %q", t.Name, t.Direction)
		}
		if t.Days < 0 || t.Hours < 0 || t.Minutes < 0 || t.Seconds < 0 {
			return errors.NewInvalidDefinitionError("timing %q: negative offset component", t.Name)
		}
		timings[t.ID] = t
	}

	variables := make(map[string]*Variable, len(d.Variables))
	for i := range d.Variables {
		v := &d.Variables[i]
		variables[v.ID] = v
	}

	templates := make(map[string]*MessageTemplate, len(d.Templates))
	for i := range d.Templates {
		t := &d.Templates[i]
		if t.Type == TemplateTypePoll {
			if t.VariableID == "" {
				return errors.NewInvalidDefinitionError("poll template %q: no bound variable", t.Name)
			}
			if _, ok := variables[t.VariableID]; !ok {
				return errors.NewInvalidDefinitionError("poll template %q: bound variable %s not in definition", t.Name, t.VariableID)
			}
		}
		templates[t.ID] = t
	}

	nodes := make(map[string]*Node, len(d.Nodes))
	for i := range d.Nodes {
		nodes[d.Nodes[i].ID] = &d.Nodes[i]
	}

	for i := range d.Nodes {
		n := &d.Nodes[i]
		if _, ok := templates[n.MessageTemplateID]; !ok {
			return errors.NewInvalidDefinitionError("node %q: message template %s not in definition", n.Name, n.MessageTemplateID)
		}
		if n.ScheduleTimingID != "" {
			if _, ok := timings[n.ScheduleTimingID]; !ok {
				return errors.NewInvalidDefinitionError("node %q: schedule timing %s not in definition", n.Name, n.ScheduleTimingID)
			}
		}
		if n.Activation == nil {
			return errors.NewInvalidDefinitionError("node %q: no activation", n.Name)
		}
		switch a := n.Activation.(type) {
		case AfterNode:
			if _, ok := nodes[a.SourceNodeID]; !ok {
				return errors.NewInvalidDefinitionError("node %q: after_node source %s not in definition", n.Name, a.SourceNodeID)
			}
		case AfterPoll:
			src, ok := templates[a.SourceTemplateID]
			if !ok {
				return errors.NewInvalidDefinitionError("node %q: after_poll template %s not in definition", n.Name, a.SourceTemplateID)
			}
			if !src.IsPoll() {
				return errors.NewInvalidDefinitionError("node %q: after_poll references %q, which is not a poll", n.Name, src.Name)
			}
		case AfterDateTimeVar:
			v, ok := variables[a.VariableID]
			if !ok {
				return errors.NewInvalidDefinitionError("node %q: after_datetime_var variable %s not in definition", n.Name, a.VariableID)
			}
			if v.Type != VariableTypeDateTime {
				return errors.NewInvalidDefinitionError("node %q: after_datetime_var variable %q has type %s, want datetime", n.Name, v.Name, v.Type)
			}
		case StartDate:
			v, ok := variables[a.VariableID]
			if !ok {
				return errors.NewInvalidDefinitionError("node %q: start_date variable %s not in definition", n.Name, a.VariableID)
			}
			if v.Type != VariableTypeDateTime {
				return errors.NewInvalidDefinitionError("node %q: start_date variable %q has type %s, want datetime", n.Name, v.Name, v.Type)
			}
		}
	}

	for i := range d.Conditions {
		c := &d.Conditions[i]
		if _, ok := nodes[c.NodeID]; !ok {
			return errors.NewInvalidDefinitionError("condition %s: node %s not in definition", c.ID, c.NodeID)
		}
		if _, ok := variables[c.VariableID]; !ok {
			return errors.NewInvalidDefinitionError("condition %s: variable %s not in definition", c.ID, c.VariableID)
		}
		switch c.Operation {
		case OpEqual, OpGT, OpGTE, OpLT, OpLTE, OpIn, OpNotIn:
		default:
			return errors.NewInvalidDefinitionError("condition %s: unknown operation %q", c.ID, c.Operation)
		}
	}

	for i := range d.Keywords {
		k := &d.Keywords[i]
		if k.KeywordText == "" {
			return errors.NewInvalidDefinitionError("keyword %q: empty keyword text", k.Name)
		}
		if k.KeywordText != strings.ToLower(k.KeywordText) {
			return errors.NewInvalidDefinitionError("keyword %q: keyword text %q must be lower-case", k.Name, k.KeywordText)
		}
		switch k.Action {
		case ActionActivateParticipant, ActionDeactivateParticipant, ActionMoveToNode:
		default:
			return errors.NewInvalidDefinitionError("keyword %q: unknown action %q", k.Name, k.Action)
		}
		if k.ReferencedNodeID != "" {
			if _, ok := nodes[k.ReferencedNodeID]; !ok {
				return errors.NewInvalidDefinitionError("keyword %q: referenced node %s not in definition", k.Name, k.ReferencedNodeID)
			}
		}
		if k.ReferencedVariableID != "" {
			if _, ok := variables[k.ReferencedVariableID]; !ok {
				return errors.NewInvalidDefinitionError("keyword %q: referenced variable %s not in definition", k.Name, k.ReferencedVariableID)
			}
		}
	}

	return nil
}
