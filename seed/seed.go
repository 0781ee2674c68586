// Package seed builds and persists the demo protocol definitions: the
// Prototype flow, the iBuy keyword flow, and the Long-term Demo. Seeding
// is idempotent per project name, and every definition passes flow
// validation before a row is written.
package seed

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/store"
)

// Demo project names, used as idempotency keys
const (
	PrototypeProjectName    = "Prototype"
	IBuyProjectName         = "iBuy Flow"
	LongTermDemoProjectName = "Long-term Demo"
)

type definitionBuilder struct {
	name  string
	build func() *flow.ProjectDefinition
}

func demoBuilders() []definitionBuilder {
	return []definitionBuilder{
		{PrototypeProjectName, Prototype},
		{IBuyProjectName, IBuy},
		{LongTermDemoProjectName, LongTermDemo},
	}
}

// EnsureDemoProjects seeds each demo project that does not exist yet.
// Called by `trellis serve` at startup and by `trellis seed`.
func EnsureDemoProjects(ctx context.Context, s *store.Store) error {
	return ensure(ctx, s, demoBuilders())
}

// EnsureProject seeds a single demo project by name
func EnsureProject(ctx context.Context, s *store.Store, name string) error {
	for _, b := range demoBuilders() {
		if b.name == name {
			return ensure(ctx, s, []definitionBuilder{b})
		}
	}
	return errors.NewNotFoundError("no demo project named %q", name)
}

func ensure(ctx context.Context, s *store.Store, builders []definitionBuilder) error {
	log := logger.ComponentLogger("seed")
	for _, b := range builders {
		seeded, err := ensureOne(ctx, s, log, b)
		if err != nil {
			return errors.Wrapf(err, "failed to seed project %q", b.name)
		}
		if seeded {
			log.Infow("Project seeded", "project", b.name)
		}
	}
	return nil
}

func ensureOne(ctx context.Context, s *store.Store, log *zap.SugaredLogger, b definitionBuilder) (bool, error) {
	existing, err := s.GetProjectByName(ctx, b.name)
	switch {
	case errors.IsNotFoundError(err):
		// Fall through to seeding.
	case err != nil:
		return false, err
	default:
		count, err := s.CountNodes(ctx, existing.ID)
		if err != nil {
			return false, err
		}
		if count > 0 {
			log.Debugw("Project already seeded", "project", b.name)
			return false, nil
		}
		return false, errors.Newf("project %q exists but has no nodes; delete it and reseed", b.name)
	}

	return true, Apply(ctx, s, b.build())
}

// Apply validates and persists one definition in a single transaction
func Apply(ctx context.Context, s *store.Store, def *flow.ProjectDefinition) error {
	return s.WithTx(ctx, func(q *store.Queries) error {
		return q.InsertDefinition(ctx, def)
	})
}

// builder accumulates a project definition with generated ids
type builder struct {
	def *flow.ProjectDefinition
}

func newBuilder(name, description string) *builder {
	now := time.Now().UTC()
	return &builder{def: &flow.ProjectDefinition{
		Project: flow.Project{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			Status:      flow.ProjectStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}}
}

func (b *builder) timing(name string, days, hours, minutes, seconds int) string {
	id := uuid.NewString()
	b.def.Timings = append(b.def.Timings, flow.TimingElement{
		ID:        id,
		ProjectID: b.def.Project.ID,
		Name:      name,
		Direction: flow.TimingDirectionAfter,
		Days:      days,
		Hours:     hours,
		Minutes:   minutes,
		Seconds:   seconds,
	})
	return id
}

func (b *builder) variable(name string, typ flow.VariableType, isSystem bool) string {
	id := uuid.NewString()
	b.def.Variables = append(b.def.Variables, flow.Variable{
		ID:        id,
		ProjectID: b.def.Project.ID,
		Name:      name,
		Type:      typ,
		Source:    "internal",
		IsSystem:  isSystem,
	})
	return id
}

func (b *builder) broadcast(name, textEN, textES string) string {
	id := uuid.NewString()
	b.def.Templates = append(b.def.Templates, flow.MessageTemplate{
		ID:        id,
		ProjectID: b.def.Project.ID,
		Type:      flow.TemplateTypeBroadcast,
		Name:      name,
		TextEN:    textEN,
		TextES:    textES,
	})
	return id
}

func (b *builder) poll(name, textEN, textES, variableID string, choicesEN, choicesES []string) string {
	id := uuid.NewString()
	b.def.Templates = append(b.def.Templates, flow.MessageTemplate{
		ID:         id,
		ProjectID:  b.def.Project.ID,
		Type:       flow.TemplateTypePoll,
		Name:       name,
		TextEN:     textEN,
		TextES:     textES,
		VariableID: variableID,
		ChoicesEN:  choicesEN,
		ChoicesES:  choicesES,
	})
	return id
}

func (b *builder) node(name, templateID, timingID string, isTerminal bool, activation flow.Activation) string {
	id := uuid.NewString()
	b.def.Nodes = append(b.def.Nodes, flow.Node{
		ID:                id,
		ProjectID:         b.def.Project.ID,
		Name:              name,
		IsTerminal:        isTerminal,
		ScheduleTimingID:  timingID,
		MessageTemplateID: templateID,
		Activation:        activation,
	})
	return id
}

func (b *builder) condition(nodeID, variableID string, op flow.ConditionOp, expected string) {
	b.def.Conditions = append(b.def.Conditions, flow.NodeCondition{
		ID:             uuid.NewString(),
		NodeID:         nodeID,
		VariableID:     variableID,
		Operation:      op,
		ExpectedAnswer: expected,
	})
}

func (b *builder) keyword(name, text string, action flow.KeywordAction, referencedNodeID, referencedVariableID string) {
	b.def.Keywords = append(b.def.Keywords, flow.Keyword{
		ID:                   uuid.NewString(),
		ProjectID:            b.def.Project.ID,
		Name:                 name,
		KeywordText:          text,
		Language:             "English",
		Action:               action,
		ReferencedNodeID:     referencedNodeID,
		ReferencedVariableID: referencedVariableID,
	})
}

// numericChoices returns ["lo", ..., "hi"] as decimal strings
func numericChoices(lo, hi int) []string {
	choices := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		choices = append(choices, strconv.Itoa(i))
	}
	return choices
}
