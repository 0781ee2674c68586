package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
	trellistest "github.com/candelahq/trellis/internal/testing"
	"github.com/candelahq/trellis/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(trellistest.CreateTestDB(t), zap.NewNop().Sugar())
}

// fixtureDefinition builds a small project with one start node, a poll
// and a conditional follow-up. Used across the store tests.
func fixtureDefinition() *flow.ProjectDefinition {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &flow.ProjectDefinition{
		Project: flow.Project{
			ID: "p-1", Name: "Fixture", Status: flow.ProjectStatusActive,
			CreatedAt: now, UpdatedAt: now,
		},
		Timings: []flow.TimingElement{
			{ID: "tm-0", ProjectID: "p-1", Name: "Instantly", Direction: flow.TimingDirectionAfter},
			{ID: "tm-45", ProjectID: "p-1", Name: "45_Seconds", Direction: flow.TimingDirectionAfter, Seconds: 45},
		},
		Variables: []flow.Variable{
			{ID: "v-start", ProjectID: "p-1", Name: "Start_Date", Type: flow.VariableTypeDateTime, IsSystem: true},
			{ID: "v-answer", ProjectID: "p-1", Name: "Answer_Var", Type: flow.VariableTypeText},
		},
		Templates: []flow.MessageTemplate{
			{ID: "tpl-b", ProjectID: "p-1", Type: flow.TemplateTypeBroadcast, Name: "B1", TextEN: "hello", TextES: "hola"},
			{ID: "tpl-p", ProjectID: "p-1", Type: flow.TemplateTypePoll, Name: "P1", TextEN: "continue?",
				VariableID: "v-answer", ChoicesEN: []string{"Yes", "No"}, ChoicesES: []string{"Sí", "No"}},
		},
		Nodes: []flow.Node{
			{ID: "n-start", ProjectID: "p-1", Name: "Start", MessageTemplateID: "tpl-b",
				ScheduleTimingID: "tm-45", Activation: flow.StartDate{VariableID: "v-start"}},
			{ID: "n-poll", ProjectID: "p-1", Name: "Ask", MessageTemplateID: "tpl-p",
				ScheduleTimingID: "tm-0", Activation: flow.AfterNode{SourceNodeID: "n-start"}},
			{ID: "n-followup", ProjectID: "p-1", Name: "FollowUp", MessageTemplateID: "tpl-b",
				IsTerminal: true, Activation: flow.AfterPoll{SourceTemplateID: "tpl-p"}},
		},
		Conditions: []flow.NodeCondition{
			{ID: "c-1", NodeID: "n-followup", VariableID: "v-answer", Operation: flow.OpEqual, ExpectedAnswer: "yes"},
		},
		Keywords: []flow.Keyword{
			{ID: "k-1", ProjectID: "p-1", Name: "Enroll", KeywordText: "istart",
				Action: flow.ActionActivateParticipant, ReferencedNodeID: "n-start", ReferencedVariableID: "v-start"},
		},
	}
}

func seedFixture(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(q *store.Queries) error {
		return q.InsertDefinition(ctx, fixtureDefinition())
	}))
}

func TestInsertDefinitionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	ctx := context.Background()

	p, err := s.GetProjectByName(ctx, "Fixture")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, flow.ProjectStatusActive, p.Status)

	timings, err := s.ListTimingElements(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, timings, 2)

	tpl, err := s.GetMessageTemplate(ctx, "tpl-p")
	require.NoError(t, err)
	assert.True(t, tpl.IsPoll())
	assert.Equal(t, []string{"Yes", "No"}, tpl.ChoicesEN)
	assert.Equal(t, []string{"Sí", "No"}, tpl.ChoicesES)
	assert.Equal(t, "v-answer", tpl.VariableID)

	nodes, err := s.ListNodes(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}

func TestInsertDefinitionRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := fixtureDefinition()
	def.Nodes[0].MessageTemplateID = "tpl-ghost"

	err := s.WithTx(ctx, func(q *store.Queries) error {
		return q.InsertDefinition(ctx, def)
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidDefinitionError(err))

	// Nothing committed.
	_, err = s.GetProjectByName(ctx, "Fixture")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGetNodeDecodesActivation(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	ctx := context.Background()

	n, err := s.GetNode(ctx, "n-poll")
	require.NoError(t, err)
	act, ok := n.Activation.(flow.AfterNode)
	require.True(t, ok)
	assert.Equal(t, "n-start", act.SourceNodeID)

	n, err = s.GetNode(ctx, "n-start")
	require.NoError(t, err)
	start, ok := n.Activation.(flow.StartDate)
	require.True(t, ok)
	assert.Equal(t, "v-start", start.VariableID)
}

func TestListNodesByActivation(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	ctx := context.Background()

	afterStart, err := s.ListNodesByActivation(ctx, "p-1", flow.ActivationAfterNode, "n-start")
	require.NoError(t, err)
	require.Len(t, afterStart, 1)
	assert.Equal(t, "n-poll", afterStart[0].ID)

	afterPoll, err := s.ListNodesByActivation(ctx, "p-1", flow.ActivationAfterPoll, "tpl-p")
	require.NoError(t, err)
	require.Len(t, afterPoll, 1)
	assert.Equal(t, "n-followup", afterPoll[0].ID)

	startNodes, err := s.ListStartDateNodes(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, startNodes, 1)
	assert.Equal(t, "n-start", startNodes[0].ID)
}

func TestFindKeyword(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	ctx := context.Background()

	kw, err := s.FindKeyword(ctx, "p-1", "istart")
	require.NoError(t, err)
	require.NotNil(t, kw)
	assert.Equal(t, flow.ActionActivateParticipant, kw.Action)
	assert.Equal(t, "n-start", kw.ReferencedNodeID)

	// Missing keywords are nil, not errors: most inbound texts are answers.
	kw, err = s.FindKeyword(ctx, "p-1", "hello there")
	require.NoError(t, err)
	assert.Nil(t, kw)
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
	err := s.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreateParticipant(ctx, &flow.Participant{
			ID: "pt-1", ProjectID: "p-1", Language: "English",
			Status: flow.ParticipantStatusActive, CreatedAt: now,
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.GetParticipant(ctx, "pt-1")
	assert.True(t, errors.IsNotFoundError(err))
}
