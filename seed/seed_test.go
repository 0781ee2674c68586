package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/candelahq/trellis/flow"
	trellistest "github.com/candelahq/trellis/internal/testing"
	"github.com/candelahq/trellis/seed"
	"github.com/candelahq/trellis/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(trellistest.CreateTestDB(t), zap.NewNop().Sugar())
}

func TestDemoDefinitionsValidate(t *testing.T) {
	for _, def := range []*flow.ProjectDefinition{
		seed.Prototype(),
		seed.IBuy(),
		seed.LongTermDemo(),
	} {
		assert.NoError(t, def.Validate(), "definition %s", def.Project.Name)
	}
}

func TestEnsureDemoProjectsSeedsAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, seed.EnsureDemoProjects(ctx, s))

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)

	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
		count, err := s.CountNodes(ctx, p.ID)
		require.NoError(t, err)
		assert.Positive(t, count, "project %s has no nodes", p.Name)
	}
	assert.Contains(t, names, seed.PrototypeProjectName)
	assert.Contains(t, names, seed.IBuyProjectName)
	assert.Contains(t, names, seed.LongTermDemoProjectName)
}

func TestEnsureDemoProjectsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, seed.EnsureDemoProjects(ctx, s))
	first, err := s.ListProjects(ctx)
	require.NoError(t, err)

	require.NoError(t, seed.EnsureDemoProjects(ctx, s))
	second, err := s.ListProjects(ctx)
	require.NoError(t, err)

	// Same projects, same ids: nothing was re-created.
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestEnsureDemoProjectsRejectsHollowProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A project row with no nodes means a previous seed half-failed or
	// someone created the name by hand; seeding refuses to guess.
	def := seed.Prototype()
	require.NoError(t, s.CreateProject(ctx, &def.Project))

	err := seed.EnsureDemoProjects(ctx, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no nodes")
}

func TestPrototypeGraphShape(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, seed.Apply(ctx, s, seed.Prototype()))

	p, err := s.GetProjectByName(ctx, seed.PrototypeProjectName)
	require.NoError(t, err)

	nodes, err := s.ListNodes(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, 8)

	starts, err := s.ListStartDateNodes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, starts, 1)
	assert.Equal(t, "Node_Start", starts[0].Name)

	keywords, err := s.ListKeywords(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, keywords, 2)

	kw, err := s.FindKeyword(ctx, p.ID, "iexit")
	require.NoError(t, err)
	require.NotNil(t, kw)
	assert.Equal(t, flow.ActionDeactivateParticipant, kw.Action)
	assert.NotEmpty(t, kw.ReferencedNodeID)
}

func TestIBuyBranchConditions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, seed.Apply(ctx, s, seed.IBuy()))

	p, err := s.GetProjectByName(ctx, seed.IBuyProjectName)
	require.NoError(t, err)

	nodes, err := s.ListNodes(ctx, p.ID)
	require.NoError(t, err)

	// Every product recommendation carries a gender and an age condition.
	conditioned := 0
	for _, n := range nodes {
		conditions, err := s.ListNodeConditions(ctx, n.ID)
		require.NoError(t, err)
		if len(conditions) == 2 {
			conditioned++
		}
	}
	assert.Equal(t, 4, conditioned)
}
