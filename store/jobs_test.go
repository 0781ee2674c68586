package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/store"
)

func seedParticipant(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreateParticipant(context.Background(), &flow.Participant{
		ID: id, ProjectID: "p-1", Language: "English",
		Status:    flow.ParticipantStatusActive,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}))
}

func insertJob(t *testing.T, s *store.Store, id, participantID, nodeID string, runAt time.Time) {
	t.Helper()
	require.NoError(t, s.InsertJob(context.Background(), &flow.ScheduledJob{
		ID: id, ParticipantID: participantID, NodeID: nodeID,
		RunAt: runAt, Status: flow.JobStatusPending,
		CreatedAt: runAt, UpdatedAt: runAt,
	}))
}

func TestListDueJobsOrderAndCutoff(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-late", "pt-1", "n-poll", base.Add(90*time.Second))
	insertJob(t, s, "j-due2", "pt-1", "n-poll", base.Add(45*time.Second))
	insertJob(t, s, "j-due1", "pt-1", "n-start", base)

	due, err := s.ListDueJobs(ctx, base.Add(60*time.Second), 50)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "j-due1", due[0].ID)
	assert.Equal(t, "j-due2", due[1].ID)

	// Sub-second run times still order correctly under the string
	// comparison thanks to the fixed-width timestamp layout.
	insertJob(t, s, "j-nano", "pt-1", "n-start", base.Add(100*time.Millisecond))
	due, err = s.ListDueJobs(ctx, base.Add(60*time.Second), 50)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "j-due1", due[0].ID)
	assert.Equal(t, "j-nano", due[1].ID)
}

func TestListDueJobsRespectsBatchLimit(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertJob(t, s, string(rune('a'+i)), "pt-1", "n-start", base.Add(time.Duration(i)*time.Second))
	}

	due, err := s.ListDueJobs(context.Background(), base.Add(time.Minute), 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestClaimJobIsExclusive(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-1", "pt-1", "n-start", base)

	claimed, err := s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claimant loses: the job is no longer pending.
	claimed, err = s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	assert.False(t, claimed)

	job, err := s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusRunning, job.Status)
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-1", "pt-1", "n-start", base)

	claimed, err := s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, s.ReleaseJob(ctx, "j-1", base))
	job, err := s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusPending, job.Status)

	claimed, err = s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.MarkJobDone(ctx, "j-1", base))

	job, err = s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusDone, job.Status)

	// Done is terminal: it cannot be claimed again.
	claimed, err = s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestReleaseStaleRunningJobs(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-1", "pt-1", "n-start", base)
	insertJob(t, s, "j-2", "pt-1", "n-poll", base)

	claimed, err := s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	require.True(t, claimed)

	released, err := s.ReleaseStaleRunningJobs(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	job, err := s.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusPending, job.Status)
}

func TestCancelPendingJobsLeavesRunning(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	seedParticipant(t, s, "pt-2")
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-pending", "pt-1", "n-start", base)
	insertJob(t, s, "j-running", "pt-1", "n-poll", base)
	insertJob(t, s, "j-other", "pt-2", "n-start", base)

	claimed, err := s.ClaimJob(ctx, "j-running", base)
	require.NoError(t, err)
	require.True(t, claimed)

	cancelled, err := s.CancelPendingJobs(ctx, "pt-1", base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	job, err := s.GetJob(ctx, "j-pending")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusCancelled, job.Status)

	job, err = s.GetJob(ctx, "j-running")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusRunning, job.Status)

	// Other participants are untouched.
	job, err = s.GetJob(ctx, "j-other")
	require.NoError(t, err)
	assert.Equal(t, flow.JobStatusPending, job.Status)
}

func TestNextPendingRunAt(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	ctx := context.Background()

	next, err := s.NextPendingRunAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-2", "pt-1", "n-poll", base.Add(30*time.Second))
	insertJob(t, s, "j-1", "pt-1", "n-start", base.Add(10*time.Second))

	next, err = s.NextPendingRunAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(base.Add(10*time.Second)))
}

func TestCountJobsByStatus(t *testing.T) {
	s := newTestStore(t)
	seedFixture(t, s)
	seedParticipant(t, s, "pt-1")
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	insertJob(t, s, "j-1", "pt-1", "n-start", base)
	insertJob(t, s, "j-2", "pt-1", "n-poll", base)

	claimed, err := s.ClaimJob(ctx, "j-1", base)
	require.NoError(t, err)
	require.True(t, claimed)

	counts, err := s.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[flow.JobStatusPending])
	assert.Equal(t, 1, counts[flow.JobStatusRunning])
}
