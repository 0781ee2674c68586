package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
)

// Scheduled jobs are the durable intent to fire a node for a participant.
// The poller claims them with a conditional update so that even a second
// scheduler instance cannot double-execute a job: the UPDATE's WHERE
// status = 'pending' guard means exactly one claimant sees one affected row.

const jobSelectColumns = `id, participant_id, node_id, run_at, status, created_at, updated_at`

// InsertJob persists a new scheduled job
func (s *Queries) InsertJob(ctx context.Context, j *flow.ScheduledJob) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, participant_id, node_id, run_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ParticipantID, j.NodeID, formatTime(j.RunAt), j.Status,
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
	)
	return errors.Wrap(err, "failed to insert scheduled job")
}

// GetJob retrieves a scheduled job by id
func (s *Queries) GetJob(ctx context.Context, id string) (*flow.ScheduledJob, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobSelectColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get scheduled job")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to get scheduled job")
		}
		return nil, errors.NewNotFoundError("scheduled job not found")
	}
	return scanJob(rows)
}

// ListDueJobs returns up to limit pending jobs with run_at <= now, ordered
// by run_at ascending. This is the poller's per-tick batch.
func (s *Queries) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]flow.ScheduledJob, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobSelectColumns+` FROM scheduled_jobs
		 WHERE status = ? AND run_at <= ?
		 ORDER BY run_at ASC, id ASC
		 LIMIT ?`,
		flow.JobStatusPending, formatTime(now), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ClaimJob transitions a job pending → running. Returns false without
// error when the job was no longer pending (another claimant won, or the
// job was cancelled between listing and claiming).
func (s *Queries) ClaimJob(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		flow.JobStatusRunning, formatTime(now), id, flow.JobStatusPending)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}

// MarkJobDone transitions a running job to its terminal done state
func (s *Queries) MarkJobDone(ctx context.Context, id string, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		flow.JobStatusDone, formatTime(now), id, flow.JobStatusRunning)
	return errors.Wrap(err, "failed to mark job done")
}

// ReleaseJob puts a running job back to pending so the next tick retries it
func (s *Queries) ReleaseJob(ctx context.Context, id string, now time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		flow.JobStatusPending, formatTime(now), id, flow.JobStatusRunning)
	return errors.Wrap(err, "failed to release job")
}

// ReleaseStaleRunningJobs returns every running job to pending. Called once
// at poller startup: a job still marked running was interrupted by a crash,
// and re-claiming it is safe (node execution tolerates the occasional
// duplicate send).
func (s *Queries) ReleaseStaleRunningJobs(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, updated_at = ?
		WHERE status = ?`,
		flow.JobStatusPending, formatTime(now), flow.JobStatusRunning)
	if err != nil {
		return 0, errors.Wrap(err, "failed to release stale running jobs")
	}
	affected, err := result.RowsAffected()
	return affected, errors.Wrap(err, "failed to read affected rows")
}

// CancelPendingJobs flips every pending job for the participant to the
// terminal cancelled state. Running jobs are left to complete; the engine's
// participant-status precondition turns them into no-ops.
func (s *Queries) CancelPendingJobs(ctx context.Context, participantID string, now time.Time) (int64, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, updated_at = ?
		WHERE participant_id = ? AND status = ?`,
		flow.JobStatusCancelled, formatTime(now), participantID, flow.JobStatusPending)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cancel pending jobs")
	}
	affected, err := result.RowsAffected()
	return affected, errors.Wrap(err, "failed to read affected rows")
}

// ListJobsByParticipant returns a participant's jobs ordered by run time
func (s *Queries) ListJobsByParticipant(ctx context.Context, participantID string) ([]flow.ScheduledJob, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+jobSelectColumns+` FROM scheduled_jobs
		 WHERE participant_id = ?
		 ORDER BY run_at ASC, id ASC`, participantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by participant")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// NextPendingRunAt returns the earliest pending run time, or nil when the
// queue is empty. The poller heartbeat reports it.
func (s *Queries) NextPendingRunAt(ctx context.Context) (*time.Time, error) {
	var runAt sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT MIN(run_at) FROM scheduled_jobs WHERE status = ?`,
		flow.JobStatusPending).Scan(&runAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next pending run time")
	}
	if !runAt.Valid || runAt.String == "" {
		return nil, nil
	}
	t, err := parseTime(runAt.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountJobsByStatus returns the job population per status
func (s *Queries) CountJobsByStatus(ctx context.Context) (map[flow.JobStatus]int, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM scheduled_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs by status")
	}
	defer rows.Close()

	counts := make(map[flow.JobStatus]int)
	for rows.Next() {
		var status flow.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}
	return counts, errors.Wrap(rows.Err(), "failed to iterate job counts")
}

func scanJob(rows *sql.Rows) (*flow.ScheduledJob, error) {
	var j flow.ScheduledJob
	var runAt, createdAt, updatedAt string
	if err := rows.Scan(&j.ID, &j.ParticipantID, &j.NodeID, &runAt, &j.Status, &createdAt, &updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to scan scheduled job")
	}
	var err error
	if j.RunAt, err = parseTime(runAt); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]flow.ScheduledJob, error) {
	var jobs []flow.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, errors.Wrap(rows.Err(), "failed to iterate scheduled jobs")
}
