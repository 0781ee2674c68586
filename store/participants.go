package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
)

// CreateParticipant inserts a participant row
func (s *Queries) CreateParticipant(ctx context.Context, p *flow.Participant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO participants (id, project_id, external_id, language, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, nullString(p.ExternalID), p.Language, p.Status, formatTime(p.CreatedAt),
	)
	return errors.Wrap(err, "failed to create participant")
}

// GetParticipant retrieves a participant by id
func (s *Queries) GetParticipant(ctx context.Context, id string) (*flow.Participant, error) {
	var p flow.Participant
	var createdAt string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, COALESCE(external_id, ''), language, status, created_at
		FROM participants WHERE id = ?`, id).
		Scan(&p.ID, &p.ProjectID, &p.ExternalID, &p.Language, &p.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("participant not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get participant")
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateParticipantStatus flips a participant between active and inactive
func (s *Queries) UpdateParticipantStatus(ctx context.Context, id string, status flow.ParticipantStatus) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE participants SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update participant status")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.NewNotFoundError("participant not found")
	}
	return nil
}

// InsertMessage appends an inbound or outbound participant message
func (s *Queries) InsertMessage(ctx context.Context, m *flow.ParticipantMessage) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO participant_messages (id, participant_id, direction, message_template_id, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ParticipantID, m.Direction, nullString(m.TemplateID), m.Text, formatTime(m.CreatedAt),
	)
	return errors.Wrap(err, "failed to insert participant message")
}

// ListMessages returns a participant's messages ordered by creation time
func (s *Queries) ListMessages(ctx context.Context, participantID string) ([]flow.ParticipantMessage, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, participant_id, direction, COALESCE(message_template_id, ''), COALESCE(text, ''), created_at
		FROM participant_messages
		WHERE participant_id = ?
		ORDER BY created_at, id`, participantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	var messages []flow.ParticipantMessage
	for rows.Next() {
		var m flow.ParticipantMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ParticipantID, &m.Direction, &m.TemplateID, &m.Text, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, errors.Wrap(rows.Err(), "failed to iterate messages")
}

// LastOutboundPollMessage returns the most recent outbound message for the
// participant whose template is a poll, or nil when the participant has
// never been sent one. This is the anchor of poll-answer dispatch: the
// inbound text answers this message's template.
func (s *Queries) LastOutboundPollMessage(ctx context.Context, participantID string) (*flow.ParticipantMessage, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT m.id, m.participant_id, m.direction, m.message_template_id, COALESCE(m.text, ''), m.created_at
		FROM participant_messages m
		JOIN message_templates t ON t.id = m.message_template_id
		WHERE m.participant_id = ? AND m.direction = ? AND t.type = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`,
		participantID, flow.DirectionOutbound, flow.TemplateTypePoll)

	var m flow.ParticipantMessage
	var createdAt string
	err := row.Scan(&m.ID, &m.ParticipantID, &m.Direction, &m.TemplateID, &m.Text, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get last outbound poll message")
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertParticipantVariable writes the single stored value for a
// (participant, variable) pair, inserting or overwriting in place. P3:
// repeated answers never produce a second row.
func (s *Queries) UpsertParticipantVariable(ctx context.Context, v *flow.ParticipantVariable) error {
	var valueInt sql.NullInt64
	if v.ValueInt != nil {
		valueInt = sql.NullInt64{Int64: *v.ValueInt, Valid: true}
	}
	var valueDateTime sql.NullString
	if v.ValueDateTime != nil {
		valueDateTime = sql.NullString{String: formatTime(*v.ValueDateTime), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO participant_variables (id, participant_id, variable_id, value_text, value_int, value_datetime, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id, variable_id) DO UPDATE SET
			value_text = excluded.value_text,
			value_int = excluded.value_int,
			value_datetime = excluded.value_datetime,
			updated_at = excluded.updated_at`,
		v.ID, v.ParticipantID, v.VariableID,
		nullString(v.ValueText), valueInt, valueDateTime, formatTime(v.UpdatedAt),
	)
	return errors.Wrap(err, "failed to upsert participant variable")
}

// GetParticipantVariable retrieves the stored value for one
// (participant, variable) pair; nil when nothing has been stored yet.
func (s *Queries) GetParticipantVariable(ctx context.Context, participantID, variableID string) (*flow.ParticipantVariable, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, participant_id, variable_id, COALESCE(value_text, ''), value_int, value_datetime, updated_at
		FROM participant_variables
		WHERE participant_id = ? AND variable_id = ?`,
		participantID, variableID)

	v, err := scanParticipantVariableRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// ListParticipantVariables returns all stored values for a participant,
// keyed by variable id, in the shape the condition evaluator consumes.
func (s *Queries) ListParticipantVariables(ctx context.Context, participantID string) (map[string]flow.ParticipantVariable, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, participant_id, variable_id, COALESCE(value_text, ''), value_int, value_datetime, updated_at
		FROM participant_variables
		WHERE participant_id = ?`, participantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list participant variables")
	}
	defer rows.Close()

	values := make(map[string]flow.ParticipantVariable)
	for rows.Next() {
		var v flow.ParticipantVariable
		var valueInt sql.NullInt64
		var valueDateTime sql.NullString
		var updatedAt string
		if err := rows.Scan(&v.ID, &v.ParticipantID, &v.VariableID, &v.ValueText, &valueInt, &valueDateTime, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan participant variable")
		}
		if err := finishParticipantVariable(&v, valueInt, valueDateTime, updatedAt); err != nil {
			return nil, err
		}
		values[v.VariableID] = v
	}
	return values, errors.Wrap(rows.Err(), "failed to iterate participant variables")
}

func scanParticipantVariableRow(row *sql.Row) (*flow.ParticipantVariable, error) {
	var v flow.ParticipantVariable
	var valueInt sql.NullInt64
	var valueDateTime sql.NullString
	var updatedAt string
	err := row.Scan(&v.ID, &v.ParticipantID, &v.VariableID, &v.ValueText, &valueInt, &valueDateTime, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to get participant variable")
	}
	if err := finishParticipantVariable(&v, valueInt, valueDateTime, updatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func finishParticipantVariable(v *flow.ParticipantVariable, valueInt sql.NullInt64, valueDateTime sql.NullString, updatedAt string) error {
	if valueInt.Valid {
		n := valueInt.Int64
		v.ValueInt = &n
	}
	if valueDateTime.Valid && valueDateTime.String != "" {
		t, err := parseTime(valueDateTime.String)
		if err != nil {
			return err
		}
		v.ValueDateTime = &t
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return err
	}
	v.UpdatedAt = t
	return nil
}

// InsertExecutionLog records that a node fired for a participant
func (s *Queries) InsertExecutionLog(ctx context.Context, l *flow.NodeExecutionLog) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO node_execution_logs (id, participant_id, node_id, executed_at)
		VALUES (?, ?, ?, ?)`,
		l.ID, l.ParticipantID, l.NodeID, formatTime(l.ExecutedAt),
	)
	return errors.Wrap(err, "failed to insert execution log")
}

// ListExecutionLogs returns a participant's execution logs ordered by time
func (s *Queries) ListExecutionLogs(ctx context.Context, participantID string) ([]flow.NodeExecutionLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, participant_id, node_id, executed_at
		FROM node_execution_logs
		WHERE participant_id = ?
		ORDER BY executed_at, id`, participantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list execution logs")
	}
	defer rows.Close()

	var logs []flow.NodeExecutionLog
	for rows.Next() {
		var l flow.NodeExecutionLog
		var executedAt string
		if err := rows.Scan(&l.ID, &l.ParticipantID, &l.NodeID, &executedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution log")
		}
		if l.ExecutedAt, err = parseTime(executedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, errors.Wrap(rows.Err(), "failed to iterate execution logs")
}

// TimelineEntry is one node firing enriched with the node and template
// names, for the read-only timeline view.
type TimelineEntry struct {
	NodeID       string    `json:"node_id"`
	NodeName     string    `json:"node_name"`
	TemplateName string    `json:"template_name"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// ListTimeline returns the participant's node firings joined with node and
// template names, ordered by execution time.
func (s *Queries) ListTimeline(ctx context.Context, participantID string) ([]TimelineEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT l.node_id, n.name, t.name, l.executed_at
		FROM node_execution_logs l
		JOIN nodes n ON n.id = l.node_id
		JOIN message_templates t ON t.id = n.message_template_id
		WHERE l.participant_id = ?
		ORDER BY l.executed_at, l.id`, participantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timeline")
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		var executedAt string
		if err := rows.Scan(&e.NodeID, &e.NodeName, &e.TemplateName, &executedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan timeline entry")
		}
		if e.ExecutedAt, err = parseTime(executedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to iterate timeline")
}
