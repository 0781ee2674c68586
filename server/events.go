package server

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// MessageEventsPoller tails the participant_messages table and broadcasts
// new rows to subscribed WebSocket clients. The cursor is the stored
// created_at string; the fixed-width timestamp layout makes the `>`
// comparison chronological.
type MessageEventsPoller struct {
	db       *sql.DB
	server   *Server
	logger   *zap.SugaredLogger
	interval time.Duration
	cursor   string
}

// messageEvent is the wire shape of one live message notification
type messageEvent struct {
	Type          string `json:"type"`
	MessageID     string `json:"message_id"`
	ParticipantID string `json:"participant_id"`
	Direction     string `json:"direction"`
	TemplateID    string `json:"message_template_id,omitempty"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
}

// NewMessageEventsPoller creates a poller starting at the newest existing
// message, so reconnecting dashboards never replay history.
func NewMessageEventsPoller(db *sql.DB, server *Server, logger *zap.SugaredLogger) *MessageEventsPoller {
	var cursor sql.NullString
	if err := db.QueryRow("SELECT COALESCE(MAX(created_at), '') FROM participant_messages").Scan(&cursor); err != nil {
		logger.Warnw("Failed to read message cursor, starting from the beginning", "error", err)
	}

	return &MessageEventsPoller{
		db:       db,
		server:   server,
		logger:   logger,
		interval: 1 * time.Second,
		cursor:   cursor.String,
	}
}

// Start begins polling until the context is cancelled
func (p *MessageEventsPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debugw("Message events poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debugw("Message events poller stopped")
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *MessageEventsPoller) poll() {
	rows, err := p.db.Query(`
		SELECT id, participant_id, direction, COALESCE(message_template_id, ''), COALESCE(text, ''), created_at
		FROM participant_messages
		WHERE created_at > ?
		ORDER BY created_at ASC, id ASC`,
		p.cursor)
	if err != nil {
		p.logger.Warnw("Failed to query message events", "error", err)
		return
	}
	defer rows.Close()

	processed := 0
	for rows.Next() {
		var ev messageEvent
		if err := rows.Scan(&ev.MessageID, &ev.ParticipantID, &ev.Direction,
			&ev.TemplateID, &ev.Text, &ev.CreatedAt); err != nil {
			p.logger.Warnw("Failed to scan message event", "error", err)
			continue
		}
		ev.Type = "message"

		p.server.broadcastToParticipant(ev.ParticipantID, ev)
		p.cursor = ev.CreatedAt
		processed++
	}

	if processed > 0 {
		p.logger.Debugw("Broadcast message events", "count", processed, "cursor", p.cursor)
	}
}
