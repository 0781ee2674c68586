// Package engine executes protocols: it enrolls participants, routes
// inbound texts to keyword or poll-answer handling, fires nodes, and
// schedules the follow-up work the poller later claims.
//
// Each public operation commits exactly once, at its end, through the
// store's transactional unit of work. An observer never sees an outbound
// message without its downstream jobs, or vice versa.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
	"github.com/candelahq/trellis/logger"
	"github.com/candelahq/trellis/store"
)

// StartDateVariableName is the system DateTime variable set to the moment
// of (re)activation. StartDate-activated nodes anchor on it.
const StartDateVariableName = "Start_Date"

// Literal activation and exit keys honored even when a project defines no
// keyword row for them. Carried over from shipped protocol data.
const (
	literalExitKey = "iexit"
)

var literalActivateKeys = map[string]struct{}{
	"iselect": {},
	"ibuy":    {},
}

// Engine is the stateful half of the protocol core
type Engine struct {
	store  *store.Store
	clock  Clock
	logger *zap.SugaredLogger
}

// New creates an engine over a store and an injected clock
func New(s *store.Store, clock Clock, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = logger.ComponentLogger("engine")
	}
	return &Engine{store: s, clock: clock, logger: log}
}

// EnrollParticipant creates an active participant in the project.
// Enrollment schedules nothing: the caller sends an activation keyword as
// the next step.
func (e *Engine) EnrollParticipant(ctx context.Context, projectID, language, externalID string) (string, error) {
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return "", err
	}
	if language == "" {
		language = "English"
	}

	p := flow.Participant{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		ExternalID: externalID,
		Language:   language,
		Status:     flow.ParticipantStatusActive,
		CreatedAt:  e.clock.Now(),
	}
	if err := e.store.CreateParticipant(ctx, &p); err != nil {
		return "", err
	}

	e.logger.Infow("Participant enrolled",
		logger.FieldParticipantID, p.ID,
		logger.FieldProjectID, projectID,
		"language", language)
	return p.ID, nil
}

// ExecuteNode fires a node for a participant: emits the templated outbound
// message, logs the execution, and schedules the node's dependents, all
// in one transaction.
//
// Precondition failures (participant missing or inactive, node outside the
// participant's project, template missing) return (nil, nil): the flow
// said don't fire, which is not an error.
func (e *Engine) ExecuteNode(ctx context.Context, participantID, nodeID string) (*flow.ParticipantMessage, error) {
	now := e.clock.Now()

	var msg *flow.ParticipantMessage
	err := e.store.WithTx(ctx, func(q *store.Queries) error {
		var err error
		msg, err = e.executeNode(ctx, q, participantID, nodeID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// executeNode is ExecuteNode's body, also invoked inside keyword handling
// (exit broadcasts fire in the deactivation transaction).
func (e *Engine) executeNode(ctx context.Context, q *store.Queries, participantID, nodeID string, now time.Time) (*flow.ParticipantMessage, error) {
	p, err := q.GetParticipant(ctx, participantID)
	if errors.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status != flow.ParticipantStatusActive {
		e.logger.Debugw("Node skipped, participant inactive",
			logger.FieldParticipantID, participantID, logger.FieldNodeID, nodeID)
		return nil, nil
	}

	n, err := q.GetNode(ctx, nodeID)
	if errors.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if n.ProjectID != p.ProjectID {
		return nil, nil
	}

	tpl, err := q.GetMessageTemplate(ctx, n.MessageTemplateID)
	if errors.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	language := p.Language
	if language == "" {
		language = "English"
	}

	msg := flow.ParticipantMessage{
		ID:            uuid.NewString(),
		ParticipantID: p.ID,
		Direction:     flow.DirectionOutbound,
		TemplateID:    tpl.ID,
		Text:          ResolveText(tpl, language),
		CreatedAt:     now,
	}
	if err := q.InsertMessage(ctx, &msg); err != nil {
		return nil, err
	}

	if err := q.InsertExecutionLog(ctx, &flow.NodeExecutionLog{
		ID:            uuid.NewString(),
		ParticipantID: p.ID,
		NodeID:        n.ID,
		ExecutedAt:    now,
	}); err != nil {
		return nil, err
	}

	// Dependents are scheduled at now plus the FIRING node's timing: the
	// offset attached to a node controls when its follow-ups go out
	// relative to its own firing.
	timing, err := e.nodeTiming(ctx, q, n)
	if err != nil {
		return nil, err
	}
	runAt := now.Add(TimingToDuration(timing))

	dependents, err := q.ListNodesByActivation(ctx, p.ProjectID, flow.ActivationAfterNode, n.ID)
	if err != nil {
		return nil, err
	}
	if err := e.scheduleEligible(ctx, q, p.ID, dependents, func(*flow.Node) time.Time { return runAt }, now); err != nil {
		return nil, err
	}

	e.logger.Debugw("Node fired",
		logger.FieldParticipantID, p.ID,
		logger.FieldNodeID, n.ID,
		logger.FieldTemplateID, tpl.ID,
		logger.FieldCount, len(dependents))
	return &msg, nil
}

// ProcessInbound handles one inbound text from a participant. The raw
// inbound message is recorded first, in its own transaction, so history
// survives even when dispatch fails; then keyword dispatch runs, and only
// if no keyword matched is the text interpreted as a poll answer.
func (e *Engine) ProcessInbound(ctx context.Context, participantID, rawText string) error {
	text := strings.TrimSpace(rawText)
	if text == "" {
		// The HTTP layer rejects empty texts before they get here.
		return nil
	}

	p, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	if err := e.store.InsertMessage(ctx, &flow.ParticipantMessage{
		ID:            uuid.NewString(),
		ParticipantID: p.ID,
		Direction:     flow.DirectionInbound,
		Text:          text,
		CreatedAt:     now,
	}); err != nil {
		return err
	}

	key := strings.ToLower(text)
	return e.store.WithTx(ctx, func(q *store.Queries) error {
		kw, err := q.FindKeyword(ctx, p.ProjectID, key)
		if err != nil {
			return err
		}

		// Keyword matching always precedes poll answering: a text that is
		// both a keyword and a valid poll choice is a keyword. The literal
		// keys broaden the action match for keyword rows seeded with an
		// unexpected action type; they do not bypass the lookup.
		if kw == nil {
			return e.handlePollAnswer(ctx, q, p, text, key, now)
		}
		switch {
		case kw.Action == flow.ActionDeactivateParticipant || key == literalExitKey:
			return e.deactivate(ctx, q, p, kw, now)
		case kw.Action == flow.ActionActivateParticipant || hasLiteralActivateKey(key):
			return e.activate(ctx, q, p, kw, now)
		case kw.Action == flow.ActionMoveToNode:
			return e.moveToNode(ctx, q, p, kw, now)
		default:
			return nil
		}
	})
}

func hasLiteralActivateKey(key string) bool {
	_, ok := literalActivateKeys[key]
	return ok
}

// deactivate delivers the keyword's exit broadcast if one is referenced,
// then flips the participant inactive and cancels every pending job,
// in one transaction.
func (e *Engine) deactivate(ctx context.Context, q *store.Queries, p *flow.Participant, kw *flow.Keyword, now time.Time) error {
	if kw != nil && kw.ReferencedNodeID != "" {
		if _, err := e.executeNode(ctx, q, p.ID, kw.ReferencedNodeID, now); err != nil {
			return err
		}
	}

	if err := q.UpdateParticipantStatus(ctx, p.ID, flow.ParticipantStatusInactive); err != nil {
		return err
	}
	cancelled, err := q.CancelPendingJobs(ctx, p.ID, now)
	if err != nil {
		return err
	}

	e.logger.Infow("Participant deactivated",
		logger.FieldParticipantID, p.ID,
		"jobs_cancelled", cancelled)
	return nil
}

// activate (re)activates the participant, resets Start_Date to now, and
// schedules either the keyword's referenced node or every eligible
// start-date node. Re-activation is idempotent: Start_Date is upserted and
// no duplicate participant rows appear.
func (e *Engine) activate(ctx context.Context, q *store.Queries, p *flow.Participant, kw *flow.Keyword, now time.Time) error {
	if err := q.UpdateParticipantStatus(ctx, p.ID, flow.ParticipantStatusActive); err != nil {
		return err
	}

	startVar, err := q.GetVariableByName(ctx, p.ProjectID, StartDateVariableName)
	switch {
	case errors.IsNotFoundError(err):
		// Projects without start-date nodes have no Start_Date variable.
		e.logger.Debugw("No Start_Date variable in project", logger.FieldProjectID, p.ProjectID)
	case err != nil:
		return err
	default:
		startAt := now
		if err := q.UpsertParticipantVariable(ctx, &flow.ParticipantVariable{
			ID:            uuid.NewString(),
			ParticipantID: p.ID,
			VariableID:    startVar.ID,
			ValueDateTime: &startAt,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}
	}

	if kw != nil && kw.ReferencedNodeID != "" {
		n, err := q.GetNode(ctx, kw.ReferencedNodeID)
		if errors.IsNotFoundError(err) {
			// The keyword points at a node that no longer exists. The
			// participant is still activated; there is just nothing to
			// schedule for them.
			e.logger.Warnw("Keyword references a missing node",
				logger.FieldKeyword, kw.KeywordText,
				logger.FieldNodeID, kw.ReferencedNodeID,
				logger.FieldParticipantID, p.ID)
			return nil
		}
		if err != nil {
			return err
		}
		timing, err := e.nodeTiming(ctx, q, n)
		if err != nil {
			return err
		}
		if err := e.scheduleJob(ctx, q, p.ID, n.ID, now.Add(TimingToDuration(timing)), now); err != nil {
			return err
		}
		e.logger.Infow("Participant activated",
			logger.FieldParticipantID, p.ID, logger.FieldNodeID, n.ID)
		return nil
	}

	startNodes, err := q.ListStartDateNodes(ctx, p.ProjectID)
	if err != nil {
		return err
	}
	runAtFor := func(n *flow.Node) time.Time {
		timing, terr := e.nodeTiming(ctx, q, n)
		if terr != nil {
			return now
		}
		return now.Add(TimingToDuration(timing))
	}
	if err := e.scheduleEligible(ctx, q, p.ID, startNodes, runAtFor, now); err != nil {
		return err
	}

	e.logger.Infow("Participant activated",
		logger.FieldParticipantID, p.ID,
		logger.FieldCount, len(startNodes))
	return nil
}

// moveToNode schedules the keyword's referenced node immediately
func (e *Engine) moveToNode(ctx context.Context, q *store.Queries, p *flow.Participant, kw *flow.Keyword, now time.Time) error {
	if kw.ReferencedNodeID == "" {
		e.logger.Warnw("move_to_node keyword without referenced node",
			logger.FieldKeyword, kw.KeywordText, logger.FieldProjectID, p.ProjectID)
		return nil
	}
	return e.scheduleJob(ctx, q, p.ID, kw.ReferencedNodeID, now, now)
}

// handlePollAnswer interprets the inbound text as the answer to the most
// recent outbound poll. Answers outside the accepted set are stored as-is:
// the engine never rejects a participant-reachable condition.
func (e *Engine) handlePollAnswer(ctx context.Context, q *store.Queries, p *flow.Participant, text, key string, now time.Time) error {
	if p.Status != flow.ParticipantStatusActive {
		// Inactive participants keep their history; nothing dispatches.
		return nil
	}

	last, err := q.LastOutboundPollMessage(ctx, p.ID)
	if err != nil {
		return err
	}
	if last == nil {
		// Recorded inbound with no semantic effect.
		e.logger.Debugw("Inbound with no open poll",
			logger.FieldParticipantID, p.ID, "text", text)
		return nil
	}

	tpl, err := q.GetMessageTemplate(ctx, last.TemplateID)
	if err != nil {
		return err
	}

	if _, ok := acceptedAnswers(tpl, key)[key]; !ok {
		e.logger.Debugw("Poll answer outside accepted set, storing as-is",
			logger.FieldParticipantID, p.ID,
			logger.FieldTemplateID, tpl.ID,
			"answer", text)
	}

	if tpl.VariableID == "" {
		// A poll with nowhere to record its answer dispatches nothing
		// downstream either.
		e.logger.Warnw("Poll template has no bound variable",
			logger.FieldParticipantID, p.ID,
			logger.FieldTemplateID, tpl.ID)
		return nil
	}

	variable, err := q.GetVariable(ctx, tpl.VariableID)
	if err != nil {
		return err
	}

	pv := flow.ParticipantVariable{
		ID:            uuid.NewString(),
		ParticipantID: p.ID,
		VariableID:    variable.ID,
		ValueText:     text,
		UpdatedAt:     now,
	}
	if strings.Contains(strings.ToLower(string(variable.Type)), "int") {
		if n, perr := parseAnswerInt(key); perr == nil {
			pv.ValueInt = &n
		}
	}
	if err := q.UpsertParticipantVariable(ctx, &pv); err != nil {
		return err
	}

	dependents, err := q.ListNodesByActivation(ctx, p.ProjectID, flow.ActivationAfterPoll, tpl.ID)
	if err != nil {
		return err
	}
	// Poll dependents are scheduled at now plus their OWN timing, unlike
	// after_node dependents which inherit the firing node's offset.
	runAtFor := func(n *flow.Node) time.Time {
		timing, terr := e.nodeTiming(ctx, q, n)
		if terr != nil {
			return now
		}
		return now.Add(TimingToDuration(timing))
	}
	if err := e.scheduleEligible(ctx, q, p.ID, dependents, runAtFor, now); err != nil {
		return err
	}

	e.logger.Infow("Poll answer stored",
		logger.FieldParticipantID, p.ID,
		logger.FieldTemplateID, tpl.ID,
		"answer", text)
	return nil
}

// ListMessages returns the participant's full message history in order
func (e *Engine) ListMessages(ctx context.Context, participantID string) ([]flow.ParticipantMessage, error) {
	if _, err := e.store.GetParticipant(ctx, participantID); err != nil {
		return nil, err
	}
	return e.store.ListMessages(ctx, participantID)
}

// ListTimeline returns the participant's node firings in order
func (e *Engine) ListTimeline(ctx context.Context, participantID string) ([]store.TimelineEntry, error) {
	if _, err := e.store.GetParticipant(ctx, participantID); err != nil {
		return nil, err
	}
	return e.store.ListTimeline(ctx, participantID)
}

// nodeTiming loads the node's schedule timing, nil when the node has none
func (e *Engine) nodeTiming(ctx context.Context, q *store.Queries, n *flow.Node) (*flow.TimingElement, error) {
	if n.ScheduleTimingID == "" {
		return nil, nil
	}
	return q.GetTimingElement(ctx, n.ScheduleTimingID)
}

// scheduleEligible schedules every candidate node whose conditions the
// participant's stored values satisfy. The participant's values are loaded
// once for the whole candidate set.
func (e *Engine) scheduleEligible(ctx context.Context, q *store.Queries, participantID string, candidates []flow.Node, runAtFor func(*flow.Node) time.Time, now time.Time) error {
	if len(candidates) == 0 {
		return nil
	}

	values, err := q.ListParticipantVariables(ctx, participantID)
	if err != nil {
		return err
	}

	for i := range candidates {
		n := &candidates[i]
		conditions, err := q.ListNodeConditions(ctx, n.ID)
		if err != nil {
			return err
		}
		if len(conditions) > 0 {
			ids := make([]string, 0, len(conditions))
			for _, c := range conditions {
				ids = append(ids, c.VariableID)
			}
			variables, err := q.VariablesByID(ctx, ids)
			if err != nil {
				return err
			}
			if !ConditionsSatisfied(conditions, variables, values) {
				e.logger.Debugw("Node rejected by conditions",
					logger.FieldParticipantID, participantID, logger.FieldNodeID, n.ID)
				continue
			}
		}
		if err := e.scheduleJob(ctx, q, participantID, n.ID, runAtFor(n), now); err != nil {
			return err
		}
	}
	return nil
}

// scheduleJob inserts one pending scheduled job
func (e *Engine) scheduleJob(ctx context.Context, q *store.Queries, participantID, nodeID string, runAt, now time.Time) error {
	job := flow.ScheduledJob{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		NodeID:        nodeID,
		RunAt:         runAt,
		Status:        flow.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := q.InsertJob(ctx, &job); err != nil {
		return err
	}
	e.logger.Debugw("Job scheduled",
		logger.FieldParticipantID, participantID,
		logger.FieldNodeID, nodeID,
		logger.FieldJobID, job.ID,
		logger.FieldRunAt, runAt)
	return nil
}
