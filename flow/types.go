// Package flow defines the protocol definition model: the graph of nodes,
// activation rules, timing offsets, variables, conditions, keywords, and
// message templates that collectively encode a protocol, plus the runtime
// rows written as participants move through it.
//
// Definitions (Project through Keyword) are created by seed routines and
// treated as read-only by the engine. The package is pure structure: no
// I/O, no SQL shapes. Persistence lives in the store package.
package flow

import "time"

// Project is the multi-tenant container every definition hangs off
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TimingElement is a named non-negative offset applied when scheduling.
// The zero offset ("Instantly") is a regular row, not a special case.
type TimingElement struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Direction TimingDirection `json:"direction"`
	Days      int             `json:"days"`
	Hours     int             `json:"hours"`
	Minutes   int             `json:"minutes"`
	Seconds   int             `json:"seconds"`
}

// Variable is a named slot participant values are stored into.
// The system variable Start_Date (type DateTime) anchors StartDate
// activations; AGV variables are written implicitly by node execution.
type Variable struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Name      string       `json:"name"`
	Type      VariableType `json:"type"`
	Source    string       `json:"source,omitempty"`
	IsSystem  bool         `json:"is_system"`
	IsAGV     bool         `json:"is_agv"`
}

// MessageTemplate carries the two language bodies of a message. Polls
// additionally bind the variable their answer lands in and declare the
// accepted choices per language.
type MessageTemplate struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Type      TemplateType `json:"type"`
	Name      string       `json:"name"`
	TextEN    string       `json:"text_en,omitempty"`
	TextES    string       `json:"text_es,omitempty"`

	// Poll only
	VariableID string   `json:"variable_id,omitempty"`
	ChoicesEN  []string `json:"choices_en,omitempty"`
	ChoicesES  []string `json:"choices_es,omitempty"`
}

// IsPoll returns true if the template expects an answer
func (t *MessageTemplate) IsPoll() bool {
	return t.Type == TemplateTypePoll
}

// Node is the unit of "send one templated message and schedule its
// successors". ScheduleTimingID is the offset applied when scheduling
// this node's AfterNode dependents relative to its own firing; empty
// means fire dependents immediately.
type Node struct {
	ID                string     `json:"id"`
	ProjectID         string     `json:"project_id"`
	Name              string     `json:"name"`
	IsTerminal        bool       `json:"is_terminal"`
	ScheduleTimingID  string     `json:"schedule_timing_id,omitempty"`
	MessageTemplateID string     `json:"message_template_id"`
	Activation        Activation `json:"-"`
}

// NodeCondition must hold for its node to fire; conditions on one node
// combine with AND semantics.
type NodeCondition struct {
	ID             string      `json:"id"`
	NodeID         string      `json:"node_id"`
	VariableID     string      `json:"variable_id"`
	Operation      ConditionOp `json:"operation"`
	ExpectedAnswer string      `json:"expected_answer"`
}

// Keyword routes an inbound text to a participant state change.
// KeywordText is stored lower-case; matching is exact after lowering.
type Keyword struct {
	ID                   string        `json:"id"`
	ProjectID            string        `json:"project_id"`
	Name                 string        `json:"name,omitempty"`
	KeywordText          string        `json:"keyword_text"`
	Language             string        `json:"language,omitempty"`
	Action               KeywordAction `json:"action_type"`
	ReferencedNodeID     string        `json:"referenced_node_id,omitempty"`
	ReferencedVariableID string        `json:"referenced_variable_id,omitempty"`
}

// Participant is one enrolled phone/identity inside a project
type Participant struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"project_id"`
	ExternalID string            `json:"external_id,omitempty"`
	Language   string            `json:"language"`
	Status     ParticipantStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ParticipantVariable is the single stored value for one
// (participant, variable) pair. Upserted, never duplicated.
// ValueInt is set only when the variable is integer-typed and the
// answer parsed; ValueText always keeps the raw answer.
type ParticipantVariable struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participant_id"`
	VariableID    string     `json:"variable_id"`
	ValueText     string     `json:"value_text,omitempty"`
	ValueInt      *int64     `json:"value_int,omitempty"`
	ValueDateTime *time.Time `json:"value_datetime,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ParticipantMessage is one inbound or outbound message row.
// Outbound rows are the system's delivery output: an external transport
// consumes them; the core never talks to a gateway itself.
type ParticipantMessage struct {
	ID            string           `json:"id"`
	ParticipantID string           `json:"participant_id"`
	Direction     MessageDirection `json:"direction"`
	TemplateID    string           `json:"message_template_id,omitempty"`
	Text          string           `json:"text"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NodeExecutionLog records that a node fired for a participant. Written
// exactly once per firing, in the same transaction as the outbound
// message. The same (participant, node) pair may log repeatedly when a
// participant is re-enrolled.
type NodeExecutionLog struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	NodeID        string    `json:"node_id"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// ScheduledJob is the durable intent to fire a node for a participant
// at or after RunAt.
type ScheduledJob struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	NodeID        string    `json:"node_id"`
	RunAt         time.Time `json:"run_at"`
	Status        JobStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
