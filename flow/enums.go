package flow

// ProjectStatus represents whether a project accepts traffic
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusInactive ProjectStatus = "inactive"
)

// ParticipantStatus represents a participant's enrollment state.
// Inactive participants keep their history but no node fires for them.
type ParticipantStatus string

const (
	ParticipantStatusActive   ParticipantStatus = "active"
	ParticipantStatusInactive ParticipantStatus = "inactive"
)

// TimingDirection is the side of the anchor a timing offset applies to.
// Only After is acted on today; Before is reserved and rejected at seed time.
type TimingDirection string

const (
	TimingDirectionBefore TimingDirection = "before"
	TimingDirectionAfter  TimingDirection = "after"
)

// VariableType is the storage type of a variable's participant values
type VariableType string

const (
	VariableTypeInteger  VariableType = "integer"
	VariableTypeText     VariableType = "text"
	VariableTypeDateTime VariableType = "datetime"
	VariableTypeTime     VariableType = "time"
	VariableTypeNone     VariableType = "none"
)

// TemplateType distinguishes one-way broadcasts from answerable polls
type TemplateType string

const (
	TemplateTypeBroadcast TemplateType = "broadcast"
	TemplateTypePoll      TemplateType = "poll"
)

// MessageDirection marks who produced a participant message
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// KeywordAction is what matching a keyword does to the participant
type KeywordAction string

const (
	ActionActivateParticipant   KeywordAction = "activate_participant"
	ActionDeactivateParticipant KeywordAction = "deactivate_participant"
	ActionMoveToNode            KeywordAction = "move_to_node"
)

// ConditionOp is the comparison a node condition applies to a stored
// participant value. `in` and `not_in` are schema-supported but collapse
// to equality for non-integer values, matching shipped protocol data.
type ConditionOp string

const (
	OpEqual ConditionOp = "equal"
	OpGT    ConditionOp = "gt"
	OpGTE   ConditionOp = "gte"
	OpLT    ConditionOp = "lt"
	OpLTE   ConditionOp = "lte"
	OpIn    ConditionOp = "in"
	OpNotIn ConditionOp = "not_in"
)

// ActivationType is the discriminator of the Activation variant
type ActivationType string

const (
	ActivationAfterNode        ActivationType = "after_node"
	ActivationAfterPoll        ActivationType = "after_poll"
	ActivationAfterDateTimeVar ActivationType = "after_datetime_var"
	ActivationStartDate        ActivationType = "start_date"
)

// JobStatus represents the current state of a scheduled job.
// Done and Cancelled are terminal; Pending and Running are not.
// Running is expected to be short-lived and is interpreted on restart
// as "was interrupted, safe to re-claim".
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true if no further transition may leave this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusCancelled
}

// IsValidJobStatus returns true if the status string is a valid JobStatus
func IsValidJobStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusDone, JobStatusCancelled:
		return true
	default:
		return false
	}
}
