package flow

import "github.com/candelahq/trellis/errors"

// Activation is the rule that determines when a node becomes eligible
// for scheduling. It is a closed set of four variants:
//
//	AfterNode:        fires after another node in the same project fired
//	AfterPoll:        fires after the participant answered a poll template
//	AfterDateTimeVar: fires relative to a DateTime variable's stored value
//	StartDate:        fires when the participant (re)activates
//
// The persisted shape (a discriminator column plus four nullable reference
// columns) is a compatibility detail confined to Encode/DecodeActivation;
// everything above the store works with the variants.
type Activation interface {
	ActivationType() ActivationType

	// sealed
	isActivation()
}

// AfterNode activates when the referenced source node fires
type AfterNode struct {
	SourceNodeID string
}

// AfterPoll activates when the referenced poll template is answered
type AfterPoll struct {
	SourceTemplateID string
}

// AfterDateTimeVar activates relative to a stored DateTime variable
type AfterDateTimeVar struct {
	VariableID string
}

// StartDate activates when the participant's Start_Date is (re)set
type StartDate struct {
	VariableID string
}

func (AfterNode) ActivationType() ActivationType        { return ActivationAfterNode }
func (AfterPoll) ActivationType() ActivationType        { return ActivationAfterPoll }
func (AfterDateTimeVar) ActivationType() ActivationType { return ActivationAfterDateTimeVar }
func (StartDate) ActivationType() ActivationType        { return ActivationStartDate }

func (AfterNode) isActivation()        {}
func (AfterPoll) isActivation()        {}
func (AfterDateTimeVar) isActivation() {}
func (StartDate) isActivation()        {}

// EncodeActivation flattens an activation into the discriminator plus the
// four nullable reference columns ("" meaning NULL), in schema order:
// source node, poll template, datetime variable, start-date variable.
func EncodeActivation(a Activation) (typ ActivationType, sourceNodeID, pollTemplateID, dateTimeVarID, startDateVarID string) {
	switch v := a.(type) {
	case AfterNode:
		return ActivationAfterNode, v.SourceNodeID, "", "", ""
	case AfterPoll:
		return ActivationAfterPoll, "", v.SourceTemplateID, "", ""
	case AfterDateTimeVar:
		return ActivationAfterDateTimeVar, "", "", v.VariableID, ""
	case StartDate:
		return ActivationStartDate, "", "", "", v.VariableID
	default:
		// The interface is sealed; a nil activation is the only way here.
		return "", "", "", "", ""
	}
}

// DecodeActivation rebuilds the activation variant from its persisted columns
func DecodeActivation(typ string, sourceNodeID, pollTemplateID, dateTimeVarID, startDateVarID string) (Activation, error) {
	switch ActivationType(typ) {
	case ActivationAfterNode:
		if sourceNodeID == "" {
			return nil, errors.Newf("after_node activation missing source node id")
		}
		return AfterNode{SourceNodeID: sourceNodeID}, nil
	case ActivationAfterPoll:
		if pollTemplateID == "" {
			return nil, errors.Newf("after_poll activation missing poll template id")
		}
		return AfterPoll{SourceTemplateID: pollTemplateID}, nil
	case ActivationAfterDateTimeVar:
		if dateTimeVarID == "" {
			return nil, errors.Newf("after_datetime_var activation missing variable id")
		}
		return AfterDateTimeVar{VariableID: dateTimeVarID}, nil
	case ActivationStartDate:
		if startDateVarID == "" {
			return nil, errors.Newf("start_date activation missing variable id")
		}
		return StartDate{VariableID: startDateVarID}, nil
	default:
		return nil, errors.Newf("unknown activation type %q", typ)
	}
}
