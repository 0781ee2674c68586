package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candelahq/trellis/errors"
)

// minimalDefinition builds a small valid definition: one StartDate node
// sending a broadcast, one poll with a dependent, one activation keyword.
func minimalDefinition() ProjectDefinition {
	return ProjectDefinition{
		Project: Project{ID: "p-1", Name: "Demo", Status: ProjectStatusActive},
		Timings: []TimingElement{
			{ID: "tm-1", ProjectID: "p-1", Name: "Instantly", Direction: TimingDirectionAfter},
		},
		Variables: []Variable{
			{ID: "v-start", ProjectID: "p-1", Name: "Start_Date", Type: VariableTypeDateTime, IsSystem: true},
			{ID: "v-answer", ProjectID: "p-1", Name: "Answer_Var", Type: VariableTypeText},
		},
		Templates: []MessageTemplate{
			{ID: "tpl-b", ProjectID: "p-1", Type: TemplateTypeBroadcast, Name: "B1", TextEN: "hello"},
			{ID: "tpl-p", ProjectID: "p-1", Type: TemplateTypePoll, Name: "P1", TextEN: "yes?", VariableID: "v-answer", ChoicesEN: []string{"Yes", "No"}},
		},
		Nodes: []Node{
			{ID: "n-start", ProjectID: "p-1", Name: "Start", MessageTemplateID: "tpl-b", ScheduleTimingID: "tm-1", Activation: StartDate{VariableID: "v-start"}},
			{ID: "n-poll", ProjectID: "p-1", Name: "Ask", MessageTemplateID: "tpl-p", Activation: AfterNode{SourceNodeID: "n-start"}},
			{ID: "n-followup", ProjectID: "p-1", Name: "FollowUp", MessageTemplateID: "tpl-b", IsTerminal: true, Activation: AfterPoll{SourceTemplateID: "tpl-p"}},
		},
		Conditions: []NodeCondition{
			{ID: "c-1", NodeID: "n-followup", VariableID: "v-answer", Operation: OpEqual, ExpectedAnswer: "yes"},
		},
		Keywords: []Keyword{
			{ID: "k-1", ProjectID: "p-1", Name: "Enroll", KeywordText: "istart", Action: ActionActivateParticipant, ReferencedNodeID: "n-start", ReferencedVariableID: "v-start"},
		},
	}
}

func TestValidateAcceptsMinimalDefinition(t *testing.T) {
	def := minimalDefinition()
	require.NoError(t, def.Validate())
}

func TestValidateRejectsBeforeTiming(t *testing.T) {
	def := minimalDefinition()
	def.Timings = append(def.Timings, TimingElement{
		ID: "tm-2", ProjectID: "p-1", Name: "Reminder", Direction: TimingDirectionBefore, Hours: 1,
	})

	err := def.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidDefinitionError(err))
	assert.Contains(t, err.Error(), "Before direction is reserved")
}

func TestValidateRejectsNegativeOffset(t *testing.T) {
	def := minimalDefinition()
	def.Timings[0].Seconds = -10

	err := def.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidDefinitionError(err))
}

func TestValidateRejectsAfterPollOnBroadcast(t *testing.T) {
	def := minimalDefinition()
	def.Nodes[2].Activation = AfterPoll{SourceTemplateID: "tpl-b"}

	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a poll")
}

func TestValidateRejectsStartDateOnTextVariable(t *testing.T) {
	def := minimalDefinition()
	def.Nodes[0].Activation = StartDate{VariableID: "v-answer"}

	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want datetime")
}

func TestValidateRejectsMissingTemplate(t *testing.T) {
	def := minimalDefinition()
	def.Nodes[0].MessageTemplateID = "tpl-ghost"

	err := def.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidDefinitionError(err))
}

func TestValidateRejectsNodeWithoutActivation(t *testing.T) {
	def := minimalDefinition()
	def.Nodes[0].Activation = nil

	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no activation")
}

func TestValidateRejectsUpperCaseKeyword(t *testing.T) {
	def := minimalDefinition()
	def.Keywords[0].KeywordText = "IStart"

	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lower-case")
}

func TestValidateRejectsConditionOnUnknownVariable(t *testing.T) {
	def := minimalDefinition()
	def.Conditions[0].VariableID = "v-ghost"

	err := def.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidDefinitionError(err))
}

func TestValidateRejectsPollWithoutBoundVariable(t *testing.T) {
	def := minimalDefinition()
	def.Templates[1].VariableID = ""

	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bound variable")
}
