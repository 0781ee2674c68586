package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/candelahq/trellis/flow"
)

func TestResolveTextLanguageFallback(t *testing.T) {
	both := &flow.MessageTemplate{TextEN: "hello", TextES: "hola"}
	assert.Equal(t, "hello", ResolveText(both, "English"))
	assert.Equal(t, "hola", ResolveText(both, "Spanish"))
	assert.Equal(t, "hola", ResolveText(both, "es"))
	assert.Equal(t, "hola", ResolveText(both, " SPANISH "))

	enOnly := &flow.MessageTemplate{TextEN: "hello"}
	assert.Equal(t, "hello", ResolveText(enOnly, "Spanish"))

	esOnly := &flow.MessageTemplate{TextES: "hola"}
	assert.Equal(t, "hola", ResolveText(esOnly, "English"))
	assert.Equal(t, "hola", ResolveText(esOnly, "French"))
}

func TestTimingToDuration(t *testing.T) {
	assert.Equal(t, time.Duration(0), TimingToDuration(nil))
	assert.Equal(t, time.Duration(0), TimingToDuration(&flow.TimingElement{}))
	assert.Equal(t, 45*time.Second, TimingToDuration(&flow.TimingElement{Seconds: 45}))
	assert.Equal(t, 26*time.Hour+3*time.Minute,
		TimingToDuration(&flow.TimingElement{Days: 1, Hours: 2, Minutes: 3}))
}

func intVar(id string) flow.Variable {
	return flow.Variable{ID: id, Type: flow.VariableTypeInteger}
}

func textVar(id string) flow.Variable {
	return flow.Variable{ID: id, Type: flow.VariableTypeText}
}

func storedInt(id string, n int64) flow.ParticipantVariable {
	return flow.ParticipantVariable{VariableID: id, ValueText: "", ValueInt: &n}
}

func storedText(id, text string) flow.ParticipantVariable {
	return flow.ParticipantVariable{VariableID: id, ValueText: text}
}

func TestConditionsSatisfiedEmptyListPasses(t *testing.T) {
	assert.True(t, ConditionsSatisfied(nil, nil, nil))
}

func TestConditionsSatisfiedMissingValueFails(t *testing.T) {
	conditions := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpEqual, ExpectedAnswer: "yes"}}
	variables := map[string]flow.Variable{"v-1": textVar("v-1")}

	assert.False(t, ConditionsSatisfied(conditions, variables, nil))
}

func TestConditionsSatisfiedTextEquality(t *testing.T) {
	conditions := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpEqual, ExpectedAnswer: "Yes"}}
	variables := map[string]flow.Variable{"v-1": textVar("v-1")}

	assert.True(t, ConditionsSatisfied(conditions, variables,
		map[string]flow.ParticipantVariable{"v-1": storedText("v-1", "  yes ")}))
	assert.False(t, ConditionsSatisfied(conditions, variables,
		map[string]flow.ParticipantVariable{"v-1": storedText("v-1", "no")}))
}

func TestConditionsSatisfiedTextOperationsCollapseToEquality(t *testing.T) {
	// gt on a text variable means equality, not lexicographic comparison.
	conditions := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpGT, ExpectedAnswer: "abc"}}
	variables := map[string]flow.Variable{"v-1": textVar("v-1")}

	assert.True(t, ConditionsSatisfied(conditions, variables,
		map[string]flow.ParticipantVariable{"v-1": storedText("v-1", "ABC")}))
	assert.False(t, ConditionsSatisfied(conditions, variables,
		map[string]flow.ParticipantVariable{"v-1": storedText("v-1", "zzz")}))
}

func TestConditionsSatisfiedIntegerComparisons(t *testing.T) {
	variables := map[string]flow.Variable{"v-1": intVar("v-1")}
	values := map[string]flow.ParticipantVariable{"v-1": storedInt("v-1", 7)}

	cases := []struct {
		op       flow.ConditionOp
		expected string
		want     bool
	}{
		{flow.OpEqual, "7", true},
		{flow.OpEqual, "8", false},
		{flow.OpGT, "5", true},
		{flow.OpGT, "7", false},
		{flow.OpGTE, "7", true},
		{flow.OpLT, "10", true},
		{flow.OpLT, "7", false},
		{flow.OpLTE, "7", true},
		{flow.OpLTE, "6", false},
	}
	for _, tc := range cases {
		conditions := []flow.NodeCondition{{VariableID: "v-1", Operation: tc.op, ExpectedAnswer: tc.expected}}
		assert.Equal(t, tc.want, ConditionsSatisfied(conditions, variables, values),
			"op=%s expected=%s", tc.op, tc.expected)
	}
}

func TestConditionsSatisfiedIntegerRequiresParsedValue(t *testing.T) {
	// The stored answer never parsed as an integer: every integer condition
	// fails, even equality against the raw text.
	variables := map[string]flow.Variable{"v-1": intVar("v-1")}
	values := map[string]flow.ParticipantVariable{"v-1": storedText("v-1", "seven")}

	conditions := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpEqual, ExpectedAnswer: "seven"}}
	assert.False(t, ConditionsSatisfied(conditions, variables, values))
}

func TestConditionsSatisfiedLegacyThreshold(t *testing.T) {
	// Bare gt/lte conditions with an unparseable expected answer compare
	// against the fixed threshold of 5.
	variables := map[string]flow.Variable{"v-1": intVar("v-1")}

	gt := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpGT, ExpectedAnswer: "high"}}
	lte := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpLTE, ExpectedAnswer: "low"}}
	eq := []flow.NodeCondition{{VariableID: "v-1", Operation: flow.OpEqual, ExpectedAnswer: "five"}}

	six := map[string]flow.ParticipantVariable{"v-1": storedInt("v-1", 6)}
	five := map[string]flow.ParticipantVariable{"v-1": storedInt("v-1", 5)}

	assert.True(t, ConditionsSatisfied(gt, variables, six))
	assert.False(t, ConditionsSatisfied(gt, variables, five))
	assert.True(t, ConditionsSatisfied(lte, variables, five))
	assert.False(t, ConditionsSatisfied(lte, variables, six))
	assert.False(t, ConditionsSatisfied(eq, variables, five))
}

func TestConditionsSatisfiedAndSemantics(t *testing.T) {
	variables := map[string]flow.Variable{
		"v-gender": textVar("v-gender"),
		"v-age":    intVar("v-age"),
	}
	conditions := []flow.NodeCondition{
		{VariableID: "v-gender", Operation: flow.OpEqual, ExpectedAnswer: "female"},
		{VariableID: "v-age", Operation: flow.OpGT, ExpectedAnswer: "18"},
	}

	assert.True(t, ConditionsSatisfied(conditions, variables, map[string]flow.ParticipantVariable{
		"v-gender": storedText("v-gender", "Female"),
		"v-age":    storedInt("v-age", 30),
	}))
	assert.False(t, ConditionsSatisfied(conditions, variables, map[string]flow.ParticipantVariable{
		"v-gender": storedText("v-gender", "Female"),
		"v-age":    storedInt("v-age", 12),
	}))
}

func TestAcceptedAnswersFromChoices(t *testing.T) {
	tpl := &flow.MessageTemplate{ChoicesEN: []string{"Yes", "No"}, ChoicesES: []string{"Sí", "No"}}

	accepted := acceptedAnswers(tpl, "yes")
	assert.Contains(t, accepted, "yes")
	assert.Contains(t, accepted, "no")
	assert.Contains(t, accepted, "sí")
	assert.NotContains(t, accepted, "maybe")
}

func TestAcceptedAnswersNumericRange(t *testing.T) {
	tpl := &flow.MessageTemplate{ChoicesEN: []string{"Yes", "No"}}

	// A numeric answer in 1..10 is accepted even against a yes/no poll.
	accepted := acceptedAnswers(tpl, "7")
	assert.Contains(t, accepted, "7")

	accepted = acceptedAnswers(tpl, "11")
	assert.NotContains(t, accepted, "11")
}

func TestAcceptedAnswersUniversalFallback(t *testing.T) {
	tpl := &flow.MessageTemplate{}

	accepted := acceptedAnswers(tpl, "whatever")
	assert.Contains(t, accepted, "yes")
	assert.Contains(t, accepted, "no")
	assert.Contains(t, accepted, "1")
	assert.Contains(t, accepted, "10")
	assert.NotContains(t, accepted, "whatever")
}
