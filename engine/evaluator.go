package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/candelahq/trellis/flow"
)

// The evaluator is the pure half of the engine: text resolution, timing
// arithmetic, and condition matching. No I/O, no clock, no store: these
// functions are decision tables the stateful operations consult.

// legacyThreshold is the fixed comparison value used when an integer
// condition's expected answer does not parse. Shipped protocol data
// contains bare "gt"/"lte" conditions that rely on this.
const legacyThreshold = 5

// ResolveText picks the template body for a participant language.
// Spanish ("spanish" or "es", case-insensitive) prefers the Spanish body
// and falls back to English; every other language the reverse. Empty only
// when both bodies are empty.
func ResolveText(tpl *flow.MessageTemplate, language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "spanish" || lang == "es" {
		if tpl.TextES != "" {
			return tpl.TextES
		}
		return tpl.TextEN
	}
	if tpl.TextEN != "" {
		return tpl.TextEN
	}
	return tpl.TextES
}

// TimingToDuration converts a timing offset to a duration. A nil timing
// means "instantly": zero.
func TimingToDuration(t *flow.TimingElement) time.Duration {
	if t == nil {
		return 0
	}
	seconds := t.Days*86400 + t.Hours*3600 + t.Minutes*60 + t.Seconds
	return time.Duration(seconds) * time.Second
}

// ConditionsSatisfied evaluates a node's conditions with AND semantics
// against the participant's stored values. A condition whose variable has
// no stored value fails. An empty condition list passes.
//
// variables maps variable id to definition (for the type check); values
// maps variable id to the participant's stored row.
func ConditionsSatisfied(conditions []flow.NodeCondition, variables map[string]flow.Variable, values map[string]flow.ParticipantVariable) bool {
	for i := range conditions {
		if !conditionMatches(&conditions[i], variables, values) {
			return false
		}
	}
	return true
}

func conditionMatches(c *flow.NodeCondition, variables map[string]flow.Variable, values map[string]flow.ParticipantVariable) bool {
	stored, ok := values[c.VariableID]
	if !ok {
		return false
	}

	variable, ok := variables[c.VariableID]
	if ok && strings.Contains(strings.ToLower(string(variable.Type)), "int") {
		return integerConditionMatches(c, &stored)
	}
	return textConditionMatches(c, &stored)
}

// integerConditionMatches compares the stored integer against the expected
// answer parsed as an integer. When the expected answer does not parse,
// gt and lte fall back to the legacy fixed threshold and every other
// operation fails.
func integerConditionMatches(c *flow.NodeCondition, stored *flow.ParticipantVariable) bool {
	// Integer conditions compare value_int only: an answer that never
	// parsed has no integer meaning, whatever value_text holds.
	if stored.ValueInt == nil {
		return false
	}
	actual := *stored.ValueInt

	expected, err := strconv.ParseInt(strings.TrimSpace(c.ExpectedAnswer), 10, 64)
	if err != nil {
		switch c.Operation {
		case flow.OpGT:
			return actual > legacyThreshold
		case flow.OpLTE:
			return actual <= legacyThreshold
		default:
			return false
		}
	}

	switch c.Operation {
	case flow.OpGT:
		return actual > expected
	case flow.OpGTE:
		return actual >= expected
	case flow.OpLT:
		return actual < expected
	case flow.OpLTE:
		return actual <= expected
	default:
		// equal, and any operation without an integer meaning
		return actual == expected
	}
}

// textConditionMatches lower-cases and trims both sides; every operation
// collapses to equality for text values.
func textConditionMatches(c *flow.NodeCondition, stored *flow.ParticipantVariable) bool {
	actual := strings.ToLower(strings.TrimSpace(stored.ValueText))
	expected := strings.ToLower(strings.TrimSpace(c.ExpectedAnswer))
	return actual == expected
}

// parseAnswerInt parses a poll answer as a base-10 integer
func parseAnswerInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// acceptedAnswers builds the set of values a poll accepts: the union of
// both language choice lists, lower-cased; "1"–"10" when the raw answer
// parses as an integer in that range (rating polls without declared
// choices); and the universal yes/no/1–10 set when the template declares
// no choices at all.
func acceptedAnswers(tpl *flow.MessageTemplate, normalized string) map[string]struct{} {
	accepted := make(map[string]struct{}, len(tpl.ChoicesEN)+len(tpl.ChoicesES))
	for _, c := range tpl.ChoicesEN {
		accepted[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	for _, c := range tpl.ChoicesES {
		accepted[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	if n, err := strconv.Atoi(normalized); err == nil && n >= 1 && n <= 10 {
		for i := 1; i <= 10; i++ {
			accepted[strconv.Itoa(i)] = struct{}{}
		}
	}

	if len(tpl.ChoicesEN) == 0 && len(tpl.ChoicesES) == 0 {
		accepted["yes"] = struct{}{}
		accepted["no"] = struct{}{}
		for i := 1; i <= 10; i++ {
			accepted[strconv.Itoa(i)] = struct{}{}
		}
	}
	return accepted
}
