package seed

import "github.com/candelahq/trellis/flow"

// LongTermDemo builds a multi-day drip chain compressed to minutes so the
// scheduling can be observed quickly: welcome, then "day 1", "day 2" and a
// "day 3, 09:00" morning reminder, each a timed follow-up of the previous.
func LongTermDemo() *flow.ProjectDefinition {
	b := newBuilder(LongTermDemoProjectName, "Long-term drip demo: multi-day chain compressed to minutes")

	instantly := b.timing("Instantly", 0, 0, 0, 0)
	demoDay := b.timing("Demo_Day", 0, 0, 1, 0)
	demoDay3 := b.timing("Demo_Day3_09h", 0, 0, 2, 0)

	varStart := b.variable("Start_Date", flow.VariableTypeDateTime, true)

	tplWelcome := b.broadcast("LT_Welcome",
		"Welcome to the long-term demo! This simulates messages over several days.",
		"¡Bienvenido a la demo a largo plazo! Esto simula mensajes durante varios días.")
	tplDay1 := b.broadcast("LT_Day1",
		"[Day 1] Thanks for staying with us. This is your first follow-up message.",
		"[Día 1] Gracias por seguir con nosotros. Este es tu primer mensaje de seguimiento.")
	tplDay2 := b.broadcast("LT_Day2",
		"[Day 2] Here is your second follow-up message.",
		"[Día 2] Este es tu segundo mensaje de seguimiento.")
	tplDay3 := b.broadcast("LT_Day3_09h",
		"[Day 3, 09:00] Morning reminder from the long-term demo.",
		"[Día 3, 09:00] Recordatorio matutino de la demo a largo plazo.")

	nStart := b.node("LT_Node_Start", tplWelcome, instantly, false, flow.StartDate{VariableID: varStart})
	nDay1 := b.node("LT_Node_Day1", tplDay1, demoDay, false, flow.AfterNode{SourceNodeID: nStart})
	nDay2 := b.node("LT_Node_Day2", tplDay2, demoDay, false, flow.AfterNode{SourceNodeID: nDay1})
	b.node("LT_Node_Day3_09h", tplDay3, demoDay3, true, flow.AfterNode{SourceNodeID: nDay2})

	b.keyword("Enroll Long-term Demo", "ilongterm", flow.ActionActivateParticipant, nStart, varStart)
	b.keyword("Exit Long-term Demo", "iexit", flow.ActionDeactivateParticipant, "", "")

	return b.def
}
