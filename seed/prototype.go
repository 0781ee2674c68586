package seed

import "github.com/candelahq/trellis/flow"

// Prototype builds the prototype flow: a start broadcast, a yes/no poll
// branching into two broadcasts, a 1–10 rating poll branching on the
// score, and an exit broadcast delivered on iexit.
//
// The exit node carries an AfterDateTimeVar activation on Start_Date,
// which the engine never auto-schedules; it fires only through the iexit
// keyword's node reference.
func Prototype() *flow.ProjectDefinition {
	b := newBuilder(PrototypeProjectName, "Prototype protocol: broadcasts, polls and timed branching")

	instantly := b.timing("Instantly", 0, 0, 0, 0)
	sec10 := b.timing("10_Seconds", 0, 0, 0, 10)
	sec15 := b.timing("15_Seconds", 0, 0, 0, 15)
	sec30 := b.timing("30_Seconds", 0, 0, 0, 30)
	sec45 := b.timing("45_Seconds", 0, 0, 0, 45)
	b.timing("1_Minute", 0, 0, 1, 0)

	varStart := b.variable("Start_Date", flow.VariableTypeDateTime, true)
	varPoll1 := b.variable("Poll_1_Variable", flow.VariableTypeText, false)
	varPoll2 := b.variable("Poll_2_Variable", flow.VariableTypeInteger, false)

	tplB1 := b.broadcast("Broadcast_1",
		"Welcome! This is Broadcast 1.",
		"¡Bienvenido! Este es Broadcast 1.")
	tplB2 := b.broadcast("Broadcast_2",
		"You said Yes. Here is Broadcast 2.",
		"Dijiste Sí. Aquí está Broadcast 2.")
	tplB3 := b.broadcast("Broadcast_3",
		"You said No. Here is Broadcast 3.",
		"Dijiste No. Aquí está Broadcast 3.")
	tplB4 := b.broadcast("Broadcast_4",
		"Thanks for rating 5 or below. Broadcast 4.",
		"Gracias por puntuar 5 o menos. Broadcast 4.")
	tplB5 := b.broadcast("Broadcast_5",
		"Thanks for rating above 5. Broadcast 5.",
		"Gracias por puntuar más de 5. Broadcast 5.")
	tplP1 := b.poll("Poll_1",
		"Do you want to continue? (Yes/No)",
		"¿Quieres continuar? (Sí/No)",
		varPoll1, []string{"Yes", "No"}, []string{"Sí", "No"})
	tplP2 := b.poll("Poll_2",
		"Rate from 1 to 10.",
		"Califica del 1 al 10.",
		varPoll2, numericChoices(1, 10), numericChoices(1, 10))
	tplExit := b.broadcast("Broadcast_Exit",
		"You have exited the prototype flow. Thank you!",
		"Has salido del flujo prototipo. ¡Gracias!")

	nodeStart := b.node("Node_Start", tplB1, instantly, false, flow.StartDate{VariableID: varStart})
	b.node("Node_0", tplP1, sec45, false, flow.AfterNode{SourceNodeID: nodeStart})
	node1 := b.node("Node_1", tplB3, sec15, true, flow.AfterPoll{SourceTemplateID: tplP1})
	node2 := b.node("Node_2", tplB2, sec10, false, flow.AfterPoll{SourceTemplateID: tplP1})
	b.node("Node_3", tplP2, sec30, false, flow.AfterNode{SourceNodeID: node2})
	node4 := b.node("Node_4", tplB4, instantly, true, flow.AfterPoll{SourceTemplateID: tplP2})
	node5 := b.node("Node_5", tplB5, instantly, true, flow.AfterPoll{SourceTemplateID: tplP2})
	nodeExit := b.node("Node_Exit", tplExit, instantly, true, flow.AfterDateTimeVar{VariableID: varStart})

	b.condition(node1, varPoll1, flow.OpEqual, "no")
	b.condition(node2, varPoll1, flow.OpEqual, "yes")
	b.condition(node4, varPoll2, flow.OpLTE, "5")
	b.condition(node5, varPoll2, flow.OpGT, "5")

	b.keyword("Enroll Participant (English)", "iselect", flow.ActionActivateParticipant, nodeStart, varStart)
	b.keyword("Exit Participant", "iexit", flow.ActionDeactivateParticipant, nodeExit, "")

	return b.def
}
