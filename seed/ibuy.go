package seed

import "github.com/candelahq/trellis/flow"

// IBuy builds the keyword-driven shopping flow: welcome, account poll,
// then gender and age polls whose answers pick one of four product
// recommendations.
func IBuy() *flow.ProjectDefinition {
	b := newBuilder(IBuyProjectName, "iBuy keyword flow: account, gender and age branching")

	instantly := b.timing("Instantly", 0, 0, 0, 0)
	short := b.timing("Short", 0, 0, 0, 2)

	varStart := b.variable("Start_Date", flow.VariableTypeDateTime, true)
	varHasAccount := b.variable("HasAccount_Var", flow.VariableTypeText, false)
	varGender := b.variable("Gender_Var", flow.VariableTypeText, false)
	varAge := b.variable("Age_Var", flow.VariableTypeInteger, false)

	tplWelcome := b.broadcast("B_Welcome",
		"Welcome to iBuy! Let's find the best products for you.",
		"¡Bienvenido a iBuy! Busquemos los mejores productos para ti.")
	tplHaveAccount := b.poll("P_HaveAccount",
		"Do you already have an account? (Yes/No)",
		"¿Ya tienes una cuenta? (Sí/No)",
		varHasAccount, []string{"Yes", "No"}, []string{"Sí", "No"})
	tplUseAccount := b.broadcast("B_PleaseUseAccount",
		"Great! Please continue using your existing account.",
		"¡Genial! Por favor sigue usando tu cuenta existente.")
	tplGender := b.poll("P_Gender",
		"What is your gender? (Male/Female)",
		"¿Cuál es tu género? (Masculino/Femenino)",
		varGender, []string{"Male", "Female"}, []string{"Masculino", "Femenino"})
	tplAge := b.poll("P_Age",
		"How old are you? (Enter a number)",
		"¿Cuántos años tienes? (Introduce un número)",
		varAge, numericChoices(5, 90), numericChoices(5, 90))
	tplHome := b.broadcast("B_HomeProducts",
		"We recommend our Home Products for you.",
		"Te recomendamos nuestros productos para el hogar.")
	tplCar := b.broadcast("B_CarProducts",
		"We recommend our Car Products for you.",
		"Te recomendamos nuestros productos para el automóvil.")
	tplClothes := b.broadcast("B_Clothes",
		"We recommend our Clothes collection for you.",
		"Te recomendamos nuestra colección de ropa.")
	tplBeauty := b.broadcast("B_BeautyProducts",
		"We recommend our Beauty Products for you.",
		"Te recomendamos nuestros productos de belleza.")
	tplExit := b.broadcast("B_Exit_iBuy",
		"You have exited the iBuy flow. See you next time!",
		"Has salido del flujo iBuy. ¡Hasta la próxima!")

	nWelcome := b.node("N_Welcome", tplWelcome, instantly, false, flow.StartDate{VariableID: varStart})
	b.node("N_HaveAccount", tplHaveAccount, instantly, false, flow.AfterNode{SourceNodeID: nWelcome})
	nUseAccount := b.node("N_PleaseUseAccount", tplUseAccount, short, true, flow.AfterPoll{SourceTemplateID: tplHaveAccount})
	nGender := b.node("N_Gender", tplGender, instantly, false, flow.AfterPoll{SourceTemplateID: tplHaveAccount})
	b.node("N_Age", tplAge, instantly, false, flow.AfterPoll{SourceTemplateID: tplGender})
	nHome := b.node("N_HomeProducts", tplHome, instantly, true, flow.AfterPoll{SourceTemplateID: tplAge})
	nCar := b.node("N_CarProducts", tplCar, instantly, true, flow.AfterPoll{SourceTemplateID: tplAge})
	nClothes := b.node("N_Clothes", tplClothes, instantly, true, flow.AfterPoll{SourceTemplateID: tplAge})
	nBeauty := b.node("N_BeautyProducts", tplBeauty, instantly, true, flow.AfterPoll{SourceTemplateID: tplAge})
	nExit := b.node("N_Exit_iBuy", tplExit, instantly, true, flow.AfterDateTimeVar{VariableID: varStart})

	b.condition(nUseAccount, varHasAccount, flow.OpEqual, "yes")
	b.condition(nGender, varHasAccount, flow.OpEqual, "no")
	b.condition(nHome, varGender, flow.OpEqual, "female")
	b.condition(nHome, varAge, flow.OpGT, "18")
	b.condition(nCar, varGender, flow.OpEqual, "male")
	b.condition(nCar, varAge, flow.OpGT, "18")
	b.condition(nClothes, varGender, flow.OpEqual, "male")
	b.condition(nClothes, varAge, flow.OpLT, "18")
	b.condition(nBeauty, varGender, flow.OpEqual, "female")
	b.condition(nBeauty, varAge, flow.OpLT, "18")

	b.keyword("Enroll iBuy Flow", "ibuy", flow.ActionActivateParticipant, nWelcome, varStart)
	b.keyword("Exit iBuy Flow", "iexit", flow.ActionDeactivateParticipant, nExit, "")

	return b.def
}
