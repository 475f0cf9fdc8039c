// Package narrate turns a missing-data token into an instruction the patient
// or coordinator can act on.
package narrate

import (
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
)

// Generic is returned for tokens without a specific narration
const Generic = "Add more patient data to evaluate this criterion"

var sections = map[string]string{
	model.MissingAge:          "Add patient age",
	model.MissingSex:          "Add patient sex",
	model.MissingConditions:   "Add the patient's diagnosed conditions",
	model.MissingHistory:      "Add the patient's medical history, with dates where known",
	model.MissingMedications:  "Add the patient's current and past medications, with start and end dates",
	model.MissingProcedures:   "Add the patient's procedures and surgeries, with dates",
	model.MissingLabs:         "Add lab results, include units and date measured",
	model.MissingManualReview: "Ask the study team to review this criterion; it cannot be checked automatically",
}

// Action returns the instruction for a missing-field token. The rule supplies
// the term and time window for timeline tokens. Every input yields a non-empty
// instruction.
func Action(missingField string, rule model.EligibilityRule) string {
	if action, ok := sections[missingField]; ok {
		return action
	}

	if name, ok := model.LabFromToken(missingField); ok {
		return "Add lab value: " + name + ", include units and date measured"
	}

	if section, ok := model.SectionFromTimeline(missingField); ok {
		term := strings.Join(rule.Value, ", ")
		if term == "" {
			term = section
		}
		action := "Add the date for: " + term + ", to evaluate the time window"
		if rule.TimeWindow != "" {
			action += " (" + rule.TimeWindow + ")"
		}
		return action
	}

	return Generic
}
