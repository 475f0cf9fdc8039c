package narrate

import (
	"testing"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestAction(t *testing.T) {
	warfarin := model.EligibilityRule{
		Field:      model.FieldMedication,
		Operator:   model.OpWithinLast,
		Value:      model.Value{"warfarin"},
		TimeWindow: "4 weeks",
	}

	tests := []struct {
		token string
		rule  model.EligibilityRule
		want  string
	}{
		{model.MissingAge, model.EligibilityRule{}, "Add patient age"},
		{model.MissingSex, model.EligibilityRule{}, "Add patient sex"},
		{model.LabToken("hba1c"), model.EligibilityRule{}, "Add lab value: hba1c, include units and date measured"},
		{model.TimelineToken("medications"), warfarin,
			"Add the date for: warfarin, to evaluate the time window (4 weeks)"},
		{model.TimelineToken("history"), model.EligibilityRule{},
			"Add the date for: history, to evaluate the time window"},
		{"genotype.brca1", model.EligibilityRule{}, Generic},
		{"", model.EligibilityRule{}, Generic},
		{"labs.", model.EligibilityRule{}, Generic},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, Action(tt.token, tt.rule))
		})
	}
}

func TestAction_TotalOverEngineTokens(t *testing.T) {
	tokens := []string{
		model.MissingAge, model.MissingSex, model.MissingConditions, model.MissingHistory,
		model.MissingMedications, model.MissingProcedures, model.MissingLabs, model.MissingManualReview,
		model.LabToken("creatinine"),
		model.TimelineToken("history"), model.TimelineToken("medications"), model.TimelineToken("procedures"),
	}
	for _, token := range tokens {
		action := Action(token, model.EligibilityRule{Value: model.Value{"stroke"}})
		assert.NotEmpty(t, action, token)
		assert.NotEqual(t, Generic, action, token)
	}
}
