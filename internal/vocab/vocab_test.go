package vocab

import (
	"testing"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Type 2 Diabetes", "type 2 diabetes"},
		{"  breast-feeding ", "breast feeding"},
		{"ＨｂＡ１ｃ", "hba1c"}, // full-width forms fold under NFKC
		{"STRASSE", "strasse"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Key(tt.in), "Key(%q)", tt.in)
	}
}

func TestFindTerms_LongestMatchWins(t *testing.T) {
	matches := FindTerms("History of type 2 diabetes mellitus treated with insulin.")

	require.Len(t, matches, 2)
	assert.Equal(t, "type 2 diabetes", matches[0].Entry.Canonical)
	assert.Equal(t, model.FieldCondition, matches[0].Entry.Field)
	assert.Equal(t, "type 2 diabetes mellitus", matches[0].Text)
	assert.Equal(t, "insulin", matches[1].Entry.Canonical)
	assert.Equal(t, model.FieldMedication, matches[1].Entry.Field)
}

func TestFindTerms_Offsets(t *testing.T) {
	text := "Pregnancy or breastfeeding."
	matches := FindTerms(text)

	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, m.Text, text[m.Start:m.End])
	}
	assert.Equal(t, "pregnancy", matches[0].Entry.Canonical)
	assert.Equal(t, "breastfeeding", matches[1].Entry.Canonical)
	assert.Equal(t, model.FieldHistory, matches[1].Entry.Field)
}

func TestFindTerms_HyphenVariants(t *testing.T) {
	matches := FindTerms("Women who are breast-feeding")
	require.Len(t, matches, 1)
	assert.Equal(t, "breastfeeding", matches[0].Entry.Canonical)
}

func TestFindTerms_WordBoundaries(t *testing.T) {
	// "ast" and "alt" are labs, "tia" must not match inside "initial"
	assert.Empty(t, FindTerms("Initial assessment at baseline"))
}

func TestFindLabs(t *testing.T) {
	matches := FindLabs("Hemoglobin A1c ≥ 7.0% and serum creatinine ≤ 1.5 mg/dL")

	require.Len(t, matches, 2)
	assert.Equal(t, "hba1c", matches[0].Entry.Canonical)
	assert.Equal(t, "creatinine", matches[1].Entry.Canonical)
}

func TestFindLabs_CreatinineClearanceNotCreatinine(t *testing.T) {
	matches := FindLabs("Creatinine clearance < 30 mL/min")
	require.Len(t, matches, 1)
	assert.Equal(t, "creatinine clearance", matches[0].Entry.Canonical)
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "type 2 diabetes", CanonicalTerm("T2DM"))
	assert.Equal(t, "warfarin", CanonicalTerm("Coumadin"))
	assert.Equal(t, "rare thing", CanonicalTerm("Rare  Thing"))
	assert.Equal(t, "hba1c", CanonicalLab("HbA1c"))
	assert.Equal(t, "hba1c", CanonicalLab("Hemoglobin A1c"))
	assert.Equal(t, "troponin", CanonicalLab("Troponin"))
}

func TestTermMatches(t *testing.T) {
	tests := []struct {
		recorded string
		value    string
		want     bool
	}{
		{"Warfarin", "warfarin", true},
		{"coumadin", "warfarin", true},
		{"T2DM", "type 2 diabetes", true},
		{"poorly controlled type 2 diabetes mellitus", "type 2 diabetes", true},
		{"type 2 diabetes", "diabetes", true},
		{"prediabetes", "diabetes", false},
		{"asthma", "copd", false},
		{"", "asthma", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TermMatches(tt.recorded, tt.value), "TermMatches(%q, %q)", tt.recorded, tt.value)
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, ContainsWord("history of stroke", "stroke"))
	assert.False(t, ContainsWord("heatstroke", "stroke"))
	assert.True(t, ContainsWord("stroke, 2019", "stroke"))
	assert.False(t, ContainsWord("anything", ""))
}
