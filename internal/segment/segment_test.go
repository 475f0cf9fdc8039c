package segment

import (
	"testing"

	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(sentences []Sentence) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out
}

func assertVerbatim(t *testing.T, segs Segments) {
	t.Helper()
	for _, g := range segs.Sentences() {
		require.LessOrEqual(t, g.Offset+len(g.Text), len(segs.Text))
		assert.Equal(t, g.Text, segs.Text[g.Offset:g.Offset+len(g.Text)])
	}
}

func TestSplit_BothMarkers(t *testing.T) {
	text := "Inclusion Criteria:\n- Age 18 years or older.\n- Type 2 diabetes.\n\n" +
		"Exclusion Criteria:\n- Pregnancy.\n- Dialysis within the last 6 months."

	segs := Split(text)

	assert.Equal(t, []string{"Age 18 years or older.", "Type 2 diabetes."}, texts(segs.Inclusion))
	assert.Equal(t, []string{"Pregnancy.", "Dialysis within the last 6 months."}, texts(segs.Exclusion))
	assert.Empty(t, segs.General)
	assertVerbatim(t, segs)
}

func TestSplit_ContentBeforeFirstMarkerIsInclusion(t *testing.T) {
	text := "Adults with asthma.\nExclusion Criteria (Part B):\nCurrent smokers.\nInclusion:\nSigned consent."

	segs := Split(text)

	assert.Equal(t, []string{"Adults with asthma.", "Signed consent."}, texts(segs.Inclusion))
	assert.Equal(t, []string{"Current smokers."}, texts(segs.Exclusion))
}

func TestSplit_SingleMarkerFallsBackToGeneral(t *testing.T) {
	segs := Split("Exclusion: Pregnancy or breastfeeding.")

	require.Len(t, segs.General, 1)
	assert.Empty(t, segs.Inclusion)
	assert.Empty(t, segs.Exclusion)
	assert.Equal(t, "Pregnancy or breastfeeding.", segs.General[0].Text)
	assert.Equal(t, model.Exclusion, segs.General[0].Cue)
	assertVerbatim(t, segs)
}

func TestSplit_NoMarkers(t *testing.T) {
	segs := Split("Patients must be 18 years or older.")

	require.Len(t, segs.General, 1)
	assert.Equal(t, "Patients must be 18 years or older.", segs.General[0].Text)
	assert.Equal(t, 0, segs.General[0].Offset)
	assert.Equal(t, model.Polarity(""), segs.General[0].Cue)
}

func TestSplit_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t\n"} {
		segs := Split(text)
		assert.Empty(t, segs.Sentences(), "text %q", text)
	}
}

func TestSplit_AbbreviationsAndDecimals(t *testing.T) {
	segs := Split("HbA1c between 7.0% and 10.5%, e.g. on metformin. Must sign consent.")

	assert.Equal(t, []string{
		"HbA1c between 7.0% and 10.5%, e.g. on metformin.",
		"Must sign consent.",
	}, texts(segs.General))
	assertVerbatim(t, segs)
}

func TestSplit_ShortSentencesKept(t *testing.T) {
	segs := Split("Inclusion Criteria\nAdults.\nExclusion Criteria\nNone.")

	assert.Equal(t, []string{"Adults."}, texts(segs.Inclusion))
	assert.Equal(t, []string{"None."}, texts(segs.Exclusion))
}

func TestSplit_Enumerations(t *testing.T) {
	segs := Split("1. Age over 18\n2) Signed consent\n(a) Able to swallow tablets\n• Stable dose")

	assert.Equal(t, []string{
		"Age over 18",
		"Signed consent",
		"Able to swallow tablets",
		"Stable dose",
	}, texts(segs.General))
	assertVerbatim(t, segs)
}

func TestSplit_CRLF(t *testing.T) {
	segs := Split("Inclusion Criteria:\r\nAdults.\r\nExclusion Criteria:\r\nPregnancy.\r\n")

	assert.Equal(t, []string{"Adults."}, texts(segs.Inclusion))
	assert.Equal(t, []string{"Pregnancy."}, texts(segs.Exclusion))
}

func TestSplit_HTML(t *testing.T) {
	text := `<p>Inclusion Criteria:</p><ul><li>Age &ge; 18 years</li><li>Signed consent</li></ul>` +
		`<p>Exclusion Criteria:</p><ul><li>Pregnancy</li></ul><script>alert(1)</script>`

	segs := Split(text)

	assert.Equal(t, []string{"Age ≥ 18 years", "Signed consent"}, texts(segs.Inclusion))
	assert.Equal(t, []string{"Pregnancy"}, texts(segs.Exclusion))
	assert.NotContains(t, segs.Text, "alert")
	assert.NotContains(t, segs.Text, "<li>", "offsets refer to the extracted text")
	assertVerbatim(t, segs)
}

func TestSegments_SentencesInTextOrder(t *testing.T) {
	segs := Split("Inclusion Criteria:\nAdults.\nExclusion Criteria:\nPregnancy.\nInclusion Criteria:\nConsent.")

	got := segs.Sentences()
	require.Len(t, got, 3)
	assert.Equal(t, "Adults.", got[0].Text)
	assert.Equal(t, model.Inclusion, got[0].Polarity)
	assert.Equal(t, "Pregnancy.", got[1].Text)
	assert.Equal(t, model.Exclusion, got[1].Polarity)
	assert.Equal(t, "Consent.", got[2].Text)
	assert.False(t, got[2].General)
}

func TestClean_PlainTextUnchanged(t *testing.T) {
	text := "Age < 65 years & BMI > 30"
	assert.Equal(t, text, Clean(text))
}

func TestGrouped_Resolved(t *testing.T) {
	tests := []struct {
		name string
		g    Grouped
		want model.Polarity
	}{
		{"group wins", Grouped{Sentence: Sentence{Text: "Patients are excluded"}, Polarity: model.Inclusion}, model.Inclusion},
		{"exclusion phrasing", Grouped{Sentence: Sentence{Text: "Smokers are not eligible."}, General: true}, model.Exclusion},
		{"default inclusion", Grouped{Sentence: Sentence{Text: "Adults with asthma."}, General: true}, model.Inclusion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.g.Resolved())
		})
	}
}
