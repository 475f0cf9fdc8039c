// Package segment splits eligibility free text into inclusion and exclusion
// sentence groups.
package segment

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/trialmatch/internal/model"
)

// Sentence is one criterion sentence. Text is a verbatim substring of the
// cleaned eligibility text (Segments.Text) starting at byte Offset. Plain
// text only has its line endings normalized; for HTML input the cleaned text
// is the extracted visible text, so evidence quotes that rather than the
// markup.
type Sentence struct {
	Text   string
	Offset int
	// Cue is the polarity implied by a header marker when the text could not
	// be split into two groups; empty when no marker preceded the sentence.
	Cue model.Polarity
}

// Segments is the segmenter output. Either Inclusion/Exclusion or General is
// populated, never both.
type Segments struct {
	Text      string // Cleaned text all offsets refer to
	Inclusion []Sentence
	Exclusion []Sentence
	General   []Sentence
}

// Sentences returns every sentence in text order with its group polarity
// (empty for General sentences without a cue).
func (s Segments) Sentences() []Grouped {
	out := make([]Grouped, 0, len(s.Inclusion)+len(s.Exclusion)+len(s.General))
	for _, sent := range s.Inclusion {
		out = append(out, Grouped{Sentence: sent, Polarity: model.Inclusion})
	}
	for _, sent := range s.Exclusion {
		out = append(out, Grouped{Sentence: sent, Polarity: model.Exclusion})
	}
	for _, sent := range s.General {
		out = append(out, Grouped{Sentence: sent, Polarity: sent.Cue, General: true})
	}
	sortByOffset(out)
	return out
}

// Grouped is a sentence tagged with the group it came from
type Grouped struct {
	Sentence
	Polarity model.Polarity // Empty for uncued General sentences
	General  bool
}

// Header markers at line start: "Inclusion Criteria", "Exclusion Criteria (Part B):",
// "Exclusion:", "Key Inclusion Criteria".
var markerPattern = regexp.MustCompile(
	`(?im)^[ \t#*\-]*(?:key[ \t]+)?(inclusion|exclusion)(?:[ \t]+criteria)?(?:[ \t]*\([^)\n]{0,40}\))?[ \t]*(?::|$)`)

type marker struct {
	kind       model.Polarity
	start, end int
}

// Split segments raw eligibility text. It never fails: text without usable
// markers degrades to a single General group.
func Split(raw string) Segments {
	text := Clean(raw)
	segs := Segments{Text: text}
	if strings.TrimSpace(text) == "" {
		return segs
	}

	var markers []marker
	seenIncl, seenExcl := false, false
	for _, loc := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		kind := model.Inclusion
		if strings.EqualFold(text[loc[2]:loc[3]], "exclusion") {
			kind = model.Exclusion
			seenExcl = true
		} else {
			seenIncl = true
		}
		markers = append(markers, marker{kind: kind, start: loc[0], end: loc[1]})
	}

	split := seenIncl && seenExcl

	// Content before the first marker
	firstStart := len(text)
	if len(markers) > 0 {
		firstStart = markers[0].start
	}
	pre := splitSentences(text, 0, firstStart, "")
	if split {
		segs.Inclusion = append(segs.Inclusion, pre...)
	} else {
		segs.General = append(segs.General, pre...)
	}

	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		if !split {
			segs.General = append(segs.General, splitSentences(text, m.end, end, m.kind)...)
			continue
		}
		sentences := splitSentences(text, m.end, end, "")
		if m.kind == model.Exclusion {
			segs.Exclusion = append(segs.Exclusion, sentences...)
		} else {
			segs.Inclusion = append(segs.Inclusion, sentences...)
		}
	}

	return segs
}

var (
	// Leading bullets and enumerations: "- ", "• ", "1. ", "2) ", "(a) ", "iv. "
	bulletPattern = regexp.MustCompile(`^(?i:[-*•·–▪◦>]+|\(?\d{1,2}[.)]|\(?[a-z][.)]|\(?[ivx]{1,4}[.)])[ \t]+`)

	abbreviations = map[string]bool{
		"e.g": true, "i.e": true, "vs": true, "etc": true, "approx": true, "dr": true,
		"mr": true, "mrs": true, "ms": true, "no": true, "fig": true, "st": true,
		"inc": true, "incl": true, "max": true, "min": true, "ca": true, "cf": true,
	}
)

// splitSentences splits text[start:end] on newlines and sentence terminators
func splitSentences(text string, start, end int, cue model.Polarity) []Sentence {
	var out []Sentence
	lineStart := start
	for lineStart < end {
		lineEnd := strings.IndexByte(text[lineStart:end], '\n')
		if lineEnd < 0 {
			lineEnd = end
		} else {
			lineEnd += lineStart
		}
		out = append(out, splitLine(text, lineStart, lineEnd, cue)...)
		lineStart = lineEnd + 1
	}
	return out
}

func splitLine(text string, start, end int, cue model.Polarity) []Sentence {
	// Skip leading whitespace and list decoration
	for start < end && (text[start] == ' ' || text[start] == '\t') {
		start++
	}
	if loc := bulletPattern.FindStringIndex(text[start:end]); loc != nil {
		start += loc[1]
	}

	var out []Sentence
	pieceStart := start
	for i := start; i < end; i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < end && text[i+1] != ' ' && text[i+1] != '\t' {
			continue
		}
		if c == '.' && isAbbreviation(text[pieceStart:i]) {
			continue
		}
		if s, ok := makeSentence(text, pieceStart, i+1, cue); ok {
			out = append(out, s)
		}
		pieceStart = i + 1
	}
	if s, ok := makeSentence(text, pieceStart, end, cue); ok {
		out = append(out, s)
	}
	return out
}

func makeSentence(text string, start, end int, cue model.Polarity) (Sentence, bool) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	if start >= end {
		return Sentence{}, false
	}
	return Sentence{Text: text[start:end], Offset: start, Cue: cue}, true
}

// isAbbreviation reports whether the token before a period is an abbreviation
// rather than a sentence end
func isAbbreviation(before string) bool {
	token := before
	if i := strings.LastIndexAny(before, " \t("); i >= 0 {
		token = before[i+1:]
	}
	if token == "" {
		return false
	}
	lower := strings.ToLower(token)
	if abbreviations[lower] {
		return true
	}
	// Single letters ("A.") and dotted tokens ("U.S")
	if len(token) == 1 && isLetter(token[0]) {
		return true
	}
	return strings.Contains(token, ".") && isLetter(token[len(token)-1])
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func sortByOffset(items []Grouped) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Offset < items[j].Offset })
}

var exclusionPhrasing = regexp.MustCompile(
	`(?i)\b(?:excluded|exclusion|not\s+eligible|ineligible|disqualif\w*|will\s+not\s+be\s+(?:enrolled|included|eligible))\b`)

// Resolved returns the sentence's effective polarity: its group or cue, else
// exclusion phrasing in the sentence itself, else INCLUSION.
func (g Grouped) Resolved() model.Polarity {
	if g.Polarity != "" {
		return g.Polarity
	}
	if exclusionPhrasing.MatchString(g.Text) {
		return model.Exclusion
	}
	return model.Inclusion
}
