// Package vocab holds the clinical term lists shared by the rule parser and the
// matching engine, and the key normalization both sides compare with.
package vocab

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/trialmatch/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Entry is one canonical term and the surface forms that map to it
type Entry struct {
	Canonical string
	Field     model.Field
	Synonyms  []string
}

// Match is a vocabulary hit inside a sentence. Start and End are byte offsets
// into the searched text.
type Match struct {
	Entry Entry
	Text  string
	Start int
	End   int
}

var (
	termIndex = newIndex(termEntries)
	labIndex  = newIndex(labEntries)
)

// Key normalizes a term for comparison: NFKC, case folded, hyphens as spaces,
// whitespace collapsed.
func Key(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// FindTerms returns condition, medication, procedure and history mentions in
// text, leftmost-longest and non-overlapping.
func FindTerms(text string) []Match {
	return termIndex.find(text)
}

// FindLabs returns lab analyte mentions in text.
func FindLabs(text string) []Match {
	return labIndex.find(text)
}

// LookupTerm resolves a surface form to its vocabulary entry
func LookupTerm(term string) (Entry, bool) {
	e, ok := termIndex.byKey[Key(term)]
	return e, ok
}

// LookupLab resolves a lab name to its vocabulary entry
func LookupLab(name string) (Entry, bool) {
	e, ok := labIndex.byKey[Key(name)]
	return e, ok
}

// CanonicalTerm returns the canonical form of term, or its key when unknown
func CanonicalTerm(term string) string {
	if e, ok := LookupTerm(term); ok {
		return e.Canonical
	}
	return Key(term)
}

// CanonicalLab returns the canonical analyte name, or the key when unknown
func CanonicalLab(name string) string {
	if e, ok := LookupLab(name); ok {
		return e.Canonical
	}
	return Key(name)
}

// TermMatches reports whether a recorded profile term satisfies a rule value:
// same canonical term, or the recorded term contains the value (or one of its
// synonyms) as whole words. Comparison is case-insensitive.
func TermMatches(recorded, value string) bool {
	rk, vk := Key(recorded), Key(value)
	if rk == "" || vk == "" {
		return false
	}
	if rk == vk || CanonicalTerm(rk) == CanonicalTerm(vk) {
		return true
	}
	if ContainsWord(rk, vk) {
		return true
	}
	if e, ok := LookupTerm(vk); ok {
		for _, syn := range e.Synonyms {
			if ContainsWord(rk, Key(syn)) {
				return true
			}
		}
	}
	return false
}

// ContainsWord reports whether needle occurs in haystack on word boundaries
func ContainsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for from := 0; from <= len(haystack)-len(needle); {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// index is a compiled alternation over every synonym of a set of entries
type index struct {
	pattern *regexp.Regexp
	byKey   map[string]Entry
}

func newIndex(entries []Entry) *index {
	byKey := make(map[string]Entry)
	var forms []string
	for _, e := range entries {
		byKey[Key(e.Canonical)] = e
		for _, syn := range e.Synonyms {
			byKey[Key(syn)] = e
			forms = append(forms, syn)
		}
	}

	// Longest forms first so leftmost-first alternation prefers "type 2 diabetes" over "diabetes"
	sort.SliceStable(forms, func(i, j int) bool {
		if len(forms[i]) != len(forms[j]) {
			return len(forms[i]) > len(forms[j])
		}
		return forms[i] < forms[j]
	})

	alts := make([]string, 0, len(forms))
	for _, f := range forms {
		quoted := regexp.QuoteMeta(f)
		quoted = strings.ReplaceAll(quoted, `\-`, `[\s-]?`)
		quoted = strings.ReplaceAll(quoted, "-", `[\s-]?`)
		quoted = strings.ReplaceAll(quoted, " ", `[\s-]+`)
		alts = append(alts, quoted)
	}

	return &index{
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`),
		byKey:   byKey,
	}
}

func (x *index) find(text string) []Match {
	var matches []Match
	for _, loc := range x.pattern.FindAllStringIndex(text, -1) {
		surface := text[loc[0]:loc[1]]
		e, ok := x.byKey[Key(surface)]
		if !ok {
			// Hyphen/space variants the regex allows but the key map lacks
			e, ok = x.byKey[strings.ReplaceAll(Key(surface), " ", "")]
			if !ok {
				continue
			}
		}
		matches = append(matches, Match{Entry: e, Text: surface, Start: loc[0], End: loc[1]})
	}
	return matches
}
