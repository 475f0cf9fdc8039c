package gate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trialmatch/internal/model"
)

// GoldCase is one hand-labeled trial: its eligibility text and the rules an
// annotator expects. Gold rules need polarity, field, operator, value and
// evidence_text; ids, offsets and parser identity are ignored.
type GoldCase struct {
	TrialID string                  `yaml:"trial_id"`
	Text    string                  `yaml:"text"`
	Rules   []model.EligibilityRule `yaml:"rules"`
}

// GoldSet is the on-disk gold file
type GoldSet struct {
	Cases []GoldCase `yaml:"cases"`
}

// LoadGold reads a gold set from a YAML file
func LoadGold(path string) (*GoldSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gold set: %w", err)
	}
	return ParseGold(data)
}

// ParseGold decodes a gold set and checks every case carries a trial id and
// every rule carries evidence
func ParseGold(data []byte) (*GoldSet, error) {
	var set GoldSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse gold set: %w", err)
	}

	seen := make(map[string]bool, len(set.Cases))
	for i, c := range set.Cases {
		if strings.TrimSpace(c.TrialID) == "" {
			return nil, fmt.Errorf("gold case %d: missing trial_id", i)
		}
		if seen[c.TrialID] {
			return nil, fmt.Errorf("gold case %d: duplicate trial_id %q", i, c.TrialID)
		}
		seen[c.TrialID] = true
		for j, r := range c.Rules {
			if strings.TrimSpace(r.EvidenceText) == "" {
				return nil, fmt.Errorf("gold case %s rule %d: missing evidence_text", c.TrialID, j)
			}
		}
	}
	return &set, nil
}
