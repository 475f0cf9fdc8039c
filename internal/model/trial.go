package model

import "time"

// Trial is a registered trial's eligibility text. The active identity names
// the parser generation whose rule set matching uses; it changes only when a
// candidate backend passes the quality gate.
type Trial struct {
	ID             string    `json:"id" yaml:"id"`
	Text           string    `json:"text" yaml:"text"`
	ActiveIdentity string    `json:"active_identity,omitempty" yaml:"active_identity,omitempty"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}
