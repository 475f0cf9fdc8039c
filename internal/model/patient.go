package model

import (
	"encoding/json"
	"time"
)

// PatientProfile is the structured patient state, organized by the rule field taxonomy
type PatientProfile struct {
	ID           string        `json:"id" yaml:"id"`
	Demographics *Demographics `json:"demographics,omitempty" yaml:"demographics,omitempty"`
	Conditions   []string      `json:"conditions,omitempty" yaml:"conditions,omitempty"`   // Diagnosis terms
	History      []DatedTerm   `json:"history,omitempty" yaml:"history,omitempty"`         // Historical events
	Procedures   []DatedTerm   `json:"procedures,omitempty" yaml:"procedures,omitempty"`   // Surgeries, therapies
	Medications  []Medication  `json:"medications,omitempty" yaml:"medications,omitempty"` // Current and past drugs
	Labs         []LabValue    `json:"labs,omitempty" yaml:"labs,omitempty"`               // Measured analytes
	Notes        string        `json:"notes,omitempty" yaml:"notes,omitempty"`             // Free text ("other")
	UpdatedAt    time.Time     `json:"updated_at" yaml:"updated_at"`                       // Staleness marker
}

// Demographics holds age and sex
type Demographics struct {
	Age       *float64   `json:"age,omitempty" yaml:"age,omitempty"`               // Age in years
	BirthDate *time.Time `json:"birth_date,omitempty" yaml:"birth_date,omitempty"` // Used when Age is unset
	Sex       string     `json:"sex,omitempty" yaml:"sex,omitempty"`               // male, female
}

// AgeAt returns the patient's age in years at t, if known
func (d *Demographics) AgeAt(t time.Time) (float64, bool) {
	if d == nil {
		return 0, false
	}
	if d.Age != nil {
		return *d.Age, true
	}
	if d.BirthDate == nil || d.BirthDate.IsZero() {
		return 0, false
	}
	years := t.Year() - d.BirthDate.Year()
	anniversary := d.BirthDate.AddDate(years, 0, 0)
	if t.Before(anniversary) {
		years--
	}
	return float64(years), true
}

// DatedTerm is a term with an optional date of occurrence
type DatedTerm struct {
	Term string     `json:"term" yaml:"term"`
	Date *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
}

// Medication is a drug with optional start and end dates
type Medication struct {
	Term  string     `json:"term" yaml:"term"`
	Start *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// LastTaken returns the most recent date the medication is known to have been taken.
// An ongoing medication (start date, no end date) counts as taken at now.
func (m Medication) LastTaken(now time.Time) (time.Time, bool) {
	if m.End != nil && !m.End.IsZero() {
		return *m.End, true
	}
	if m.Start != nil && !m.Start.IsZero() {
		return now, true
	}
	return time.Time{}, false
}

// LabValue is one measured analyte. Value is kept as text so non-numeric
// results ("positive", "<5") survive round trips.
type LabValue struct {
	Name       string     `json:"name" yaml:"name"`
	Value      Quantity   `json:"value" yaml:"value"`
	Unit       string     `json:"unit,omitempty" yaml:"unit,omitempty"`
	MeasuredAt *time.Time `json:"measured_at,omitempty" yaml:"measured_at,omitempty"`
}

// Quantity is a lab result as written; JSON numbers and strings are both accepted
type Quantity string

// UnmarshalJSON accepts a number or a string
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*q = Quantity(formatNumber(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*q = Quantity(s)
	return nil
}
