// Package store persists trials, rule sets, patient profiles and the match log
// in SQLite. Documents are stored as JSON next to the columns queries need.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ppiankov/trialmatch/internal/model"
)

var (
	// ErrNotFound is returned for an unknown trial, patient or rule set
	ErrNotFound = errors.New("not found")

	// ErrCorrupt marks a stored row that cannot be decoded; retrying will not help
	ErrCorrupt = errors.New("corrupt stored data")
)

// Fixed width so stored timestamps compare correctly as text
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite-backed rule store, profile store and match log
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trials (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			active_identity TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rule_sets (
			trial_id TEXT NOT NULL REFERENCES trials(id) ON DELETE CASCADE,
			parser_identity TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			parsed_at TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (trial_id, parser_identity)
		)`,
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			trial_id TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			created_at TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_pair ON matches(trial_id, patient_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// PutTrial inserts or replaces a trial's eligibility text, keeping its active identity
func (s *Store) PutTrial(ctx context.Context, trial model.Trial) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trials (id, text, active_identity, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at`,
		trial.ID, trial.Text, trial.ActiveIdentity, trial.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("saving trial %s: %w", trial.ID, err)
	}
	return nil
}

// Trial returns a stored trial
func (s *Store) Trial(ctx context.Context, id string) (*model.Trial, error) {
	var t model.Trial
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, active_identity, updated_at FROM trials WHERE id = ?`, id,
	).Scan(&t.ID, &t.Text, &t.ActiveIdentity, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trial %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading trial %s: %w", id, err)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}

// PendingTrials lists trials with no rule set from identity, or whose text
// changed after that rule set was parsed
func (s *Store) PendingTrials(ctx context.Context, identity string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id FROM trials t
		 LEFT JOIN rule_sets r ON r.trial_id = t.id AND r.parser_identity = ?
		 WHERE r.trial_id IS NULL OR r.parsed_at < t.updated_at
		 ORDER BY t.id`, identity)
	if err != nil {
		return nil, fmt.Errorf("listing pending trials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning pending trial: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveRuleSet stores a rule set. Sets from different parser identities
// coexist; a new set from the same identity replaces the old one.
func (s *Store) SaveRuleSet(ctx context.Context, set *model.RuleSet) error {
	body, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encoding rule set: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rule_sets (trial_id, parser_identity, source_hash, parsed_at, body) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(trial_id, parser_identity) DO UPDATE SET
		   source_hash = excluded.source_hash, parsed_at = excluded.parsed_at, body = excluded.body`,
		set.TrialID, set.ParserIdentity, set.SourceHash, set.ParsedAt.UTC().Format(timeFormat), string(body))
	if err != nil {
		return fmt.Errorf("saving rule set %s/%s: %w", set.TrialID, set.ParserIdentity, err)
	}
	return nil
}

// RuleSet returns the rule set one parser identity produced for a trial
func (s *Store) RuleSet(ctx context.Context, trialID, identity string) (*model.RuleSet, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM rule_sets WHERE trial_id = ? AND parser_identity = ?`, trialID, identity,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule set %s/%s: %w", trialID, identity, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading rule set %s/%s: %w", trialID, identity, err)
	}

	var set model.RuleSet
	if err := json.Unmarshal([]byte(body), &set); err != nil {
		return nil, fmt.Errorf("decoding rule set %s/%s: %w: %w", trialID, identity, ErrCorrupt, err)
	}
	return &set, nil
}

// Identities lists the parser identities with a stored rule set for a trial
func (s *Store) Identities(ctx context.Context, trialID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parser_identity FROM rule_sets WHERE trial_id = ? ORDER BY parser_identity`, trialID)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TrialsParsedBy lists the trials holding a rule set from identity
func (s *Store) TrialsParsedBy(ctx context.Context, identity string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trial_id FROM rule_sets WHERE parser_identity = ? ORDER BY trial_id`, identity)
	if err != nil {
		return nil, fmt.Errorf("listing trials parsed by %s: %w", identity, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning trial id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Activate makes identity's rule set the one matching uses for a trial
func (s *Store) Activate(ctx context.Context, trialID, identity string) error {
	if _, err := s.RuleSet(ctx, trialID, identity); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE trials SET active_identity = ? WHERE id = ?`, identity, trialID)
	if err != nil {
		return fmt.Errorf("activating %s for %s: %w", identity, trialID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trial %s: %w", trialID, ErrNotFound)
	}
	return nil
}

// PutPatient inserts or replaces a patient profile
func (s *Store) PutPatient(ctx context.Context, profile *model.PatientProfile) error {
	body, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding patient: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patients (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		profile.ID, string(body), profile.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("saving patient: %w", err)
	}
	return nil
}

// Patient returns a stored patient profile
func (s *Store) Patient(ctx context.Context, id string) (*model.PatientProfile, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM patients WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}

	var p model.PatientProfile
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decoding patient: %w: %w", ErrCorrupt, err)
	}
	return &p, nil
}

// RecordMatch appends an evaluation to the match log
func (s *Store) RecordMatch(ctx context.Context, rec *model.MatchRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding match record: %w", err)
	}
	sum := rec.Result.Summary
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO matches (id, trial_id, patient_id, tier, created_at, body) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, sum.TrialID, sum.PatientID, string(sum.Tier), rec.CreatedAt.UTC().Format(timeFormat), string(body))
	if err != nil {
		return fmt.Errorf("saving match record: %w", err)
	}
	return nil
}

// Matches returns the match log for a trial and patient, newest first
func (s *Store) Matches(ctx context.Context, trialID, patientID string, limit int) ([]model.MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM matches WHERE trial_id = ? AND patient_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, trialID, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.MatchRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning match record: %w", err)
		}
		var rec model.MatchRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decoding match record: %w: %w", ErrCorrupt, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w: %w", s, ErrCorrupt, err)
	}
	return t, nil
}
