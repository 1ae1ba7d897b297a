package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Setting keys.
const (
	KeySearchURL      = "search_url"
	KeyPollIntervalMS = "poll_interval_ms"
	KeyMinScore       = "min_score"
	KeyMaxDetections  = "max_detections"
)

// Settings are the effective operator settings.
type Settings struct {
	SearchURL     string
	PollInterval  time.Duration
	MinScore      float64
	MaxDetections int
}

// Overrides are the stored operator settings. A nil field was never set,
// so zero is a valid stored value.
type Overrides struct {
	SearchURL     *string
	PollInterval  *time.Duration
	MinScore      *float64
	MaxDetections *int
}

// Apply returns base with every set field of o applied.
func (o Overrides) Apply(base Settings) Settings {
	if o.SearchURL != nil {
		base.SearchURL = *o.SearchURL
	}
	if o.PollInterval != nil {
		base.PollInterval = *o.PollInterval
	}
	if o.MinScore != nil {
		base.MinScore = *o.MinScore
	}
	if o.MaxDetections != nil {
		base.MaxDetections = *o.MaxDetections
	}
	return base
}

// IsKey reports whether key names a setting.
func IsKey(key string) bool {
	switch key {
	case KeySearchURL, KeyPollIntervalMS, KeyMinScore, KeyMaxDetections:
		return true
	}
	return false
}

// SettingsRepository reads and writes the settings table.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the raw value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (r *SettingsRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// All returns every stored key and value.
func (r *SettingsRepository) All() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Load reads the typed overrides. Missing keys stay nil.
func (r *SettingsRepository) Load() (Overrides, error) {
	all, err := r.All()
	if err != nil {
		return Overrides{}, err
	}

	var o Overrides
	if v, ok := all[KeySearchURL]; ok {
		o.SearchURL = &v
	}
	if v, ok := all[KeyPollIntervalMS]; ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Overrides{}, fmt.Errorf("setting %s: %w", KeyPollIntervalMS, err)
		}
		d := time.Duration(ms) * time.Millisecond
		o.PollInterval = &d
	}
	if v, ok := all[KeyMinScore]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Overrides{}, fmt.Errorf("setting %s: %w", KeyMinScore, err)
		}
		o.MinScore = &f
	}
	if v, ok := all[KeyMaxDetections]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Overrides{}, fmt.Errorf("setting %s: %w", KeyMaxDetections, err)
		}
		o.MaxDetections = &n
	}
	return o, nil
}

// Save writes every set field of o and deletes the keys in reset, in one
// transaction. Resetting a key that was never stored is not an error.
func (r *SettingsRepository) Save(o Overrides, reset ...string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, k := range reset {
		if _, err := tx.Exec(`DELETE FROM settings WHERE key = ?`, k); err != nil {
			return fmt.Errorf("reset %s: %w", k, err)
		}
	}

	values := map[string]string{}
	if o.SearchURL != nil {
		values[KeySearchURL] = *o.SearchURL
	}
	if o.PollInterval != nil {
		values[KeyPollIntervalMS] = strconv.FormatInt(o.PollInterval.Milliseconds(), 10)
	}
	if o.MinScore != nil {
		values[KeyMinScore] = strconv.FormatFloat(*o.MinScore, 'f', -1, 64)
	}
	if o.MaxDetections != nil {
		values[KeyMaxDetections] = strconv.Itoa(*o.MaxDetections)
	}

	now := time.Now()
	for k, v := range values {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now,
		); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}

	return tx.Commit()
}
