// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package meaning

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/x0vs/ethos/internal/fsutil"
	"github.com/x0vs/ethos/internal/persistence/sqlite"
)

// Substrate is the durable memory: concept weights plus the consequence
// events that produced them.
type Substrate struct {
	db     *sql.DB
	dbPath string
}

const substrateSchema = `
CREATE TABLE IF NOT EXISTS state (
  concept TEXT PRIMARY KEY,
  weight REAL NOT NULL,
  last_update TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  concept TEXT NOT NULL,
  context TEXT,
  outcome REAL NOT NULL,
  magnitude REAL NOT NULL,
  new_weight REAL NOT NULL,
  cpu REAL, vram REAL, temp REAL, fatigue REAL,
  note TEXT
);
`

// OpenSubstrate initialises the substrate database.
func OpenSubstrate(dbPath string) (*Substrate, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(substrateSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("meaning: ensure schema: %w", err)
	}
	return &Substrate{db: db, dbPath: dbPath}, nil
}

// Close releases the database.
func (s *Substrate) Close() error {
	return s.db.Close()
}

// LoadWeight returns the stored weight for concept, or def if unseen.
func (s *Substrate) LoadWeight(ctx context.Context, concept string, def float64) (float64, error) {
	var w float64
	err := s.db.QueryRowContext(ctx, `SELECT weight FROM state WHERE concept = ?`, concept).Scan(&w)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("meaning: load weight: %w", err)
	}
	return w, nil
}

// SaveWeight upserts the weight for concept.
func (s *Substrate) SaveWeight(ctx context.Context, concept string, weight float64) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (concept, weight, last_update) VALUES (?, ?, ?)
		ON CONFLICT(concept) DO UPDATE SET weight = excluded.weight, last_update = excluded.last_update`,
		concept, weight, ts)
	if err != nil {
		return fmt.Errorf("meaning: save weight: %w", err)
	}
	return nil
}

// Event is one consequence row, including the physiology at update time.
type Event struct {
	TS        string  `json:"ts"`
	Concept   string  `json:"concept"`
	Context   string  `json:"context"`
	Outcome   float64 `json:"outcome"`
	Magnitude float64 `json:"magnitude"`
	NewWeight float64 `json:"new_weight"`
	CPU       float64 `json:"cpu"`
	VRAM      float64 `json:"vram"`
	Temp      float64 `json:"temp"`
	Fatigue   float64 `json:"fatigue"`
	Note      string  `json:"note"`
}

// AppendEvent records one consequence with the current physiology.
func (s *Substrate) AppendEvent(ctx context.Context, e Event) error {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (ts, concept, context, outcome, magnitude, new_weight, cpu, vram, temp, fatigue, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TS, e.Concept, e.Context, e.Outcome, e.Magnitude, e.NewWeight, e.CPU, e.VRAM, e.Temp, e.Fatigue, e.Note)
	if err != nil {
		return fmt.Errorf("meaning: append event: %w", err)
	}
	return nil
}

// StateRow is one concept weight with its last update timestamp.
type StateRow struct {
	Concept    string  `json:"concept"`
	Weight     float64 `json:"weight"`
	LastUpdate string  `json:"last_update"`
}

// State returns every concept weight.
func (s *Substrate) State(ctx context.Context) ([]StateRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT concept, weight, last_update FROM state`)
	if err != nil {
		return nil, fmt.Errorf("meaning: state: %w", err)
	}
	defer rows.Close()

	var out []StateRow
	for rows.Next() {
		var r StateRow
		if err := rows.Scan(&r.Concept, &r.Weight, &r.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events returns every consequence row in insertion order.
func (s *Substrate) Events(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, concept, IFNULL(context,''), outcome, magnitude, new_weight,
		       IFNULL(cpu,0), IFNULL(vram,0), IFNULL(temp,0), IFNULL(fatigue,0), IFNULL(note,'')
		FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("meaning: events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.TS, &e.Concept, &e.Context, &e.Outcome, &e.Magnitude, &e.NewWeight,
			&e.CPU, &e.VRAM, &e.Temp, &e.Fatigue, &e.Note); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportJSON writes {state, events} to path atomically.
func (s *Substrate) ExportJSON(ctx context.Context, path string) error {
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	events, err := s.Events(ctx)
	if err != nil {
		return err
	}
	blob := map[string]any{"state": state, "events": events}
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("meaning: encode export: %w", err)
	}
	return fsutil.WriteAtomic(ctx, path, data)
}

// ExportCSV writes the event log to path atomically.
func (s *Substrate) ExportCSV(ctx context.Context, path string) error {
	events, err := s.Events(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"ts", "concept", "context", "outcome", "magnitude", "new_weight", "cpu", "vram", "temp", "fatigue", "note"}); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{
			e.TS, e.Concept, e.Context,
			formatFloat(e.Outcome), formatFloat(e.Magnitude), formatFloat(e.NewWeight),
			formatFloat(e.CPU), formatFloat(e.VRAM), formatFloat(e.Temp), formatFloat(e.Fatigue),
			e.Note,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsutil.WriteAtomic(ctx, path, []byte(b.String()))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Fingerprint digests the database plus any exported artifacts into one
// identity hash, and returns the per-artifact digests alongside.
func (s *Substrate) Fingerprint(paths ...string) (string, map[string]string, error) {
	h := sha256.New()
	digests := make(map[string]string, len(paths)+1)

	for _, p := range append([]string{s.dbPath}, paths...) {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", nil, fmt.Errorf("meaning: read artifact: %w", err)
		}
		h.Write(data)
		sum := sha256.Sum256(data)
		digests[filepath.Base(p)] = hex.EncodeToString(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil)), digests, nil
}
