// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package agents

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/x0vs/ethos/internal/fsutil"
	"github.com/x0vs/ethos/internal/persistence/sqlite"
)

// agentRecord is the on-disk JSON shape: traits plus a [x,y] position.
type agentRecord struct {
	Traits map[string]float64 `json:"traits"`
	Pos    [2]int             `json:"pos"`
}

// persistable filters out server mirrors, which exist only while their
// instance runs.
func (s *Simulation) persistable() []*Agent {
	all := s.Agents()
	out := make([]*Agent, 0, len(all))
	for _, a := range all {
		if a.ServerID == "" {
			out = append(out, a)
		}
	}
	return out
}

// SaveDB writes the population into a sqlite database, replacing any
// previous rows.
func (s *Simulation) SaveDB(ctx context.Context, dbPath string) error {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		traits TEXT NOT NULL,
		pos_x INTEGER NOT NULL,
		pos_y INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("agents: ensure schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agents`); err != nil {
		return fmt.Errorf("agents: clear table: %w", err)
	}
	for _, a := range s.persistable() {
		traits, err := json.Marshal(a.Traits)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agents (traits, pos_x, pos_y) VALUES (?, ?, ?)`,
			string(traits), a.X, a.Y); err != nil {
			return fmt.Errorf("agents: insert agent: %w", err)
		}
	}
	return tx.Commit()
}

// LoadDB replaces the population with the rows stored in a sqlite
// database.
func (s *Simulation) LoadDB(ctx context.Context, dbPath string) error {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT traits, pos_x, pos_y FROM agents ORDER BY id`)
	if err != nil {
		return fmt.Errorf("agents: query agents: %w", err)
	}
	defer rows.Close()

	var loaded []*Agent
	for rows.Next() {
		var raw string
		var x, y int
		if err := rows.Scan(&raw, &x, &y); err != nil {
			return err
		}
		var traits map[string]float64
		if err := json.Unmarshal([]byte(raw), &traits); err != nil {
			return fmt.Errorf("agents: decode traits: %w", err)
		}
		norm, err := NormalizeTraits(traits)
		if err != nil {
			return err
		}
		loaded = append(loaded, &Agent{Traits: norm, X: x, Y: y})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.replaceAgents(loaded)
	return nil
}

// SaveJSON writes the population as a JSON array of {traits, pos}.
func (s *Simulation) SaveJSON(ctx context.Context, path string) error {
	recs := make([]agentRecord, 0)
	for _, a := range s.persistable() {
		recs = append(recs, agentRecord{Traits: a.Traits, Pos: [2]int{a.X, a.Y}})
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteAtomic(ctx, path, data)
}

// LoadJSON replaces the population from a JSON export.
func (s *Simulation) LoadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var recs []agentRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("agents: decode json: %w", err)
	}
	loaded := make([]*Agent, 0, len(recs))
	for _, rec := range recs {
		norm, err := NormalizeTraits(rec.Traits)
		if err != nil {
			return err
		}
		loaded = append(loaded, &Agent{Traits: norm, X: rec.Pos[0], Y: rec.Pos[1]})
	}
	s.replaceAgents(loaded)
	return nil
}

// SaveCSV writes the population as CSV with a trait-keys + x,y header.
func (s *Simulation) SaveCSV(ctx context.Context, path string) error {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	header := append(append([]string{}, TraitKeys...), "x", "y")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, a := range s.persistable() {
		row := make([]string, 0, len(TraitKeys)+2)
		for _, k := range TraitKeys {
			row = append(row, strconv.FormatFloat(a.Traits[k], 'g', -1, 64))
		}
		row = append(row, strconv.Itoa(a.X), strconv.Itoa(a.Y))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return fsutil.WriteAtomic(ctx, path, []byte(buf.String()))
}

// LoadCSV replaces the population from a CSV export.
func (s *Simulation) LoadCSV(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		return fmt.Errorf("agents: decode csv: %w", err)
	}
	if len(rows) == 0 {
		s.replaceAgents(nil)
		return nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, need := range append(append([]string{}, TraitKeys...), "x", "y") {
		if _, ok := col[need]; !ok {
			return fmt.Errorf("agents: csv missing column %q", need)
		}
	}

	loaded := make([]*Agent, 0, len(rows)-1)
	for _, row := range rows[1:] {
		traits := make(map[string]float64, len(TraitKeys))
		for _, k := range TraitKeys {
			v, err := strconv.ParseFloat(row[col[k]], 64)
			if err != nil {
				return fmt.Errorf("agents: csv trait %q: %w", k, err)
			}
			traits[k] = v
		}
		norm, err := NormalizeTraits(traits)
		if err != nil {
			return err
		}
		x, err := strconv.Atoi(row[col["x"]])
		if err != nil {
			return err
		}
		y, err := strconv.Atoi(row[col["y"]])
		if err != nil {
			return err
		}
		loaded = append(loaded, &Agent{Traits: norm, X: x, Y: y})
	}
	s.replaceAgents(loaded)
	return nil
}
