// SPDX-License-Identifier: MIT

// Package adr implements the adaptive deductive reasoning helper: a
// banded suggestion engine with an append-only JSONL trail.
package adr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/x0vs/ethos/internal/log"
)

// Ego-score bands.
const (
	empathicThreshold = 25
	balancedThreshold = 15
)

// Band suggestions, appended to the fused reasoning line.
const (
	pathEmpathic = "Empathic + high-trust solution path likely."
	pathBalanced = "Balanced reasoning with moderate oversight required."
	pathCaution  = "Caution: potential bias or symbolic drift detected. Apply validator."
)

// Entry is one logged resolution.
type Entry struct {
	Timestamp  string `json:"timestamp"`
	HumanQuery string `json:"human_query"`
	AIFinding  string `json:"ai_finding"`
	EgoScore   int    `json:"ego_score"`
	Result     string `json:"adr_result"`
}

// Engine fuses a human query with a machine finding under an ego
// baseline and keeps a JSONL trail of every resolution.
type Engine struct {
	mu      sync.Mutex
	logPath string
	logger  zerolog.Logger
}

// NewEngine builds an engine logging to the given JSONL file.
func NewEngine(logPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("adr: create log dir: %w", err)
	}
	return &Engine{
		logPath: logPath,
		logger:  xlog.WithComponent("adr"),
	}, nil
}

// Resolve produces the banded suggestion for a query/finding pair and
// appends it to the trail.
func (e *Engine) Resolve(query, finding string, egoScore int) (Entry, error) {
	fusion := fmt.Sprintf("To solve: '%s', considering: '%s', with ego baseline: %d/30",
		query, finding, egoScore)

	var path string
	switch {
	case egoScore >= empathicThreshold:
		path = pathEmpathic
	case egoScore >= balancedThreshold:
		path = pathBalanced
	default:
		path = pathCaution
	}

	entry := Entry{
		Timestamp:  time.Now().Format(time.RFC3339Nano),
		HumanQuery: query,
		AIFinding:  finding,
		EgoScore:   egoScore,
		Result:     fmt.Sprintf("ADR: %s → Suggested path: %s", fusion, path),
	}
	if err := e.append(entry); err != nil {
		return Entry{}, err
	}
	e.logger.Debug().Int("ego_score", egoScore).Str("path", path).Msg("resolved")
	return entry, nil
}

// Entries reads the full trail, oldest first.
func (e *Engine) Entries() ([]Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(e.logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("adr: read log: %w", err)
	}

	var out []Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry Entry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("adr: decode log entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (e *Engine) append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := os.OpenFile(e.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("adr: open log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("adr: append log: %w", err)
	}
	return nil
}
