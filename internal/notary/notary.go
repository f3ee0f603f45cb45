// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package notary implements the lounge notarization ledger: an append-only
// SQLite store of content-addressed records, plus a session-only ephemeral
// tier that is never hashed or persisted.
package notary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/x0vs/ethos/internal/cache"
	xlog "github.com/x0vs/ethos/internal/log"
	"github.com/x0vs/ethos/internal/metrics"
	"github.com/x0vs/ethos/internal/persistence/sqlite"
)

// Kinds accepted for notarized records.
const (
	KindWorld = "world"
	KindTool  = "tool"
	KindArt   = "art"
	KindOther = "other"
)

var (
	ErrCreatorRequired = errors.New("notary: creator is required")
	ErrTitleRequired   = errors.New("notary: title is required")
	ErrInvalidKind     = errors.New("notary: invalid kind")
	ErrNotFound        = errors.New("notary: record not found")
)

// Payload is the caller-supplied content to notarize.
type Payload struct {
	CreatorID string   `json:"creator_id"`
	Title     string   `json:"title"`
	Kind      string   `json:"kind"`
	Data      any      `json:"data"`
	Tags      []string `json:"tags,omitempty"`
}

// Record is a notarized ledger row.
type Record struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	CreatorID   string    `json:"creator_id"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"`
	ContentJSON string    `json:"content_json"`
	SHA256      string    `json:"sha256"`
	Tags        []string  `json:"tags,omitempty"`
}

// Ledger persists notarized records.
type Ledger struct {
	db        *sql.DB
	ephemeral cache.Cache
	ttl       time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS notarized (
  id TEXT PRIMARY KEY,
  created_ts REAL NOT NULL,
  creator_id TEXT NOT NULL,
  title TEXT NOT NULL,
  kind TEXT NOT NULL,
  content_json TEXT NOT NULL,
  sha256 TEXT NOT NULL,
  tags TEXT
);
CREATE INDEX IF NOT EXISTS idx_sha ON notarized(sha256);
`

// Open initialises the ledger database and attaches the ephemeral cache.
func Open(dbPath string, ephemeral cache.Cache, ttl time.Duration) (*Ledger, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("notary: ensure schema: %w", err)
	}
	return &Ledger{db: db, ephemeral: ephemeral, ttl: ttl}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// body builds the canonical hashing envelope for a payload. Field set and
// order are fixed; tags default to an empty list so absent and empty hash
// identically.
func body(p Payload) map[string]any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"creator_id": p.CreatorID,
		"title":      p.Title,
		"kind":       p.Kind,
		"data":       p.Data,
		"tags":       tags,
	}
}

func validate(p Payload) error {
	if strings.TrimSpace(p.CreatorID) == "" {
		return ErrCreatorRequired
	}
	if strings.TrimSpace(p.Title) == "" {
		return ErrTitleRequired
	}
	switch p.Kind {
	case KindWorld, KindTool, KindArt, KindOther:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)
	}
}

// Preview computes the digest a payload would receive on notarization,
// without writing anything. The digest is identical on a later Notarize.
func (l *Ledger) Preview(p Payload) (string, error) {
	if err := validate(p); err != nil {
		return "", err
	}
	return Digest(body(p))
}

// Notarize canonicalises, hashes and stores the payload.
func (l *Ledger) Notarize(ctx context.Context, p Payload) (*Record, error) {
	if err := validate(p); err != nil {
		metrics.IncNotaryError("validation")
		return nil, err
	}

	b := body(p)
	cjson, err := CanonicalJSON(b)
	if err != nil {
		metrics.IncNotaryError("canonical")
		return nil, err
	}
	digest, err := Digest(b)
	if err != nil {
		metrics.IncNotaryError("canonical")
		return nil, err
	}

	rec := &Record{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		CreatorID:   p.CreatorID,
		Title:       p.Title,
		Kind:        p.Kind,
		ContentJSON: cjson,
		SHA256:      digest,
		Tags:        p.Tags,
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO notarized (id, created_ts, creator_id, title, kind, content_json, sha256, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		float64(rec.CreatedAt.UnixNano())/1e9,
		rec.CreatorID,
		rec.Title,
		rec.Kind,
		rec.ContentJSON,
		rec.SHA256,
		strings.Join(rec.Tags, ","),
	)
	if err != nil {
		metrics.IncNotaryError("insert")
		return nil, fmt.Errorf("notary: insert: %w", err)
	}

	metrics.IncNotarized(rec.Kind)
	xlog.WithComponentFromContext(ctx, "notary").Info().
		Str(xlog.FieldRecordID, rec.ID).
		Str(xlog.FieldDigest, rec.SHA256).
		Str("kind", rec.Kind).
		Msg("record notarized")

	return rec, nil
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, created_ts, creator_id, title, kind, content_json, sha256, IFNULL(tags,'')
		 FROM notarized ORDER BY created_ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("notary: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindByDigest looks up a record by its SHA-256 digest.
func (l *Ledger) FindByDigest(ctx context.Context, digest string) (*Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, created_ts, creator_id, title, kind, content_json, sha256, IFNULL(tags,'')
		 FROM notarized WHERE sha256 = ? LIMIT 1`, digest)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of notarized records.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notarized`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var rec Record
	var ts float64
	var tags string
	if err := r.Scan(&rec.ID, &ts, &rec.CreatorID, &rec.Title, &rec.Kind, &rec.ContentJSON, &rec.SHA256, &tags); err != nil {
		return Record{}, err
	}
	sec := int64(ts)
	rec.CreatedAt = time.Unix(sec, int64((ts-float64(sec))*1e9))
	if tags != "" {
		rec.Tags = strings.Split(tags, ",")
	}
	return rec, nil
}

// EphemeralEntry is a session-only save. It carries no digest.
type EphemeralEntry struct {
	CreatedAt time.Time `json:"created_at"`
	Payload   Payload   `json:"payload"`
}

// AddEphemeral stores a payload in the session cache only. Nothing is
// hashed or written to the ledger; the entry disappears when its TTL
// expires or the daemon restarts.
func (l *Ledger) AddEphemeral(p Payload) (*EphemeralEntry, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	e := &EphemeralEntry{CreatedAt: time.Now(), Payload: p}
	l.ephemeral.Set(uuid.NewString(), e, l.ttl)
	metrics.SetEphemeralEntries(l.ephemeral.Len())
	return e, nil
}

// EphemeralCount returns the number of live session entries.
func (l *Ledger) EphemeralCount() int {
	return l.ephemeral.Len()
}
