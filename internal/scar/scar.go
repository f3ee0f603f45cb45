// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scar implements the incident ledger and forgiveness protocol.
// Every scar is a gzip-compressed payload artifact plus a ledger row; a
// scar only disappears through forgiveness, and the forgiveness record
// itself persists forever in a separate database.
package scar

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/x0vs/ethos/internal/fsutil"
	xlog "github.com/x0vs/ethos/internal/log"
	"github.com/x0vs/ethos/internal/metrics"
	"github.com/x0vs/ethos/internal/persistence/sqlite"
)

// Severities accepted for scars.
const (
	SeverityMinor = "minor"
	SeverityMajor = "major"
)

var (
	ErrInvalidSeverity     = errors.New("scar: invalid severity")
	ErrReasonRequired      = errors.New("scar: reason is required")
	ErrScarNotFound        = errors.New("scar: not found")
	ErrSignatureRequired   = errors.New("scar: both signatures are required")
	ErrSignaturesIdentical = errors.New("scar: signatures must be distinct")
)

// Scar is one ledger row. TS keeps the ISO text form it is stored in.
type Scar struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
	File     string `json:"file"`
	Bytes    int64  `json:"bytes"`
	Hash     string `json:"hash"`
}

// Forgiveness is one permanent forgiveness row.
type Forgiveness struct {
	ID     int64  `json:"id"`
	ScarID int64  `json:"scar_id"`
	SigA   string `json:"sig_a"`
	SigB   string `json:"sig_b"`
	TS     string `json:"ts"`
}

// Manager owns the scar ledger, the artifact directory and the forgiveness
// log. Writes are serialised; artifact creation and the ledger insert are
// not transactional across the filesystem boundary, so the migration pass
// on open reconciles what it finds.
type Manager struct {
	mu      sync.Mutex
	ledger  *sql.DB
	forgive *sql.DB
	dir     string
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS scars (
  id INTEGER PRIMARY KEY,
  ts TEXT,
  severity TEXT,
  reason TEXT,
  file TEXT,
  bytes INTEGER,
  hash TEXT
);
`

const forgiveSchema = `
CREATE TABLE IF NOT EXISTS forgiveness (
  id INTEGER PRIMARY KEY,
  scar_id INTEGER,
  sig_a TEXT,
  sig_b TEXT,
  ts TEXT
);
`

// Open prepares both databases and the artifact directory, then runs the
// schema migration (older ledgers may predate the bytes/hash columns).
func Open(ledgerPath, forgivePath, artifactDir string) (*Manager, error) {
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("scar: create artifact dir: %w", err)
	}

	ledger, err := sqlite.Open(ledgerPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	forgive, err := sqlite.Open(forgivePath, sqlite.DefaultConfig())
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	m := &Manager{ledger: ledger, forgive: forgive, dir: artifactDir}
	if err := m.migrate(); err != nil {
		_ = ledger.Close()
		_ = forgive.Close()
		return nil, err
	}
	m.refreshGauges(context.Background())
	return m, nil
}

// Close releases both databases.
func (m *Manager) Close() error {
	err1 := m.ledger.Close()
	err2 := m.forgive.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// migrate ensures both schemas and backfills bytes/hash for rows written
// before those columns existed, reading sizes and digests from the
// artifacts still on disk.
func (m *Manager) migrate() error {
	if _, err := m.ledger.Exec(ledgerSchema); err != nil {
		return fmt.Errorf("scar: ensure ledger schema: %w", err)
	}
	if _, err := m.forgive.Exec(forgiveSchema); err != nil {
		return fmt.Errorf("scar: ensure forgiveness schema: %w", err)
	}

	cols, err := tableColumns(m.ledger, "scars")
	if err != nil {
		return err
	}
	for col, typ := range map[string]string{"file": "TEXT", "bytes": "INTEGER", "hash": "TEXT"} {
		if _, ok := cols[col]; !ok {
			// Tolerate races with a concurrent migration.
			_, _ = m.ledger.Exec(fmt.Sprintf("ALTER TABLE scars ADD COLUMN %s %s", col, typ))
		}
	}

	rows, err := m.ledger.Query(`SELECT id, IFNULL(file,''), IFNULL(bytes,0), IFNULL(hash,'') FROM scars`)
	if err != nil {
		return fmt.Errorf("scar: scan for backfill: %w", err)
	}
	type fix struct {
		id    int64
		bytes int64
		hash  string
	}
	var fixes []fix
	for rows.Next() {
		var id, size int64
		var file, hash string
		if err := rows.Scan(&id, &file, &size, &hash); err != nil {
			rows.Close()
			return err
		}
		if file == "" || (size > 0 && hash != "") {
			continue
		}
		path := filepath.Join(m.dir, file)
		data, err := os.ReadFile(path)
		if err != nil {
			continue // artifact gone, leave the row as-is
		}
		newSize, newHash := size, hash
		if newSize == 0 {
			newSize = int64(len(data))
		}
		if newHash == "" {
			sum := sha256.Sum256(data)
			newHash = hex.EncodeToString(sum[:])
		}
		if newSize != size || newHash != hash {
			fixes = append(fixes, fix{id: id, bytes: newSize, hash: newHash})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, f := range fixes {
		if _, err := m.ledger.Exec(`UPDATE scars SET bytes=?, hash=? WHERE id=?`, f.bytes, f.hash, f.id); err != nil {
			return fmt.Errorf("scar: backfill row %d: %w", f.id, err)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]struct{}, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("scar: table_info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// payload is what gets compressed into the artifact. The digest in the
// ledger covers the JSON form of this struct, pre-compression.
type payload struct {
	Severity string  `json:"severity"`
	Reason   string  `json:"reason"`
	TS       string  `json:"ts"`
	Nonce    float64 `json:"nonce"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Create writes a new scar: gzip artifact first, ledger row second.
func (m *Manager) Create(ctx context.Context, severity, reason string) (*Scar, error) {
	if severity != SeverityMinor && severity != SeverityMajor {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := payload{Severity: severity, Reason: reason, TS: now(), Nonce: rand.Float64()}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("scar: encode payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	digest := hex.EncodeToString(sum[:])

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("scar: compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("scar: compress payload: %w", err)
	}

	name := fmt.Sprintf("scar_%d.json.gz", time.Now().UnixNano())
	path := filepath.Join(m.dir, name)
	if err := fsutil.WriteAtomic(ctx, path, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("scar: write artifact: %w", err)
	}

	s := &Scar{
		TS:       now(),
		Severity: severity,
		Reason:   reason,
		File:     name,
		Bytes:    int64(buf.Len()),
		Hash:     digest,
	}
	res, err := m.ledger.ExecContext(ctx,
		`INSERT INTO scars (ts, severity, reason, file, bytes, hash) VALUES (?, ?, ?, ?, ?, ?)`,
		s.TS, s.Severity, s.Reason, s.File, s.Bytes, s.Hash)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("scar: insert: %w", err)
	}
	s.ID, _ = res.LastInsertId()

	m.refreshGauges(ctx)
	xlog.WithComponentFromContext(ctx, "scar").Info().
		Int64(xlog.FieldScarID, s.ID).
		Str(xlog.FieldSeverity, s.Severity).
		Int64("bytes", s.Bytes).
		Msg("scar created")
	return s, nil
}

// ImportPacket creates a scar from a raw JSON packet, with the import
// defaults applied for absent fields.
func (m *Manager) ImportPacket(ctx context.Context, raw []byte) (*Scar, error) {
	var pkt map[string]any
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return nil, fmt.Errorf("scar: decode packet: %w", err)
	}
	severity := SeverityMinor
	if v, ok := pkt["severity"].(string); ok && v != "" {
		severity = v
	}
	reason := "packet_import"
	if v, ok := pkt["reason"].(string); ok && v != "" {
		reason = v
	}
	return m.Create(ctx, severity, reason)
}

// List returns all scars, newest first.
func (m *Manager) List(ctx context.Context) ([]Scar, error) {
	rows, err := m.ledger.QueryContext(ctx,
		`SELECT id, IFNULL(ts,''), IFNULL(severity,''), IFNULL(reason,''), IFNULL(file,''), IFNULL(bytes,0), IFNULL(hash,'')
		 FROM scars ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("scar: list: %w", err)
	}
	defer rows.Close()

	var out []Scar
	for rows.Next() {
		var s Scar
		if err := rows.Scan(&s.ID, &s.TS, &s.Severity, &s.Reason, &s.File, &s.Bytes, &s.Hash); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns a single scar by id.
func (m *Manager) Get(ctx context.Context, id int64) (*Scar, error) {
	var s Scar
	err := m.ledger.QueryRowContext(ctx,
		`SELECT id, IFNULL(ts,''), IFNULL(severity,''), IFNULL(reason,''), IFNULL(file,''), IFNULL(bytes,0), IFNULL(hash,'')
		 FROM scars WHERE id = ?`, id).
		Scan(&s.ID, &s.TS, &s.Severity, &s.Reason, &s.File, &s.Bytes, &s.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScarNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Forgive removes a scar under the two-signature protocol. The forgiveness
// row is written first and is never deleted; the scar row and its artifact
// go away afterwards.
func (m *Manager) Forgive(ctx context.Context, id int64, sigA, sigB string) error {
	sigA, sigB = strings.TrimSpace(sigA), strings.TrimSpace(sigB)
	if sigA == "" || sigB == "" {
		return ErrSignatureRequired
	}
	if sigA == sigB {
		return ErrSignaturesIdentical
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := m.forgive.ExecContext(ctx,
		`INSERT INTO forgiveness (scar_id, sig_a, sig_b, ts) VALUES (?, ?, ?, ?)`,
		id, sigA, sigB, now()); err != nil {
		return fmt.Errorf("scar: record forgiveness: %w", err)
	}

	if s.File != "" {
		if err := os.Remove(filepath.Join(m.dir, s.File)); err != nil && !os.IsNotExist(err) {
			xlog.WithComponentFromContext(ctx, "scar").Warn().
				Err(err).
				Str(xlog.FieldPath, s.File).
				Msg("artifact removal failed")
		}
	}
	if _, err := m.ledger.ExecContext(ctx, `DELETE FROM scars WHERE id = ?`, id); err != nil {
		return fmt.Errorf("scar: delete row: %w", err)
	}

	metrics.IncForgiveness()
	m.refreshGauges(ctx)
	xlog.WithComponentFromContext(ctx, "scar").Info().
		Int64(xlog.FieldScarID, id).
		Msg("scar forgiven")
	return nil
}

// Forgiveness returns the permanent forgiveness log, newest first.
func (m *Manager) Forgiveness(ctx context.Context) ([]Forgiveness, error) {
	rows, err := m.forgive.QueryContext(ctx,
		`SELECT id, scar_id, IFNULL(sig_a,''), IFNULL(sig_b,''), IFNULL(ts,'') FROM forgiveness ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("scar: forgiveness log: %w", err)
	}
	defer rows.Close()

	var out []Forgiveness
	for rows.Next() {
		var f Forgiveness
		if err := rows.Scan(&f.ID, &f.ScarID, &f.SigA, &f.SigB, &f.TS); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// TotalMass returns the summed artifact size of all open scars.
func (m *Manager) TotalMass(ctx context.Context) (int64, error) {
	var total int64
	err := m.ledger.QueryRowContext(ctx, `SELECT IFNULL(SUM(bytes),0) FROM scars`).Scan(&total)
	return total, err
}

// Count returns the number of open scars.
func (m *Manager) Count(ctx context.Context) (int, error) {
	var n int
	err := m.ledger.QueryRowContext(ctx, `SELECT COUNT(*) FROM scars`).Scan(&n)
	return n, err
}

func (m *Manager) refreshGauges(ctx context.Context) {
	counts := map[string]int{SeverityMinor: 0, SeverityMajor: 0}
	rows, err := m.ledger.QueryContext(ctx, `SELECT severity, COUNT(*) FROM scars GROUP BY severity`)
	if err == nil {
		for rows.Next() {
			var sev string
			var n int
			if rows.Scan(&sev, &n) == nil {
				counts[sev] = n
			}
		}
		rows.Close()
	}
	for sev, n := range counts {
		metrics.SetScars(sev, n)
	}
	if mass, err := m.TotalMass(ctx); err == nil {
		metrics.SetScarMass(mass)
	}
}

// HumanBytes renders a byte count the way the scar status line does.
func HumanBytes(n int64) string {
	v := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if v < 1024 {
			return fmt.Sprintf("%.2f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.2f PB", v)
}
