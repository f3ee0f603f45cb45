// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package imprint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// RunStore keeps experiment summaries in badger so past runs survive
// restarts. Keys: "run:<started_at>:<tag>" (JSON value).
type RunStore struct {
	db *badger.DB
}

// OpenRunStore opens (or creates) the store under path.
func OpenRunStore(path string) (*RunStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("imprint: open run store: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close releases the store.
func (s *RunStore) Close() error { return s.db.Close() }

// SaveSummary persists one experiment summary.
func (s *RunStore) SaveSummary(ctx context.Context, sum Summary) error {
	if sum.StartedAt == "" {
		sum.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	key := []byte("run:" + sum.StartedAt + ":" + sum.Tag)
	buf, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// ListSummaries returns every stored summary in key order (chronological,
// since keys lead with the start timestamp).
func (s *RunStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("run:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sum Summary
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sum)
			}); err != nil {
				return err
			}
			out = append(out, sum)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("imprint: list summaries: %w", err)
	}
	return out, nil
}
