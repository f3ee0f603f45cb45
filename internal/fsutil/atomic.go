// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil provides durable filesystem helpers shared by the ledgers.
package fsutil

import (
	"context"
	"fmt"

	"github.com/google/renameio/v2"

	xlog "github.com/x0vs/ethos/internal/log"
)

// WriteAtomic writes data to path with full durability guarantees using
// renameio: temp file, fsync, atomic rename. A crash mid-write never leaves
// a truncated file behind.
func WriteAtomic(ctx context.Context, path string, data []byte) error {
	logger := xlog.FromContext(ctx)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if not committed.
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("cleanup pending file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}

	// CloseAtomicallyReplace: fsync + rename (durable + atomic)
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
