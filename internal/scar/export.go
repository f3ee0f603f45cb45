// SPDX-License-Identifier: MIT

package scar

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ExportCSV streams the full ledger as CSV.
func (m *Manager) ExportCSV(ctx context.Context, w io.Writer) error {
	scars, err := m.List(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "ts", "severity", "reason", "file", "bytes", "hash"}); err != nil {
		return fmt.Errorf("scar: write csv header: %w", err)
	}
	for _, s := range scars {
		row := []string{
			strconv.FormatInt(s.ID, 10),
			s.TS,
			s.Severity,
			s.Reason,
			s.File,
			strconv.FormatInt(s.Bytes, 10),
			s.Hash,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("scar: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
