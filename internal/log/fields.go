// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRecordID  = "record_id"
	FieldScarID    = "scar_id"
	FieldServerID  = "server_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Regulation fields
	FieldSin       = "sin"
	FieldScore     = "score"
	FieldThreshold = "threshold"

	// Ledger fields
	FieldDigest   = "digest"
	FieldSeverity = "severity"

	// Path / network fields
	FieldPath = "path"
	FieldPort = "port"
)
