// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID  = "request_id"
	FieldNodeID     = "node_id"
	FieldDeviceID   = "device_id"
	FieldReceiverID = "receiver_id"
	FieldSinkID     = "sink_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldRegistryURL = "registry_url"
	FieldBaseURL     = "base_url"
)
