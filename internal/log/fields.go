// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID    = "job_id"
	FieldHandleID = "handle_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldSubsystem = "subsystem"

	// Media fields
	FieldMedia      = "media"
	FieldCategory   = "category"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldDuration   = "duration"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"

	// Messaging fields
	FieldBroker = "broker"
	FieldTopic  = "topic"
)
