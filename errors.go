// errors.go: error code taxonomy for the bytehot pipeline.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

// Error codes returned via github.com/agilira/go-errors. Every entry in
// the error taxonomy of spec §7 has one code here so callers can branch
// on errors.Code(err) rather than string-matching messages.
const (
	// Watcher (C1)
	ErrCodePathUnreadable     = "BYTEHOT_PATH_UNREADABLE"
	ErrCodeSizeUnstable       = "BYTEHOT_SIZE_UNSTABLE"
	ErrCodeNotificationLost   = "BYTEHOT_NOTIFICATION_DROPPED"
	ErrCodeWatcherBusy        = "BYTEHOT_WATCHER_BUSY"
	ErrCodeWatcherStopped     = "BYTEHOT_WATCHER_STOPPED"
	ErrCodeInvalidWatchConfig = "BYTEHOT_INVALID_WATCH_CONFIG"

	// Analyzer (C2)
	ErrCodeBytesMalformed = "BYTEHOT_BYTES_MALFORMED"
	ErrCodeIOReadFailed   = "BYTEHOT_IO_READ_FAILED"

	// Coordinator (C4)
	ErrCodeRuntimeRejected          = "BYTEHOT_RUNTIME_REJECTED"
	ErrCodeClassNotLoaded           = "BYTEHOT_CLASS_NOT_LOADED"
	ErrCodeRedefinitionUnsupported  = "BYTEHOT_REDEFINITION_UNSUPPORTED"
	ErrCodeTransientIO              = "BYTEHOT_TRANSIENT_IO"
	ErrCodeRedefinitionInFlight     = "BYTEHOT_REDEFINITION_IN_FLIGHT"

	// Updater (C5)
	ErrCodeInstanceRefreshFailed = "BYTEHOT_INSTANCE_REFRESH_FAILED"
	ErrCodeHookTimeout           = "BYTEHOT_HOOK_TIMEOUT"

	// Event store (C6)
	ErrCodeAppendFailed    = "BYTEHOT_APPEND_FAILED"
	ErrCodeVersionConflict = "BYTEHOT_VERSION_CONFLICT"
	ErrCodeStoreUnhealthy  = "BYTEHOT_STORE_UNHEALTHY"

	// Configuration
	ErrCodeInvalidConfig = "BYTEHOT_INVALID_CONFIG"
)
