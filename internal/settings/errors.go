package settings

import "errors"

// Domain errors for the settings package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, settings.ErrAlreadySet) {
//	    // default was provisioned earlier
//	}
//
// Programming errors (unknown id/key on the asserting entry points,
// duplicate registration, adding after load) are not returned: they panic.
var (
	// ErrValueTooLarge is returned when a value or default exceeds the setting's max size.
	ErrValueTooLarge = errors.New("settings: value too large")

	// ErrAlreadySet is returned when provisioning a different default over an existing one.
	ErrAlreadySet = errors.New("settings: default already set")

	// ErrNoDefault is returned when restoring a setting that has no default.
	ErrNoDefault = errors.New("settings: no default")

	// ErrStorage is returned when the persistence collaborator fails to load or write.
	ErrStorage = errors.New("settings: storage failure")

	// ErrInvalidValue is returned when a textual value cannot be parsed for a setting type.
	ErrInvalidValue = errors.New("settings: invalid value")

	// ErrUnknownType is returned when a type name is not recognised.
	ErrUnknownType = errors.New("settings: unknown type")

	// ErrQueueClosed is returned when submitting work to a closed Queue.
	ErrQueueClosed = errors.New("settings: queue closed")
)
