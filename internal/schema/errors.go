package schema

import "errors"

var (
	// ErrUnsupportedFormat is returned for schema files with an unknown extension.
	ErrUnsupportedFormat = errors.New("schema: unsupported file format")

	// ErrInvalid is returned when a schema fails validation.
	ErrInvalid = errors.New("schema: invalid")
)
