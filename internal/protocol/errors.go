package protocol

import "errors"

// Protocol errors.
//
// The executor returns these (possibly wrapped) so transports can map them
// to a status with StatusCode or check them with errors.Is.
var (
	// ErrProtocol is returned when a command frame is empty or malformed.
	ErrProtocol = errors.New("protocol: malformed command")

	// ErrUnsupportedCommand is returned for an unknown command type byte.
	ErrUnsupportedCommand = errors.New("protocol: unsupported command")

	// ErrNotFound is returned when a command names an id that is not registered.
	ErrNotFound = errors.New("protocol: setting not found")

	// ErrBufferTooSmall is returned when an encoded record does not fit the buffer.
	ErrBufferTooSmall = errors.New("protocol: buffer too small")

	// ErrIO is returned when the response writer fails.
	ErrIO = errors.New("protocol: response write failed")

	// ErrOperationFailed wraps a registry failure during SET or SET_DEFAULT.
	ErrOperationFailed = errors.New("protocol: operation failed")
)
