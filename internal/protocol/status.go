package protocol

import "errors"

// Status bytes reported to remote peers after each command.
const (
	StatusOK           byte = 0x00
	StatusNotSupported byte = 0x06
	StatusNotFound     byte = 0x0A
	StatusFailed       byte = 0x0E
)

// StatusCode maps an executor result to the status byte sent to the peer.
func StatusCode(err error) byte {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrProtocol), errors.Is(err, ErrUnsupportedCommand):
		return StatusNotSupported
	default:
		return StatusFailed
	}
}
