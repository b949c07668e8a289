package packet

import "errors"

var (
	ErrUnexpectedLength = errors.New("unexpected packet length")
	ErrUnknownKind      = errors.New("unknown telemetry kind")
)
