package column

import "errors"

var (
	StreamClosedError    = errors.New("column stream is closed")
	NotSupportedError    = errors.New("operation not supported on column stream")
	InvalidArgumentError = errors.New("invalid argument")
	OutOfRangeError      = errors.New("seek target out of range")
	ReadCancelledError   = errors.New("column read cancelled")
)
