package stream

import (
	"context"
	"io"
)

// ColumnValue is the capability set handed to a column consumer: bounded read
// over the raw value bytes, optional seek, no write. One logical owner at a
// time; not safe for concurrent use.
type ColumnValue interface {
	io.Reader
	io.ByteReader
	io.Seeker
	io.Closer

	ReadContext(ctx context.Context, p []byte) (int, error)
	CloseContext(ctx context.Context) error

	// Length returns the total number of bytes the value exposes
	Length() (int, error)
	// Position returns bytes consumed so far
	Position() (int, error)
	// SetPosition seeks from the start of the value
	SetPosition(pos int) error
}
