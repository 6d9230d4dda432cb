package buffer

import "context"

// Buffer is the connection's shared read buffer. It owns the bytes and a single
// absolute read cursor shared by every consumer sequentially opened on the
// connection. Implementations may grow while filling from the source but never
// hand the same byte out twice.
type Buffer interface {
	// Position returns the absolute read position
	Position() int
	// SetPosition moves the read position within the resident region
	SetPosition(pos int) error
	// ReadUpTo reads at most len(p) bytes, filling from the source only when
	// nothing is resident. May return fewer bytes than requested.
	ReadUpTo(p []byte) (int, error)
	ReadUpToContext(ctx context.Context, p []byte) (int, error)
	// Skip discards n bytes, filling from the source as needed
	Skip(n int) error
	SkipContext(ctx context.Context, n int) error
	// Buffered returns the number of resident unread bytes
	Buffered() int
}
