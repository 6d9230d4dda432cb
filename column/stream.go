package column

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"pgwire/cancel"
	buf "pgwire/interface/buffer"
	"pgwire/interface/stream"
)

var _ stream.ColumnValue = (*ColumnStream)(nil)

// ColumnStream is a bounded window over the connection's shared read buffer,
// exposing one column's raw bytes without materializing the value. It owns no
// bytes itself: just a (start, length) pair over buffer storage plus a local
// cursor, so every read moves the buffer's single absolute cursor.
//
// One instance lives per connection and is re-armed per column via Init.
// Closing skips whatever the consumer left unread, which is what keeps the
// shared buffer aligned for the next message no matter how much of the value
// was actually consumed.
type ColumnStream struct {
	buf     buf.Buffer
	cancels *cancel.Registry // nil when the connection runs without one

	start    int // absolute buffer position at Init
	length   int
	cursor   int // bytes consumed; may pass length after an unclamped seek
	seekable bool
	closed   bool
}

// NewColumnStream returns an inert stream; Init arms it. A non-nil registry
// makes context reads open a nested cancellable scope on the connection.
func NewColumnStream(b buf.Buffer, cancels *cancel.Registry) *ColumnStream {
	return &ColumnStream{buf: b, cancels: cancels, closed: true}
}

// Init arms the stream over the next length bytes of the buffer. seekable
// must only be set when the caller has already made all length bytes
// resident; it is a promise, not re-verified here.
func (s *ColumnStream) Init(length int, seekable bool) error {
	if length < 0 {
		return fmt.Errorf("%w: negative column length %d", InvalidArgumentError, length)
	}
	s.start = s.buf.Position()
	s.length = length
	s.cursor = 0
	s.seekable = seekable
	s.closed = false
	return nil
}

// Length returns the total bytes the window exposes.
func (s *ColumnStream) Length() (int, error) {
	if s.closed {
		return 0, StreamClosedError
	}
	return s.length, nil
}

// Position returns bytes consumed so far.
func (s *ColumnStream) Position() (int, error) {
	if s.closed {
		return 0, StreamClosedError
	}
	return s.cursor, nil
}

// SetPosition seeks from the start of the window.
func (s *ColumnStream) SetPosition(pos int) error {
	_, err := s.Seek(int64(pos), io.SeekStart)
	return err
}

// bound caps a request to the unread remainder of the window. A zero result
// means the read must not touch the buffer.
func (s *ColumnStream) bound(requested int) (int, error) {
	if s.closed {
		return 0, StreamClosedError
	}
	if requested == 0 {
		return 0, nil
	}
	remaining := s.length - s.cursor
	if remaining <= 0 {
		return 0, io.EOF
	}
	if requested > remaining {
		requested = remaining
	}
	return requested, nil
}

// Read reads up to len(p) bytes of the column value. The buffer may return
// fewer bytes than asked for; the cursor advances only by what arrived.
// Returns io.EOF once the window is exhausted.
func (s *ColumnStream) Read(p []byte) (int, error) {
	n, err := s.bound(len(p))
	if n == 0 {
		return 0, err
	}
	n, err = s.buf.ReadUpTo(p[:n])
	s.cursor += n
	return n, err
}

func (s *ColumnStream) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := s.Read(b[:])
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return b[0], nil
		}
	}
}

// ReadContext is Read with cooperative cancellation. When the connection has
// a cancel registry, the caller's context is nested under it for the duration
// of the delegated read and released on every exit path; the nested scope
// only requests interruption, never a protocol-level cancel.
func (s *ColumnStream) ReadContext(ctx context.Context, p []byte) (int, error) {
	n, err := s.bound(len(p))
	if n == 0 {
		return 0, err
	}
	if s.cancels != nil {
		scope, err := s.cancels.Begin(ctx, false)
		if err != nil {
			return 0, err
		}
		defer scope.Release()
	}
	n, err = s.buf.ReadUpToContext(ctx, p[:n])
	s.cursor += n
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ReadCancelledError, err)
	}
	return n, err
}

// Seek repositions the window. Only valid on seekable windows, whose bytes
// are all resident, so no origin ever triggers network I/O. Targets before
// the window start fail; targets past the end are allowed and simply read as
// exhausted, matching conventional seekable-stream behavior.
func (s *ColumnStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, StreamClosedError
	}
	if !s.seekable {
		return 0, fmt.Errorf("%w: stream is not seekable", NotSupportedError)
	}
	if offset > math.MaxInt32 || offset < math.MinInt32 {
		return 0, fmt.Errorf("%w: offset %d overflows the 32-bit span", OutOfRangeError, offset)
	}
	var target int
	switch whence {
	case io.SeekStart:
		target = s.start + int(offset)
	case io.SeekCurrent:
		target = s.buf.Position() + int(offset)
	case io.SeekEnd:
		target = s.start + s.length + int(offset)
	default:
		return 0, fmt.Errorf("%w: seek whence %d", InvalidArgumentError, whence)
	}
	if target < s.start {
		return 0, fmt.Errorf("%w: target %d before window start %d", OutOfRangeError, target, s.start)
	}
	if target > math.MaxInt32 {
		return 0, fmt.Errorf("%w: target %d overflows the 32-bit span", OutOfRangeError, target)
	}
	if err := s.buf.SetPosition(target); err != nil {
		return 0, err
	}
	s.cursor = target - s.start
	return int64(s.cursor), nil
}

// Write always fails: the window is a read-only view.
func (s *ColumnStream) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("%w: stream is read-only", NotSupportedError)
}

// Close skips the unread remainder so the buffer's absolute position lands at
// exactly start+length, then marks the stream inert. Idempotent. A skip
// failure is returned, not swallowed: losing it would hide a desynchronized
// buffer.
func (s *ColumnStream) Close() error {
	return s.dispose(nil)
}

// CloseContext is Close with the skip performed under ctx; the skip may need
// further network reads when the remainder is not yet resident.
func (s *ColumnStream) CloseContext(ctx context.Context) error {
	return s.dispose(ctx)
}

func (s *ColumnStream) dispose(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if remaining := s.length - s.cursor; remaining > 0 {
		var err error
		if ctx == nil {
			err = s.buf.Skip(remaining)
		} else {
			err = s.buf.SkipContext(ctx, remaining)
		}
		if err != nil {
			return err
		}
	}
	s.closed = true
	return nil
}
