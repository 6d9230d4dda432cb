package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"pgwire/config"
	"pgwire/util/log"
	"time"
)

var (
	PositionOutOfRangeError = errors.New("position outside buffered region")
	BufferSizeLimitError    = errors.New("buffer overrun size limit")
	NegativeCountError      = errors.New("negative byte count")
	UnexpectedEOFError      = io.ErrUnexpectedEOF
)

// ReadBuffer owns the bytes read from one connection and a single absolute
// read cursor. Consumed bytes stay resident until Compact, so the cursor can
// be moved backwards within the region a seekable column was buffered from.
// Not safe for concurrent use: one reader at a time, like the connection it
// wraps.
type ReadBuffer struct {
	source io.Reader
	data   []byte
	rIdx   int // next byte to hand out
	wIdx   int // filled watermark
	base   int // absolute position of data[0]
	max    int
}

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

func NewReadBuffer(source io.Reader) *ReadBuffer {
	return NewReadBufferSize(source, config.Properties.BufferInitSize, config.Properties.BufferMaxSize)
}

func NewReadBufferSize(source io.Reader, initSize, maxSize int) *ReadBuffer {
	if initSize <= 0 {
		initSize = 1
	}
	return &ReadBuffer{
		source: source,
		data:   make([]byte, initSize),
		max:    maxSize,
	}
}

// Position returns the absolute read position: total bytes consumed since the
// connection was opened, independent of compaction.
func (b *ReadBuffer) Position() int {
	return b.base + b.rIdx
}

// SetPosition moves the read cursor. The target must fall inside the resident
// region [base, base+filled]; everything outside it has either been compacted
// away or not yet arrived from the connection.
func (b *ReadBuffer) SetPosition(pos int) error {
	if pos < b.base || pos > b.base+b.wIdx {
		return fmt.Errorf("%w: position %d, buffered region [%d, %d]",
			PositionOutOfRangeError, pos, b.base, b.base+b.wIdx)
	}
	b.rIdx = pos - b.base
	return nil
}

// Buffered returns unread resident bytes.
func (b *ReadBuffer) Buffered() int {
	return b.wIdx - b.rIdx
}

func (b *ReadBuffer) ReadUpTo(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.Buffered() == 0 {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.data[b.rIdx:b.wIdx])
	b.rIdx += n
	return n, nil
}

func (b *ReadBuffer) ReadUpToContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if b.Buffered() == 0 {
		if err := b.fillContext(ctx); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.data[b.rIdx:b.wIdx])
	b.rIdx += n
	return n, nil
}

// Skip discards n bytes, filling from the connection as needed. On success
// the absolute position has advanced by exactly n.
func (b *ReadBuffer) Skip(n int) error {
	return b.skip(nil, n)
}

func (b *ReadBuffer) SkipContext(ctx context.Context, n int) error {
	return b.skip(ctx, n)
}

func (b *ReadBuffer) skip(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: skip %d", NegativeCountError, n)
	}
	for n > 0 {
		if b.Buffered() == 0 {
			var err error
			if ctx == nil {
				err = b.fill()
			} else {
				err = b.fillContext(ctx)
			}
			if err == io.EOF {
				return UnexpectedEOFError
			}
			if err != nil {
				return err
			}
		}
		c := b.Buffered()
		if c > n {
			c = n
		}
		b.rIdx += c
		n -= c
	}
	return nil
}

// Ensure fills from the connection until at least n unread bytes are
// resident.
func (b *ReadBuffer) Ensure(n int) error {
	return b.ensure(nil, n)
}

func (b *ReadBuffer) EnsureContext(ctx context.Context, n int) error {
	return b.ensure(ctx, n)
}

func (b *ReadBuffer) ensure(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: ensure %d", NegativeCountError, n)
	}
	for b.Buffered() < n {
		var err error
		if ctx == nil {
			err = b.fill()
		} else {
			err = b.fillContext(ctx)
		}
		if err == io.EOF {
			return UnexpectedEOFError
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Compact drops consumed bytes so the storage can be reused. The harness
// calls it between rows; never while a seekable column is outstanding, since
// compaction shrinks the region SetPosition may move back into.
func (b *ReadBuffer) Compact() {
	if b.rIdx == 0 {
		return
	}
	copy(b.data, b.data[b.rIdx:b.wIdx])
	b.base += b.rIdx
	b.wIdx -= b.rIdx
	b.rIdx = 0
}

// fill performs one read from the connection, growing storage when full.
func (b *ReadBuffer) fill() error {
	if err := b.ensureSpace(); err != nil {
		return err
	}
	n, err := b.source.Read(b.data[b.wIdx:])
	b.wIdx += n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

// fillContext runs the connection read in a goroutine so the caller's context
// can interrupt the wait. On cancellation the connection's read deadline is
// fired (when the source supports deadlines) and the read is waited out
// before returning, keeping buffer state single-writer.
func (b *ReadBuffer) fillContext(ctx context.Context) error {
	if ctx.Done() == nil {
		return b.fill()
	}
	if err := b.ensureSpace(); err != nil {
		return err
	}
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := b.source.Read(b.data[b.wIdx:])
		done <- result{n, err}
	}()
	var r result
	select {
	case r = <-done:
		b.wIdx += r.n
		if r.n > 0 {
			return nil
		}
		if r.err == nil {
			r.err = io.EOF
		}
		return r.err
	case <-ctx.Done():
		if d, ok := b.source.(deadlineReader); ok {
			_ = d.SetReadDeadline(time.Now())
			r = <-done
			_ = d.SetReadDeadline(time.Time{})
		} else {
			r = <-done
		}
		// keep whatever arrived resident, just don't consume it here
		b.wIdx += r.n
		return ctx.Err()
	}
}

func (b *ReadBuffer) ensureSpace() error {
	if b.wIdx < len(b.data) {
		return nil
	}
	if b.rIdx == b.wIdx && b.rIdx > 0 {
		// fully consumed, reuse in place
		b.Compact()
		return nil
	}
	newCap := len(b.data) * 2
	if newCap > b.max {
		newCap = b.max
	}
	if newCap <= len(b.data) {
		return fmt.Errorf("%w: %d bytes", BufferSizeLimitError, b.max)
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.wIdx])
	log.Debug("read buffer grow: %d -> %d", len(b.data), newCap)
	b.data = grown
	return nil
}
