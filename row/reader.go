package row

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pgwire/buffer"
	"pgwire/cancel"
	"pgwire/column"
	"pgwire/config"
	"pgwire/pgproto"
	"pgwire/util/log"
)

var (
	NoActiveRowError    = errors.New("no active row")
	RowExhaustedError   = errors.New("no columns left in row")
	ResultFinishedError = errors.New("result already finished")
	BackendError        = errors.New("backend error")
)

// Reader iterates DataRow messages of one result and hands out the raw bytes
// of each column through a single reused ColumnStream. Ownership is strictly
// sequential: requesting the next column (or the next row) first closes the
// previous window, whose close skips anything the consumer abandoned, so the
// shared buffer stays aligned on message boundaries regardless of how much of
// each value was read.
type Reader struct {
	buf     *buffer.ReadBuffer
	msgs    *pgproto.MessageReader
	col     *column.ColumnStream
	cancels *cancel.Registry

	colCount  int16
	remaining int16 // column lengths not yet pulled off the wire
	rowOpen   bool
	finished  bool
	tag       string
}

// NewReader builds the harness over one connection's byte stream. cancels may
// be nil; the column stream then runs without nested cancellation scopes.
func NewReader(source io.Reader, cancels *cancel.Registry) *Reader {
	b := buffer.NewReadBuffer(source)
	return &Reader{
		buf:     b,
		msgs:    pgproto.NewMessageReader(b),
		col:     column.NewColumnStream(b, cancels),
		cancels: cancels,
	}
}

// Next advances to the next DataRow. It returns false with a nil error once
// the result set ends (ReadyForQuery), and false with the backend's error for
// an ErrorResponse. Any window still open on the current row is closed first.
func (r *Reader) Next(ctx context.Context) (bool, error) {
	if r.finished {
		return false, ResultFinishedError
	}
	if err := r.finishRow(ctx); err != nil {
		return false, err
	}
	r.buf.Compact()
	for {
		typ, bodyLen, err := r.msgs.NextMessage(ctx)
		if err != nil {
			return false, err
		}
		switch typ {
		case pgproto.MsgDataRow:
			count, err := r.msgs.ReadInt16(ctx)
			if err != nil {
				return false, err
			}
			r.colCount = count
			r.remaining = count
			r.rowOpen = true
			return true, nil
		case pgproto.MsgReadyForQuery:
			if err := r.msgs.SkipBody(ctx, bodyLen); err != nil {
				return false, err
			}
			r.finished = true
			return false, nil
		case pgproto.MsgErrorResponse:
			fields, err := r.msgs.ReadErrorFields(ctx, bodyLen)
			if err != nil {
				return false, err
			}
			r.finished = true
			return false, fmt.Errorf("%w: %s", BackendError, fields[pgproto.FieldMessage])
		case pgproto.MsgCommandComplete:
			fields := make([]byte, bodyLen)
			if err := r.readFull(ctx, fields); err != nil {
				return false, err
			}
			if n := len(fields); n > 0 && fields[n-1] == 0 {
				r.tag = string(fields[:n-1])
			}
		case pgproto.MsgNoticeResponse:
			fields, err := r.msgs.ReadErrorFields(ctx, bodyLen)
			if err != nil {
				return false, err
			}
			log.Warn("backend notice: %s", fields[pgproto.FieldMessage])
		default:
			// RowDescription, ParameterStatus and friends: framing only
			if err := r.msgs.SkipBody(ctx, bodyLen); err != nil {
				return false, err
			}
		}
	}
}

// Columns returns the column count of the current row.
func (r *Reader) Columns() int {
	return int(r.colCount)
}

// Tag returns the CommandComplete tag once the result has finished.
func (r *Reader) Tag() string {
	return r.tag
}

// Column hands out the window over the next column's raw bytes. The previous
// window is closed first; the returned stream stays valid until the next
// Column or Next call. NULL columns come back as zero-length windows with
// null=true. Small values are buffered whole and the window made seekable.
func (r *Reader) Column(ctx context.Context) (stream *column.ColumnStream, null bool, err error) {
	if !r.rowOpen {
		return nil, false, NoActiveRowError
	}
	if r.remaining == 0 {
		return nil, false, RowExhaustedError
	}
	if err := r.col.CloseContext(ctx); err != nil {
		return nil, false, err
	}
	length, err := r.msgs.ReadInt32(ctx)
	if err != nil {
		return nil, false, err
	}
	r.remaining--
	if length == pgproto.NullColumn {
		if err := r.col.Init(0, false); err != nil {
			return nil, false, err
		}
		return r.col, true, nil
	}
	if length < 0 {
		return nil, false, fmt.Errorf("%w: column length %d", pgproto.ProtocolError, length)
	}
	seekable := int(length) <= config.Properties.SeekableColumnSize
	if seekable {
		if err := r.buf.EnsureContext(ctx, int(length)); err != nil {
			return nil, false, err
		}
	}
	if err := r.col.Init(int(length), seekable); err != nil {
		return nil, false, err
	}
	return r.col, false, nil
}

// Close drains the open row and releases the reused window. The underlying
// connection is not closed; it belongs to the caller.
func (r *Reader) Close() error {
	return r.finishRow(nil)
}

// finishRow closes the outstanding window and skips columns never handed out,
// leaving the buffer on the next message boundary. A nil ctx takes the
// blocking path throughout.
func (r *Reader) finishRow(ctx context.Context) error {
	if !r.rowOpen {
		return nil
	}
	if ctx == nil {
		if err := r.col.Close(); err != nil {
			return err
		}
	} else {
		if err := r.col.CloseContext(ctx); err != nil {
			return err
		}
	}
	for ; r.remaining > 0; r.remaining-- {
		length, err := r.readInt32(ctx)
		if err != nil {
			return err
		}
		if length == pgproto.NullColumn {
			continue
		}
		if ctx == nil {
			err = r.buf.Skip(int(length))
		} else {
			err = r.buf.SkipContext(ctx, int(length))
		}
		if err != nil {
			return err
		}
	}
	r.rowOpen = false
	r.colCount = 0
	return nil
}

func (r *Reader) readInt32(ctx context.Context) (int32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.msgs.ReadInt32(ctx)
}

func (r *Reader) readFull(ctx context.Context, p []byte) error {
	for read := 0; read < len(p); {
		n, err := r.buf.ReadUpToContext(ctx, p[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}
