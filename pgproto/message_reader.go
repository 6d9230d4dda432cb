package pgproto

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	buf "pgwire/interface/buffer"
)

var ProtocolError = errors.New("protocol error")

// MessageReader walks backend messages over the shared read buffer. It only
// frames: type byte plus int32 length (length counts itself), then body
// fields on demand. Decoding column values is the window's consumer's
// business, not ours.
type MessageReader struct {
	buf buf.Buffer
}

func NewMessageReader(b buf.Buffer) *MessageReader {
	return &MessageReader{buf: b}
}

// NextMessage reads the next message header and returns the type byte and the
// body length (the wire length minus the 4 length bytes).
func (m *MessageReader) NextMessage(ctx context.Context) (byte, int, error) {
	var header [5]byte
	if err := m.readFull(ctx, header[:]); err != nil {
		return 0, 0, err
	}
	length := int(int32(binary.BigEndian.Uint32(header[1:])))
	if length < 4 {
		return 0, 0, fmt.Errorf("%w: message length %d", ProtocolError, length)
	}
	return header[0], length - 4, nil
}

func (m *MessageReader) ReadInt16(ctx context.Context) (int16, error) {
	var b [2]byte
	if err := m.readFull(ctx, b[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

func (m *MessageReader) ReadInt32(ctx context.Context) (int32, error) {
	var b [4]byte
	if err := m.readFull(ctx, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// SkipBody discards n body bytes, reading more from the connection as needed.
func (m *MessageReader) SkipBody(ctx context.Context, n int) error {
	return m.buf.SkipContext(ctx, n)
}

// ReadErrorFields parses an ErrorResponse or NoticeResponse body of n bytes:
// repeated (field type byte, null-terminated string), closed by a zero byte.
func (m *MessageReader) ReadErrorFields(ctx context.Context, n int) (map[byte]string, error) {
	body := make([]byte, n)
	if err := m.readFull(ctx, body); err != nil {
		return nil, err
	}
	fields := make(map[byte]string)
	for len(body) > 0 && body[0] != 0 {
		code := body[0]
		body = body[1:]
		end := 0
		for end < len(body) && body[end] != 0 {
			end++
		}
		if end == len(body) {
			return nil, fmt.Errorf("%w: unterminated error field %q", ProtocolError, code)
		}
		fields[code] = string(body[:end])
		body = body[end+1:]
	}
	return fields, nil
}

func (m *MessageReader) readFull(ctx context.Context, p []byte) error {
	for read := 0; read < len(p); {
		n, err := m.buf.ReadUpToContext(ctx, p[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}
