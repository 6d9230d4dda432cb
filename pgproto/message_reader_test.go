package pgproto

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"pgwire/buffer"
)

func message(typ byte, body []byte) []byte {
	out := make([]byte, 5+len(body))
	out[0] = typ
	binary.BigEndian.PutUint32(out[1:], uint32(len(body)+4))
	copy(out[5:], body)
	return out
}

func newReaderOver(raw []byte) *MessageReader {
	return NewMessageReader(buffer.NewReadBufferSize(bytes.NewReader(raw), 8, 4096))
}

func TestMessageReader_NextMessage(t *testing.T) {
	var raw []byte
	raw = append(raw, message(MsgCommandComplete, []byte("SELECT 1\x00"))...)
	raw = append(raw, message(MsgReadyForQuery, []byte{'I'})...)

	m := newReaderOver(raw)
	ctx := context.Background()

	typ, n, err := m.NextMessage(ctx)
	if err != nil || typ != MsgCommandComplete || n != 9 {
		t.Logf("expect CommandComplete body 9, got: %c %d (%v)", typ, n, err)
		t.FailNow()
	}
	if err := m.SkipBody(ctx, n); err != nil {
		t.Logf("skip body failed: %v", err)
		t.FailNow()
	}
	typ, n, err = m.NextMessage(ctx)
	if err != nil || typ != MsgReadyForQuery || n != 1 {
		t.Logf("expect ReadyForQuery body 1, got: %c %d (%v)", typ, n, err)
		t.FailNow()
	}
}

func TestMessageReader_BadLength(t *testing.T) {
	raw := []byte{MsgDataRow, 0, 0, 0, 2}
	m := newReaderOver(raw)
	if _, _, err := m.NextMessage(context.Background()); !errors.Is(err, ProtocolError) {
		t.Logf("expect protocol error, got: %v", err)
		t.FailNow()
	}
}

func TestMessageReader_Ints(t *testing.T) {
	body := []byte{0, 2, 0, 0, 0, 7}
	m := newReaderOver(message(MsgDataRow, body))
	ctx := context.Background()
	if _, _, err := m.NextMessage(ctx); err != nil {
		t.FailNow()
	}
	if v, err := m.ReadInt16(ctx); err != nil || v != 2 {
		t.Logf("expect int16 2, got: %d (%v)", v, err)
		t.FailNow()
	}
	if v, err := m.ReadInt32(ctx); err != nil || v != 7 {
		t.Logf("expect int32 7, got: %d (%v)", v, err)
		t.FailNow()
	}
}

func TestMessageReader_ErrorFields(t *testing.T) {
	body := []byte("SERROR\x00C57014\x00Mcanceling statement due to user request\x00\x00")
	m := newReaderOver(message(MsgErrorResponse, body))
	ctx := context.Background()
	_, n, err := m.NextMessage(ctx)
	if err != nil {
		t.FailNow()
	}
	fields, err := m.ReadErrorFields(ctx, n)
	if err != nil {
		t.Logf("parse failed: %v", err)
		t.FailNow()
	}
	if fields[FieldSeverity] != "ERROR" || fields[FieldCode] != "57014" {
		t.Logf("unexpected fields: %v", fields)
		t.FailNow()
	}
	if fields[FieldMessage] != "canceling statement due to user request" {
		t.Logf("unexpected message: %q", fields[FieldMessage])
		t.FailNow()
	}
}

func TestMessageReader_UnterminatedField(t *testing.T) {
	body := []byte{FieldMessage, 'o', 'o', 'p', 's'}
	m := newReaderOver(message(MsgErrorResponse, body))
	ctx := context.Background()
	_, n, err := m.NextMessage(ctx)
	if err != nil {
		t.FailNow()
	}
	if _, err := m.ReadErrorFields(ctx, n); !errors.Is(err, ProtocolError) {
		t.Logf("expect protocol error, got: %v", err)
		t.FailNow()
	}
}
