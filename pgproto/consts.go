package pgproto

// Backend message type bytes, per the PostgreSQL frontend/backend protocol.
const (
	MsgDataRow            = 'D'
	MsgRowDescription     = 'T'
	MsgCommandComplete    = 'C'
	MsgEmptyQueryResponse = 'I'
	MsgErrorResponse      = 'E'
	MsgNoticeResponse     = 'N'
	MsgReadyForQuery      = 'Z'
	MsgParameterStatus    = 'S'
	MsgBackendKeyData     = 'K'
)

// NullColumn is the DataRow column length marking a NULL value.
const NullColumn = -1

// CancelRequestCode is the magic request code of a cancel request packet.
const CancelRequestCode = 80877102

// Error and notice field type bytes.
const (
	FieldSeverity = 'S'
	FieldCode     = 'C'
	FieldMessage  = 'M'
	FieldDetail   = 'D'
)
