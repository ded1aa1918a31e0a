package protocol

// ErrorCode identifies the type of a reported protocol error.
type ErrorCode uint16

const (
	ErrCodeUnknown        ErrorCode = 0x0000
	ErrCodeInvalidFrame   ErrorCode = 0x0001 // Malformed frame
	ErrCodeInvalidCommand ErrorCode = 0x0002 // Malformed or unknown command
	ErrCodeNotAuthorized  ErrorCode = 0x0003 // Command rejected by policy
	ErrCodeAssetNotFound  ErrorCode = 0x0004 // Producer cannot satisfy a GetAsset
	ErrCodeDigestMismatch ErrorCode = 0x0005 // Reassembled asset failed verification
	ErrCodeInternal       ErrorCode = 0x0100 // Internal error
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrCodeInvalidFrame:
		return "InvalidFrame"
	case ErrCodeInvalidCommand:
		return "InvalidCommand"
	case ErrCodeNotAuthorized:
		return "NotAuthorized"
	case ErrCodeAssetNotFound:
		return "AssetNotFound"
	case ErrCodeDigestMismatch:
		return "DigestMismatch"
	case ErrCodeInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ErrorMessage reports a recoverable protocol error to the peer. Only
// handshake failures close connections; everything else is advisory.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	return em.Code.String() + ": " + em.Message
}

// EncodeErrorMessage encodes an ErrorMessage to bytes.
func EncodeErrorMessage(em *ErrorMessage) []byte {
	e := NewEncoder()
	e.WriteUint16(uint16(em.Code))
	e.WriteString(em.Message)
	return e.Bytes()
}

// DecodeErrorMessage decodes an ErrorMessage from bytes.
func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	d := NewDecoder(data)

	code, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: ErrorCode(code), Message: message}, nil
}

// ErrorFrame builds a complete error frame.
func ErrorFrame(code ErrorCode, message string) *Frame {
	return NewFrame(FrameError, EncodeErrorMessage(&ErrorMessage{Code: code, Message: message}))
}
