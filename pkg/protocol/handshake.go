package protocol

import "strings"

// HandshakeStatus is the result of a join attempt.
type HandshakeStatus uint8

const (
	HandshakeOK              HandshakeStatus = 0x00
	HandshakeRefused         HandshakeStatus = 0x01 // Bad credentials
	HandshakeVersionMismatch HandshakeStatus = 0x02 // Incompatible client version
	HandshakeNameInUse       HandshakeStatus = 0x03 // Player name already connected
	HandshakeInvalidFormat   HandshakeStatus = 0x04 // Malformed join request
	HandshakeInternalError   HandshakeStatus = 0x05 // Server error
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeRefused:
		return "Refused"
	case HandshakeVersionMismatch:
		return "VersionMismatch"
	case HandshakeNameInUse:
		return "NameInUse"
	case HandshakeInvalidFormat:
		return "InvalidFormat"
	case HandshakeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Version is the protocol version, negotiated at handshake. Clients and
// servers are compatible when their major versions match.
const Version = "1.0"

// CompatibleVersion reports whether a client version string can speak this
// protocol. Compatibility is decided on the major component only.
func CompatibleVersion(v string) bool {
	major := func(s string) string {
		if i := strings.IndexByte(s, '.'); i >= 0 {
			return s[:i]
		}
		return s
	}
	return v != "" && major(v) == major(Version)
}

// JoinRequest is sent by the client immediately after the transport
// connects. No other frame is accepted before a successful response.
type JoinRequest struct {
	PlayerName     string
	PasswordDigest []byte // SHA-256 of the role password
	Role           Role
	ClientVersion  string
}

// JoinResponse is the server's reply. Policy is present only on OK.
type JoinResponse struct {
	Code    HandshakeStatus
	Message string
	Policy  *ServerPolicy
}

// EncodeJoinRequest encodes a JoinRequest to bytes.
func EncodeJoinRequest(req *JoinRequest) []byte {
	e := NewEncoder()
	e.WriteString(req.PlayerName)
	e.WriteLenBytes(req.PasswordDigest)
	e.WriteByte(byte(req.Role))
	e.WriteString(req.ClientVersion)
	return e.Bytes()
}

// DecodeJoinRequest decodes a JoinRequest from bytes.
func DecodeJoinRequest(data []byte) (*JoinRequest, error) {
	d := NewDecoder(data)
	req := &JoinRequest{}
	var err error

	if req.PlayerName, err = d.ReadString(); err != nil {
		return nil, err
	}
	if req.PasswordDigest, err = d.ReadLenBytes(); err != nil {
		return nil, err
	}
	role, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	req.Role = Role(role)
	if req.ClientVersion, err = d.ReadString(); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeJoinResponse encodes a JoinResponse to bytes.
func EncodeJoinResponse(resp *JoinResponse) []byte {
	e := NewEncoder()
	e.WriteByte(byte(resp.Code))
	e.WriteString(resp.Message)
	e.WriteBool(resp.Policy != nil)
	if resp.Policy != nil {
		EncodePolicyTo(e, resp.Policy)
	}
	return e.Bytes()
}

// DecodeJoinResponse decodes a JoinResponse from bytes.
func DecodeJoinResponse(data []byte) (*JoinResponse, error) {
	d := NewDecoder(data)
	resp := &JoinResponse{}

	code, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	resp.Code = HandshakeStatus(code)

	if resp.Message, err = d.ReadString(); err != nil {
		return nil, err
	}

	hasPolicy, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasPolicy {
		if resp.Policy, err = DecodePolicyFrom(d); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// NewJoinResponse creates a successful response carrying the session policy.
func NewJoinResponse(policy *ServerPolicy) *JoinResponse {
	return &JoinResponse{Code: HandshakeOK, Policy: policy}
}

// NewJoinRefusal creates a failed response with an explanatory message.
func NewJoinRefusal(code HandshakeStatus, message string) *JoinResponse {
	return &JoinResponse{Code: code, Message: message}
}
