package protocol

// ControlType identifies the type of control message.
type ControlType uint8

const (
	ControlHeartbeat ControlType = 0x01 // Client liveness, fixed interval
	ControlPing      ControlType = 0x02 // Latency probe
	ControlPong      ControlType = 0x03 // Response to ping
	ControlClose     ControlType = 0x20 // Deliberate session close
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlHeartbeat:
		return "Heartbeat"
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// CloseReason indicates why a connection is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00 // User-initiated leave
	CloseGoingAway      CloseReason = 0x01 // Peer shutting down its end
	CloseBooted         CloseReason = 0x02 // Ejected by the GM
	CloseServerShutdown CloseReason = 0x03 // Server stopping
	CloseError          CloseReason = 0x04 // Protocol or transport fault
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseBooted:
		return "Booted"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Expected reports whether a close with this reason counts as an expected
// disconnect. Unexpected disconnects trigger the client's fallback to a
// personal session.
func (cr CloseReason) Expected() bool {
	return cr != CloseError
}

// Heartbeat is sent client to server on a fixed interval. It carries only
// the sender's identity and is never subject to command authorization.
type Heartbeat struct {
	PlayerName string
}

// PingPong is the payload for Ping and Pong messages.
type PingPong struct {
	Timestamp uint64 // Unix milliseconds
}

// CloseMessage announces a deliberate close before the socket drops.
type CloseMessage struct {
	Reason  CloseReason
	Message string
}

// EncodeControl encodes a control message to bytes.
func EncodeControl(ct ControlType, payload any) []byte {
	e := NewEncoder()
	e.WriteByte(byte(ct))

	switch ct {
	case ControlHeartbeat:
		if hb, ok := payload.(*Heartbeat); ok {
			e.WriteString(hb.PlayerName)
		} else {
			e.WriteString("")
		}

	case ControlPing, ControlPong:
		if pp, ok := payload.(*PingPong); ok {
			e.WriteUint64(pp.Timestamp)
		} else {
			e.WriteUint64(0)
		}

	case ControlClose:
		if cm, ok := payload.(*CloseMessage); ok {
			e.WriteByte(byte(cm.Reason))
			e.WriteString(cm.Message)
		} else {
			e.WriteByte(byte(CloseNormal))
			e.WriteString("")
		}
	}
	return e.Bytes()
}

// DecodeControl decodes a control message, returning its type and payload.
func DecodeControl(data []byte) (ControlType, any, error) {
	d := NewDecoder(data)
	typeByte, err := d.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	ct := ControlType(typeByte)

	switch ct {
	case ControlHeartbeat:
		name, err := d.ReadString()
		if err != nil {
			return ct, nil, err
		}
		return ct, &Heartbeat{PlayerName: name}, nil

	case ControlPing, ControlPong:
		ts, err := d.ReadUint64()
		if err != nil {
			return ct, nil, err
		}
		return ct, &PingPong{Timestamp: ts}, nil

	case ControlClose:
		reason, err := d.ReadByte()
		if err != nil {
			return ct, nil, err
		}
		message, err := d.ReadString()
		if err != nil {
			return ct, nil, err
		}
		return ct, &CloseMessage{Reason: CloseReason(reason), Message: message}, nil

	default:
		return ct, nil, nil
	}
}

// HeartbeatFrame builds a complete heartbeat frame for playerName.
func HeartbeatFrame(playerName string) *Frame {
	return NewFrame(FrameControl, EncodeControl(ControlHeartbeat, &Heartbeat{PlayerName: playerName}))
}

// PingFrame builds a ping control frame carrying a timestamp.
func PingFrame(timestamp uint64) *Frame {
	return NewFrame(FrameControl, EncodeControl(ControlPing, &PingPong{Timestamp: timestamp}))
}

// PongFrame builds the pong response echoing the ping's timestamp.
func PongFrame(timestamp uint64) *Frame {
	return NewFrame(FrameControl, EncodeControl(ControlPong, &PingPong{Timestamp: timestamp}))
}

// CloseFrame builds a complete close frame.
func CloseFrame(reason CloseReason, message string) *Frame {
	return NewFrame(FrameControl, EncodeControl(ControlClose, &CloseMessage{Reason: reason, Message: message}))
}
