package protocol

import (
	"fmt"

	"github.com/mapforge/mapforge/pkg/asset"
)

// CommandKind identifies a command within the closed protocol set.
type CommandKind uint8

const (
	KindPutZone            CommandKind = 0x01
	KindRemoveZone         CommandKind = 0x02
	KindPutToken           CommandKind = 0x03
	KindRemoveToken        CommandKind = 0x04
	KindMoveToken          CommandKind = 0x05
	KindPutLabel           CommandKind = 0x06
	KindRemoveLabel        CommandKind = 0x07
	KindDraw               CommandKind = 0x08
	KindUndoDraw           CommandKind = 0x09
	KindClearDrawings      CommandKind = 0x0A
	KindExposeFog          CommandKind = 0x0B
	KindHideFog            CommandKind = 0x0C
	KindPutAssetMeta       CommandKind = 0x10
	KindGetAsset           CommandKind = 0x11
	KindRemoveAsset        CommandKind = 0x12
	KindSetPolicy          CommandKind = 0x20
	KindChat               CommandKind = 0x21
	KindBootPlayer         CommandKind = 0x22
	KindPlayerConnected    CommandKind = 0x23
	KindPlayerDisconnected CommandKind = 0x24
)

// String returns the string representation of the command kind.
func (k CommandKind) String() string {
	switch k {
	case KindPutZone:
		return "PutZone"
	case KindRemoveZone:
		return "RemoveZone"
	case KindPutToken:
		return "PutToken"
	case KindRemoveToken:
		return "RemoveToken"
	case KindMoveToken:
		return "MoveToken"
	case KindPutLabel:
		return "PutLabel"
	case KindRemoveLabel:
		return "RemoveLabel"
	case KindDraw:
		return "Draw"
	case KindUndoDraw:
		return "UndoDraw"
	case KindClearDrawings:
		return "ClearDrawings"
	case KindExposeFog:
		return "ExposeFog"
	case KindHideFog:
		return "HideFog"
	case KindPutAssetMeta:
		return "PutAssetMeta"
	case KindGetAsset:
		return "GetAsset"
	case KindRemoveAsset:
		return "RemoveAsset"
	case KindSetPolicy:
		return "SetPolicy"
	case KindChat:
		return "Chat"
	case KindBootPlayer:
		return "BootPlayer"
	case KindPlayerConnected:
		return "PlayerConnected"
	case KindPlayerDisconnected:
		return "PlayerDisconnected"
	default:
		return "Unknown"
	}
}

// ErrUnknownCommand is returned when decoding a kind outside the closed set.
type ErrUnknownCommand struct {
	Kind CommandKind
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("protocol: unknown command kind 0x%02x", uint8(e.Kind))
}

// Command is one typed operation in the replication protocol. Each variant
// is a struct carrying that kind's payload; dispatch switches on Kind().
type Command interface {
	Kind() CommandKind
	encodeTo(e *Encoder)
}

// PutZone creates or replaces a zone. Idempotent.
type PutZone struct {
	Zone Zone
}

// RemoveZone removes a zone and everything on it.
type RemoveZone struct {
	Zone GUID
}

// PutToken creates or replaces a token on a zone. Idempotent: resending
// the same token has the same effect as sending it once.
type PutToken struct {
	Zone  GUID
	Token Token
}

// RemoveToken removes a token from a zone.
type RemoveToken struct {
	Zone  GUID
	Token GUID
}

// MoveToken repositions an existing token.
type MoveToken struct {
	Zone  GUID
	Token GUID
	X     int32
	Y     int32
}

// PutLabel creates or replaces a text label on a zone.
type PutLabel struct {
	Zone  GUID
	Label Label
}

// RemoveLabel removes a label from a zone.
type RemoveLabel struct {
	Zone  GUID
	Label GUID
}

// Draw adds a drawing to a zone.
type Draw struct {
	Zone    GUID
	Drawing Drawing
}

// UndoDraw removes a single drawing from a zone.
type UndoDraw struct {
	Zone    GUID
	Drawing GUID
}

// ClearDrawings removes all drawings from a zone.
type ClearDrawings struct {
	Zone GUID
}

// ExposeFog reveals an area of a zone's fog of war.
type ExposeFog struct {
	Zone GUID
	Area []Point
}

// HideFog re-covers an area of a zone's fog of war.
type HideFog struct {
	Zone GUID
	Area []Point
}

// PutAssetMeta announces that the sender holds an asset. Bytes never ride
// in a command; a receiver lacking the ID requests it with GetAsset and
// the bytes stream as AssetStart/AssetChunk frames.
type PutAssetMeta struct {
	ID   asset.ID
	Name string
	Size int64
}

// GetAsset requests an asset's bytes from the peer.
type GetAsset struct {
	ID asset.ID
}

// RemoveAsset drops an asset from the shared session.
type RemoveAsset struct {
	ID asset.ID
}

// SetPolicy replaces the session policy with a new snapshot. Server to
// client only.
type SetPolicy struct {
	Policy ServerPolicy
}

// Chat carries a chat message.
type Chat struct {
	Message TextMessage
}

// BootPlayer ejects a named player from the session. GM only.
type BootPlayer struct {
	Name string
}

// PlayerConnected announces a new roster entry. Server to client only.
type PlayerConnected struct {
	Name string
	Role Role
}

// PlayerDisconnected announces a roster departure. Server to client only.
type PlayerDisconnected struct {
	Name string
}

func (*PutZone) Kind() CommandKind            { return KindPutZone }
func (*RemoveZone) Kind() CommandKind         { return KindRemoveZone }
func (*PutToken) Kind() CommandKind           { return KindPutToken }
func (*RemoveToken) Kind() CommandKind        { return KindRemoveToken }
func (*MoveToken) Kind() CommandKind          { return KindMoveToken }
func (*PutLabel) Kind() CommandKind           { return KindPutLabel }
func (*RemoveLabel) Kind() CommandKind        { return KindRemoveLabel }
func (*Draw) Kind() CommandKind               { return KindDraw }
func (*UndoDraw) Kind() CommandKind           { return KindUndoDraw }
func (*ClearDrawings) Kind() CommandKind      { return KindClearDrawings }
func (*ExposeFog) Kind() CommandKind          { return KindExposeFog }
func (*HideFog) Kind() CommandKind            { return KindHideFog }
func (*PutAssetMeta) Kind() CommandKind       { return KindPutAssetMeta }
func (*GetAsset) Kind() CommandKind           { return KindGetAsset }
func (*RemoveAsset) Kind() CommandKind        { return KindRemoveAsset }
func (*SetPolicy) Kind() CommandKind          { return KindSetPolicy }
func (*Chat) Kind() CommandKind               { return KindChat }
func (*BootPlayer) Kind() CommandKind         { return KindBootPlayer }
func (*PlayerConnected) Kind() CommandKind    { return KindPlayerConnected }
func (*PlayerDisconnected) Kind() CommandKind { return KindPlayerDisconnected }

func (c *PutZone) encodeTo(e *Encoder)    { encodeZone(e, &c.Zone) }
func (c *RemoveZone) encodeTo(e *Encoder) { e.writeGUID(c.Zone) }
func (c *PutToken) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	encodeToken(e, &c.Token)
}
func (c *RemoveToken) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	e.writeGUID(c.Token)
}
func (c *MoveToken) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	e.writeGUID(c.Token)
	e.WriteInt32(c.X)
	e.WriteInt32(c.Y)
}
func (c *PutLabel) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	encodeLabel(e, &c.Label)
}
func (c *RemoveLabel) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	e.writeGUID(c.Label)
}
func (c *Draw) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	encodeDrawing(e, &c.Drawing)
}
func (c *UndoDraw) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	e.writeGUID(c.Drawing)
}
func (c *ClearDrawings) encodeTo(e *Encoder) { e.writeGUID(c.Zone) }
func (c *ExposeFog) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	encodePoints(e, c.Area)
}
func (c *HideFog) encodeTo(e *Encoder) {
	e.writeGUID(c.Zone)
	encodePoints(e, c.Area)
}
func (c *PutAssetMeta) encodeTo(e *Encoder) {
	e.writeAssetID(c.ID)
	e.WriteString(c.Name)
	e.WriteInt64(c.Size)
}
func (c *GetAsset) encodeTo(e *Encoder)    { e.writeAssetID(c.ID) }
func (c *RemoveAsset) encodeTo(e *Encoder) { e.writeAssetID(c.ID) }
func (c *SetPolicy) encodeTo(e *Encoder)   { EncodePolicyTo(e, &c.Policy) }
func (c *Chat) encodeTo(e *Encoder)        { encodeTextMessage(e, &c.Message) }
func (c *BootPlayer) encodeTo(e *Encoder)  { e.WriteString(c.Name) }
func (c *PlayerConnected) encodeTo(e *Encoder) {
	e.WriteString(c.Name)
	e.WriteByte(byte(c.Role))
}
func (c *PlayerDisconnected) encodeTo(e *Encoder) { e.WriteString(c.Name) }

// EncodeCommand encodes a command to bytes: one kind byte followed by the
// kind-specific payload.
func EncodeCommand(c Command) []byte {
	e := NewEncoder()
	e.WriteByte(byte(c.Kind()))
	c.encodeTo(e)
	return e.Bytes()
}

// DecodeCommand decodes a command from bytes. Kinds outside the closed set
// yield *ErrUnknownCommand; callers drop such commands without closing the
// connection.
func DecodeCommand(data []byte) (Command, error) {
	d := NewDecoder(data)
	kindByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	kind := CommandKind(kindByte)

	switch kind {
	case KindPutZone:
		z, err := decodeZone(d)
		if err != nil {
			return nil, err
		}
		return &PutZone{Zone: z}, nil

	case KindRemoveZone:
		g, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		return &RemoveZone{Zone: g}, nil

	case KindPutToken:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		t, err := decodeToken(d)
		if err != nil {
			return nil, err
		}
		return &PutToken{Zone: zone, Token: t}, nil

	case KindRemoveToken:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		tok, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		return &RemoveToken{Zone: zone, Token: tok}, nil

	case KindMoveToken:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		tok, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		x, err := d.ReadInt32()
		if err != nil {
			return nil, err
		}
		y, err := d.ReadInt32()
		if err != nil {
			return nil, err
		}
		return &MoveToken{Zone: zone, Token: tok, X: x, Y: y}, nil

	case KindPutLabel:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		l, err := decodeLabel(d)
		if err != nil {
			return nil, err
		}
		return &PutLabel{Zone: zone, Label: l}, nil

	case KindRemoveLabel:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		lbl, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		return &RemoveLabel{Zone: zone, Label: lbl}, nil

	case KindDraw:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		dr, err := decodeDrawing(d)
		if err != nil {
			return nil, err
		}
		return &Draw{Zone: zone, Drawing: dr}, nil

	case KindUndoDraw:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		dr, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		return &UndoDraw{Zone: zone, Drawing: dr}, nil

	case KindClearDrawings:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		return &ClearDrawings{Zone: zone}, nil

	case KindExposeFog, KindHideFog:
		zone, err := d.readGUID()
		if err != nil {
			return nil, err
		}
		area, err := decodePoints(d)
		if err != nil {
			return nil, err
		}
		if kind == KindExposeFog {
			return &ExposeFog{Zone: zone, Area: area}, nil
		}
		return &HideFog{Zone: zone, Area: area}, nil

	case KindPutAssetMeta:
		id, err := d.readAssetID()
		if err != nil {
			return nil, err
		}
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		size, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		return &PutAssetMeta{ID: id, Name: name, Size: size}, nil

	case KindGetAsset:
		id, err := d.readAssetID()
		if err != nil {
			return nil, err
		}
		return &GetAsset{ID: id}, nil

	case KindRemoveAsset:
		id, err := d.readAssetID()
		if err != nil {
			return nil, err
		}
		return &RemoveAsset{ID: id}, nil

	case KindSetPolicy:
		p, err := DecodePolicyFrom(d)
		if err != nil {
			return nil, err
		}
		return &SetPolicy{Policy: *p}, nil

	case KindChat:
		m, err := decodeTextMessage(d)
		if err != nil {
			return nil, err
		}
		return &Chat{Message: m}, nil

	case KindBootPlayer:
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return &BootPlayer{Name: name}, nil

	case KindPlayerConnected:
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		role, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		return &PlayerConnected{Name: name, Role: Role(role)}, nil

	case KindPlayerDisconnected:
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return &PlayerDisconnected{Name: name}, nil

	default:
		return nil, &ErrUnknownCommand{Kind: kind}
	}
}

// CommandFrame wraps an encoded command in a Command frame.
func CommandFrame(c Command) *Frame {
	return NewFrame(FrameCommand, EncodeCommand(c))
}
