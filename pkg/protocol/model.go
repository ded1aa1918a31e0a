package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/mapforge/mapforge/pkg/asset"
)

// GUIDSize is the size of an object identifier in bytes.
const GUIDSize = 16

// GUID identifies a zone, token, label or drawing within a session.
// Unlike asset IDs, GUIDs are random, not content-derived.
type GUID [GUIDSize]byte

// NewGUID returns a cryptographically random GUID.
func NewGUID() GUID {
	var g GUID
	rand.Read(g[:])
	return g
}

// ParseGUID parses a hex-encoded GUID.
func ParseGUID(s string) (GUID, error) {
	var g GUID
	b, err := hex.DecodeString(s)
	if err != nil {
		return g, err
	}
	if len(b) != GUIDSize {
		return g, errors.New("protocol: bad guid length")
	}
	copy(g[:], b)
	return g, nil
}

// String returns the hex encoding of the GUID.
func (g GUID) String() string {
	return hex.EncodeToString(g[:])
}

// IsZero reports whether the GUID is unset.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

func (e *Encoder) writeGUID(g GUID) {
	e.WriteBytes(g[:])
}

func (d *Decoder) readGUID() (GUID, error) {
	var g GUID
	b, err := d.ReadBytes(GUIDSize)
	if err != nil {
		return g, err
	}
	copy(g[:], b)
	return g, nil
}

func (e *Encoder) writeAssetID(id asset.ID) {
	e.WriteBytes(id[:])
}

func (d *Decoder) readAssetID() (asset.ID, error) {
	var id asset.ID
	b, err := d.ReadBytes(asset.IDSize)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// Role determines what a player is allowed to do in a session.
type Role uint8

const (
	RolePlayer Role = 0x00
	RoleGM     Role = 0x01
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "Player"
	case RoleGM:
		return "GM"
	default:
		return "Unknown"
	}
}

// ServerPolicy is an immutable configuration snapshot replicated to every
// client at handshake time and whenever the server updates it. Clients
// treat it read-only; updates arrive as a whole new snapshot.
type ServerPolicy struct {
	// StrictOwnership restricts token commands to the token's owner
	// (GMs bypass the check).
	StrictOwnership bool

	// PlayersCanDraw allows non-GM players to issue drawing commands.
	PlayersCanDraw bool
}

// EncodePolicyTo encodes a ServerPolicy using the provided encoder.
func EncodePolicyTo(e *Encoder, p *ServerPolicy) {
	e.WriteBool(p.StrictOwnership)
	e.WriteBool(p.PlayersCanDraw)
}

// DecodePolicyFrom decodes a ServerPolicy from a decoder.
func DecodePolicyFrom(d *Decoder) (*ServerPolicy, error) {
	strict, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	draw, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &ServerPolicy{StrictOwnership: strict, PlayersCanDraw: draw}, nil
}

// Point is a grid coordinate.
type Point struct {
	X int32
	Y int32
}

// MaxAreaPoints is the largest polygon accepted in a fog area or
// drawing. Points occupy 8 bytes each on the wire, so this is the most
// that fit a single frame alongside the command's fixed fields.
const MaxAreaPoints = 8189

func encodePoint(e *Encoder, p Point) {
	e.WriteInt32(p.X)
	e.WriteInt32(p.Y)
}

func decodePoint(d *Decoder) (Point, error) {
	x, err := d.ReadInt32()
	if err != nil {
		return Point{}, err
	}
	y, err := d.ReadInt32()
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

func encodePoints(e *Encoder, pts []Point) {
	e.WriteUvarint(uint64(len(pts)))
	for _, p := range pts {
		encodePoint(e, p)
	}
}

func decodePoints(d *Decoder) ([]Point, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count > MaxAreaPoints {
		return nil, ErrCollectionTooLarge
	}
	if count == 0 {
		return nil, nil
	}
	pts := make([]Point, count)
	for i := range pts {
		pts[i], err = decodePoint(d)
		if err != nil {
			return nil, err
		}
	}
	return pts, nil
}

// Token is a playing piece placed on a zone. Asset references the token's
// image by content ID; a zero ID means no image.
type Token struct {
	ID    GUID
	Name  string
	X     int32
	Y     int32
	Owner string
	Asset asset.ID
}

func encodeToken(e *Encoder, t *Token) {
	e.writeGUID(t.ID)
	e.WriteString(t.Name)
	e.WriteInt32(t.X)
	e.WriteInt32(t.Y)
	e.WriteString(t.Owner)
	e.writeAssetID(t.Asset)
}

func decodeToken(d *Decoder) (Token, error) {
	var t Token
	var err error
	if t.ID, err = d.readGUID(); err != nil {
		return t, err
	}
	if t.Name, err = d.ReadString(); err != nil {
		return t, err
	}
	if t.X, err = d.ReadInt32(); err != nil {
		return t, err
	}
	if t.Y, err = d.ReadInt32(); err != nil {
		return t, err
	}
	if t.Owner, err = d.ReadString(); err != nil {
		return t, err
	}
	if t.Asset, err = d.readAssetID(); err != nil {
		return t, err
	}
	return t, nil
}

// Zone is a map within a campaign. Tokens, labels and drawings are
// replicated separately; the zone itself carries only its own properties.
type Zone struct {
	ID       GUID
	Name     string
	GridSize int32
	HasFog   bool
}

func encodeZone(e *Encoder, z *Zone) {
	e.writeGUID(z.ID)
	e.WriteString(z.Name)
	e.WriteInt32(z.GridSize)
	e.WriteBool(z.HasFog)
}

func decodeZone(d *Decoder) (Zone, error) {
	var z Zone
	var err error
	if z.ID, err = d.readGUID(); err != nil {
		return z, err
	}
	if z.Name, err = d.ReadString(); err != nil {
		return z, err
	}
	if z.GridSize, err = d.ReadInt32(); err != nil {
		return z, err
	}
	if z.HasFog, err = d.ReadBool(); err != nil {
		return z, err
	}
	return z, nil
}

// Label is a free-floating text annotation on a zone.
type Label struct {
	ID   GUID
	Text string
	X    int32
	Y    int32
}

func encodeLabel(e *Encoder, l *Label) {
	e.writeGUID(l.ID)
	e.WriteString(l.Text)
	e.WriteInt32(l.X)
	e.WriteInt32(l.Y)
}

func decodeLabel(d *Decoder) (Label, error) {
	var l Label
	var err error
	if l.ID, err = d.readGUID(); err != nil {
		return l, err
	}
	if l.Text, err = d.ReadString(); err != nil {
		return l, err
	}
	if l.X, err = d.ReadInt32(); err != nil {
		return l, err
	}
	if l.Y, err = d.ReadInt32(); err != nil {
		return l, err
	}
	return l, nil
}

// Drawing is a freehand polyline drawn on a zone.
type Drawing struct {
	ID     GUID
	Points []Point
	Color  uint32 // 0xRRGGBBAA
	Width  int32
}

func encodeDrawing(e *Encoder, dr *Drawing) {
	e.writeGUID(dr.ID)
	encodePoints(e, dr.Points)
	e.WriteUint32(dr.Color)
	e.WriteInt32(dr.Width)
}

func decodeDrawing(d *Decoder) (Drawing, error) {
	var dr Drawing
	var err error
	if dr.ID, err = d.readGUID(); err != nil {
		return dr, err
	}
	if dr.Points, err = decodePoints(d); err != nil {
		return dr, err
	}
	if dr.Color, err = d.ReadUint32(); err != nil {
		return dr, err
	}
	if dr.Width, err = d.ReadInt32(); err != nil {
		return dr, err
	}
	return dr, nil
}

// TextMessage is a chat line.
type TextMessage struct {
	From string
	Text string
}

func encodeTextMessage(e *Encoder, m *TextMessage) {
	e.WriteString(m.From)
	e.WriteString(m.Text)
}

func decodeTextMessage(d *Decoder) (TextMessage, error) {
	var m TextMessage
	var err error
	if m.From, err = d.ReadString(); err != nil {
		return m, err
	}
	if m.Text, err = d.ReadString(); err != nil {
		return m, err
	}
	return m, nil
}
