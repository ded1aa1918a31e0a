package tabletop

import (
	"sync"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
)

// ZoneState is the live state of one zone: its metadata plus everything
// placed on it. All access goes through the owning Campaign's lock.
type ZoneState struct {
	Zone     protocol.Zone
	Tokens   map[protocol.GUID]protocol.Token
	Labels   map[protocol.GUID]protocol.Label
	Drawings []protocol.Drawing
	// Fog areas exposed so far, in arrival order. Hiding re-covers the
	// whole zone, so it simply clears the slice.
	Exposed [][]protocol.Point
}

func newZoneState(z protocol.Zone) *ZoneState {
	return &ZoneState{
		Zone:   z,
		Tokens: make(map[protocol.GUID]protocol.Token),
		Labels: make(map[protocol.GUID]protocol.Label),
	}
}

// Campaign holds the replicated tabletop state. Every mutation is
// expressed as a command so server and clients converge by applying the
// same stream; mutators are idempotent and tolerate references to
// objects that no longer exist, since commands can arrive after the
// thing they touch was removed.
type Campaign struct {
	mu    sync.RWMutex
	zones map[protocol.GUID]*ZoneState
}

// NewCampaign creates an empty campaign.
func NewCampaign() *Campaign {
	return &Campaign{zones: make(map[protocol.GUID]*ZoneState)}
}

// Apply mutates the campaign for cmd. Commands that do not touch
// campaign state (chat, asset traffic, roster events) are ignored.
func (c *Campaign) Apply(cmd protocol.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := cmd.(type) {
	case *protocol.PutZone:
		c.putZone(m.Zone)
	case *protocol.RemoveZone:
		delete(c.zones, m.Zone)
	case *protocol.PutToken:
		if zs, ok := c.zones[m.Zone]; ok {
			zs.Tokens[m.Token.ID] = m.Token
		}
	case *protocol.RemoveToken:
		if zs, ok := c.zones[m.Zone]; ok {
			delete(zs.Tokens, m.Token)
		}
	case *protocol.MoveToken:
		if zs, ok := c.zones[m.Zone]; ok {
			if t, ok := zs.Tokens[m.Token]; ok {
				t.X, t.Y = m.X, m.Y
				zs.Tokens[m.Token] = t
			}
		}
	case *protocol.PutLabel:
		if zs, ok := c.zones[m.Zone]; ok {
			zs.Labels[m.Label.ID] = m.Label
		}
	case *protocol.RemoveLabel:
		if zs, ok := c.zones[m.Zone]; ok {
			delete(zs.Labels, m.Label)
		}
	case *protocol.Draw:
		if zs, ok := c.zones[m.Zone]; ok {
			zs.putDrawing(m.Drawing)
		}
	case *protocol.UndoDraw:
		if zs, ok := c.zones[m.Zone]; ok {
			zs.removeDrawing(m.Drawing)
		}
	case *protocol.ClearDrawings:
		if zs, ok := c.zones[m.Zone]; ok {
			zs.Drawings = nil
		}
	case *protocol.ExposeFog:
		if zs, ok := c.zones[m.Zone]; ok && len(m.Area) > 0 {
			zs.Exposed = append(zs.Exposed, m.Area)
		}
	case *protocol.HideFog:
		if zs, ok := c.zones[m.Zone]; ok {
			zs.Exposed = nil
		}
	}
}

// putZone installs or replaces zone metadata, keeping the existing
// contents when the zone is already present. Replaying a PutZone must
// not wipe tokens placed since.
func (c *Campaign) putZone(z protocol.Zone) {
	if zs, ok := c.zones[z.ID]; ok {
		zs.Zone = z
		return
	}
	c.zones[z.ID] = newZoneState(z)
}

func (zs *ZoneState) putDrawing(d protocol.Drawing) {
	for i := range zs.Drawings {
		if zs.Drawings[i].ID == d.ID {
			zs.Drawings[i] = d
			return
		}
	}
	zs.Drawings = append(zs.Drawings, d)
}

func (zs *ZoneState) removeDrawing(id protocol.GUID) {
	for i := range zs.Drawings {
		if zs.Drawings[i].ID == id {
			zs.Drawings = append(zs.Drawings[:i], zs.Drawings[i+1:]...)
			return
		}
	}
}

// Zone returns a copy of the zone metadata, if present.
func (c *Campaign) Zone(id protocol.GUID) (protocol.Zone, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs, ok := c.zones[id]
	if !ok {
		return protocol.Zone{}, false
	}
	return zs.Zone, true
}

// Zones returns a snapshot of all zone metadata.
func (c *Campaign) Zones() []protocol.Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Zone, 0, len(c.zones))
	for _, zs := range c.zones {
		out = append(out, zs.Zone)
	}
	return out
}

// Token returns a copy of a token, if present.
func (c *Campaign) Token(zone, id protocol.GUID) (protocol.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs, ok := c.zones[zone]
	if !ok {
		return protocol.Token{}, false
	}
	t, ok := zs.Tokens[id]
	return t, ok
}

// TokenOwner returns the owner of a token. The second result is false
// when the zone or token does not exist, which callers treat as
// unowned.
func (c *Campaign) TokenOwner(zone, id protocol.GUID) (string, bool) {
	t, ok := c.Token(zone, id)
	if !ok {
		return "", false
	}
	return t.Owner, true
}

// Tokens returns a snapshot of the tokens in a zone.
func (c *Campaign) Tokens(zone protocol.GUID) []protocol.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs, ok := c.zones[zone]
	if !ok {
		return nil
	}
	out := make([]protocol.Token, 0, len(zs.Tokens))
	for _, t := range zs.Tokens {
		out = append(out, t)
	}
	return out
}

// Labels returns a snapshot of the labels in a zone.
func (c *Campaign) Labels(zone protocol.GUID) []protocol.Label {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs, ok := c.zones[zone]
	if !ok {
		return nil
	}
	out := make([]protocol.Label, 0, len(zs.Labels))
	for _, l := range zs.Labels {
		out = append(out, l)
	}
	return out
}

// Drawings returns a snapshot of the drawings in a zone, in draw order.
func (c *Campaign) Drawings(zone protocol.GUID) []protocol.Drawing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs, ok := c.zones[zone]
	if !ok {
		return nil
	}
	out := make([]protocol.Drawing, len(zs.Drawings))
	copy(out, zs.Drawings)
	return out
}

// Exposed returns a snapshot of the fog areas exposed in a zone.
func (c *Campaign) Exposed(zone protocol.GUID) [][]protocol.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zs, ok := c.zones[zone]
	if !ok {
		return nil
	}
	out := make([][]protocol.Point, len(zs.Exposed))
	copy(out, zs.Exposed)
	return out
}

// Commands renders the whole campaign as the command stream that
// recreates it on an empty peer. New connections are brought current by
// replaying this against a fresh Campaign.
func (c *Campaign) Commands() []protocol.Command {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []protocol.Command
	for _, zs := range c.zones {
		out = append(out, &protocol.PutZone{Zone: zs.Zone})
		for _, t := range zs.Tokens {
			out = append(out, &protocol.PutToken{Zone: zs.Zone.ID, Token: t})
		}
		for _, l := range zs.Labels {
			out = append(out, &protocol.PutLabel{Zone: zs.Zone.ID, Label: l})
		}
		for _, d := range zs.Drawings {
			out = append(out, &protocol.Draw{Zone: zs.Zone.ID, Drawing: d})
		}
		for _, area := range zs.Exposed {
			out = append(out, &protocol.ExposeFog{Zone: zs.Zone.ID, Area: area})
		}
	}
	return out
}

// AssetIDs collects the distinct asset references across all zones.
func (c *Campaign) AssetIDs() map[asset.ID]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[asset.ID]struct{})
	for _, zs := range c.zones {
		for _, t := range zs.Tokens {
			if !t.Asset.IsZero() {
				out[t.Asset] = struct{}{}
			}
		}
	}
	return out
}

// Reset discards all state, leaving an empty campaign.
func (c *Campaign) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = make(map[protocol.GUID]*ZoneState)
}
