package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
	"github.com/mapforge/mapforge/pkg/transfer"
)

const tracerName = "mapforge/server"

// dispatch routes one decoded command from a client: authorize it,
// apply it to the authoritative campaign, and fan it out to every other
// client. The sender never gets its own command echoed back.
func (s *Server) dispatch(c *Conn, cmd protocol.Command) {
	kind := cmd.Kind()

	_, span := otel.Tracer(tracerName).Start(context.Background(), "command",
		trace.WithAttributes(
			attribute.String("command.kind", kind.String()),
			attribute.String("player", c.name),
		))
	defer span.End()

	if reason, ok := s.authorize(c, cmd); !ok {
		s.metrics.commandRejects.WithLabelValues(kind.String(), reason).Inc()
		span.SetAttributes(attribute.String("reject", reason))
		c.logger.Warnw("command rejected", "kind", kind, "reason", reason)
		c.Send(protocol.ErrorFrame(protocol.ErrCodeNotAuthorized, reason))
		return
	}
	s.metrics.commandsTotal.WithLabelValues(kind.String()).Inc()

	switch m := cmd.(type) {
	case *protocol.PutAssetMeta:
		s.handlePutAssetMeta(c, m)
		return
	case *protocol.GetAsset:
		s.handleGetAsset(c, m)
		return
	case *protocol.RemoveAsset:
		s.store.Remove(m.ID)
		s.broadcast(c, cmd)
		return
	case *protocol.SetPolicy:
		s.setPolicy(m.Policy)
		s.broadcast(c, cmd)
		return
	case *protocol.BootPlayer:
		s.bootPlayer(m.Name)
		return
	case *protocol.Chat:
		s.broadcast(c, cmd)
		return
	case *protocol.PlayerConnected, *protocol.PlayerDisconnected:
		// Roster events originate on the server only.
		return
	}

	s.campaign.Apply(cmd)
	s.broadcast(c, cmd)
}

// authorize checks a command against the sender's role and the server
// policy. GMs bypass ownership and drawing restrictions; zone, fog,
// policy and roster commands are GM-only.
func (s *Server) authorize(c *Conn, cmd protocol.Command) (reason string, ok bool) {
	if c.role == protocol.RoleGM {
		return "", true
	}

	switch m := cmd.(type) {
	case *protocol.SetPolicy, *protocol.BootPlayer, *protocol.RemoveAsset,
		*protocol.PutZone, *protocol.RemoveZone,
		*protocol.ExposeFog, *protocol.HideFog:
		return "gm only", false

	case *protocol.Draw, *protocol.UndoDraw, *protocol.ClearDrawings:
		if !s.policy().PlayersCanDraw {
			return "drawing disabled for players", false
		}

	case *protocol.PutToken:
		return s.checkOwnership(c, m.Zone, m.Token.ID)
	case *protocol.MoveToken:
		return s.checkOwnership(c, m.Zone, m.Token)
	case *protocol.RemoveToken:
		return s.checkOwnership(c, m.Zone, m.Token)
	}
	return "", true
}

// checkOwnership enforces strict ownership for players: only tokens
// they own, or unowned tokens, may be touched. A token not yet in the
// campaign is being created and is always allowed.
func (s *Server) checkOwnership(c *Conn, zone, token protocol.GUID) (string, bool) {
	if !s.policy().StrictOwnership {
		return "", true
	}
	owner, exists := s.campaign.TokenOwner(zone, token)
	if !exists || owner == "" || owner == c.name {
		return "", true
	}
	return "token owned by another player", false
}

// handlePutAssetMeta records that a client holds an asset. If the
// server does not have the bytes yet it requests them; once the upload
// verifies, the announcement is forwarded so other clients can fetch
// it from the server.
func (s *Server) handlePutAssetMeta(c *Conn, m *protocol.PutAssetMeta) {
	meta := *m
	need := c.consumer.Want(m.ID, transfer.ListenerFunc{
		OnComplete: func(a *asset.Asset) {
			s.metrics.assetsReceived.Inc()
			s.broadcast(c, &meta)
		},
		OnFailed: func(id asset.ID, err error) {
			c.logger.Warnw("asset upload failed", "asset", id, "error", err)
		},
	})
	if need {
		c.SendCommand(&protocol.GetAsset{ID: m.ID})
	} else if !c.consumer.Pending(m.ID) {
		// Already held; just forward the announcement.
		s.broadcast(c, &meta)
	}
}

// handleGetAsset queues the requested asset to the asking client.
func (s *Server) handleGetAsset(c *Conn, m *protocol.GetAsset) {
	a, err := s.store.Get(m.ID)
	if err != nil {
		c.logger.Warnw("asset not held", "asset", m.ID)
		c.Send(protocol.ErrorFrame(protocol.ErrCodeAssetNotFound, m.ID.String()))
		return
	}
	s.metrics.assetsServed.Inc()
	c.QueueAsset(a)
}
