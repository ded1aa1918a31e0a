package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
	"github.com/mapforge/mapforge/pkg/transfer"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeServer accepts one connection, answers the join with resp, and
// hands the socket to fn.
func fakeServer(t *testing.T, resp *protocol.JoinResponse, fn func(ws *websocket.Conn)) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeFrame(msg)
		if err != nil || frame.Type != protocol.FrameHandshake {
			t.Errorf("first frame = %v, %v; want handshake", frame, err)
			return
		}
		if _, err := protocol.DecodeJoinRequest(frame.Payload); err != nil {
			t.Errorf("join request decode: %v", err)
			return
		}

		reply := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeJoinResponse(resp))
		data, err := reply.Encode()
		if err != nil {
			t.Errorf("encode join reply: %v", err)
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
		if fn != nil {
			fn(ws)
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.PlayerName = "aria"
	return cfg
}

func TestDialAcceptsPolicy(t *testing.T) {
	url := fakeServer(t,
		protocol.NewJoinResponse(&protocol.ServerPolicy{StrictOwnership: true, PlayersCanDraw: true}),
		func(ws *websocket.Conn) {
			// Hold the socket open until the client hangs up.
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, testConfig(url))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Disconnect()

	pol := c.Policy()
	if !pol.StrictOwnership || !pol.PlayersCanDraw {
		t.Errorf("Policy() = %+v, want both flags set", pol)
	}
}

func TestDialRefused(t *testing.T) {
	url := fakeServer(t,
		protocol.NewJoinRefusal(protocol.HandshakeVersionMismatch, "too old"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, testConfig(url))
	var refused *RefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("Dial() error = %v, want *RefusedError", err)
	}
	if refused.Code != protocol.HandshakeVersionMismatch {
		t.Errorf("Code = %v, want HandshakeVersionMismatch", refused.Code)
	}
	if !strings.Contains(refused.Error(), "too old") {
		t.Errorf("Error() = %q, want the server message included", refused.Error())
	}
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Dial(ctx, testConfig("ws://127.0.0.1:1/ws")); err == nil {
		t.Error("Dial() expected error for unreachable server, got nil")
	}
}

func TestServedCommandsReachObserver(t *testing.T) {
	zone := protocol.Zone{ID: protocol.NewGUID(), Name: "Atrium", GridSize: 50}

	url := fakeServer(t, protocol.NewJoinResponse(&protocol.ServerPolicy{}),
		func(ws *websocket.Conn) {
			frame := protocol.CommandFrame(&protocol.PutZone{Zone: zone})
			data, err := frame.Encode()
			if err != nil {
				t.Errorf("encode command frame: %v", err)
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		})

	seen := make(chan protocol.Command, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, testConfig(url), OnCommand(func(cmd protocol.Command) {
		select {
		case seen <- cmd:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Disconnect()

	select {
	case cmd := <-seen:
		if cmd.Kind() != protocol.KindPutZone {
			t.Errorf("observed kind = %v, want KindPutZone", cmd.Kind())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command observer")
	}

	if _, ok := c.Campaign().Zone(zone.ID); !ok {
		t.Error("zone not applied to local campaign")
	}
}

func TestDoSetPolicyUpdatesOwnMirror(t *testing.T) {
	url := fakeServer(t, protocol.NewJoinResponse(&protocol.ServerPolicy{}),
		func(ws *websocket.Conn) {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, testConfig(url))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Disconnect()

	// The server relays to everyone but the sender, so the sender's own
	// policy view must update on Do, not on an echo that never comes.
	want := protocol.ServerPolicy{StrictOwnership: true, PlayersCanDraw: true}
	if err := c.Do(&protocol.SetPolicy{Policy: want}); err != nil {
		t.Fatalf("Do(SetPolicy) error = %v", err)
	}
	if got := c.Policy(); got != want {
		t.Errorf("Policy() after Do = %+v, want %+v", got, want)
	}
}

func TestDoRejectsOversizedCommand(t *testing.T) {
	url := fakeServer(t, protocol.NewJoinResponse(&protocol.ServerPolicy{}),
		func(ws *websocket.Conn) {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, testConfig(url))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Disconnect()

	zone := protocol.NewGUID()
	big := &protocol.ExposeFog{Zone: zone, Area: make([]protocol.Point, protocol.MaxAreaPoints+1)}
	if err := c.Do(big); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("Do(oversized fog) error = %v, want ErrFrameTooLarge", err)
	}
	// Nothing was applied locally: local and remote state stay in step.
	if got := c.Campaign().Exposed(zone); len(got) != 0 {
		t.Errorf("exposed areas = %d, want 0", len(got))
	}
}

func TestAssetNotFoundFailsRequest(t *testing.T) {
	id := asset.Compute([]byte("missing texture"))

	url := fakeServer(t, protocol.NewJoinResponse(&protocol.ServerPolicy{}),
		func(ws *websocket.Conn) {
			// Answer the GetAsset with a not-found report.
			for {
				_, msg, err := ws.ReadMessage()
				if err != nil {
					return
				}
				frame, err := protocol.DecodeFrame(msg)
				if err != nil || frame.Type != protocol.FrameCommand {
					continue
				}
				reply := protocol.ErrorFrame(protocol.ErrCodeAssetNotFound, id.String())
				data, err := reply.Encode()
				if err != nil {
					t.Errorf("encode error frame: %v", err)
					return
				}
				if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
					return
				}
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, testConfig(url))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Disconnect()

	failed := make(chan error, 1)
	c.RequestAsset(id, transfer.ListenerFunc{
		OnComplete: func(a *asset.Asset) {
			t.Errorf("unexpected completion for %v", a.ID)
		},
		OnFailed: func(_ asset.ID, err error) { failed <- err },
	})

	select {
	case err := <-failed:
		if !errors.Is(err, transfer.ErrAssetUnavailable) {
			t.Errorf("failure = %v, want ErrAssetUnavailable", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for asset failure")
	}
}

func TestDisconnectClearsSharedState(t *testing.T) {
	zone := protocol.Zone{ID: protocol.NewGUID(), Name: "Vault"}

	url := fakeServer(t, protocol.NewJoinResponse(&protocol.ServerPolicy{}),
		func(ws *websocket.Conn) {
			frame := protocol.CommandFrame(&protocol.PutZone{Zone: zone})
			data, err := frame.Encode()
			if err != nil {
				t.Errorf("encode command frame: %v", err)
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	disconnected := make(chan bool, 1)
	c, err := Dial(ctx, testConfig(url),
		OnDisconnect(func(expected bool) { disconnected <- expected }))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Campaign().Zone(zone.ID); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.Disconnect()

	select {
	case expected := <-disconnected:
		if !expected {
			t.Error("deliberate disconnect reported as unexpected")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}
	if got := len(c.Campaign().Zones()); got != 0 {
		t.Errorf("zones after disconnect = %d, want 0", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{URL: "ws://x/ws", PlayerName: "p"}).withDefaults()

	if cfg.HeartbeatInterval != 20*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 20s", cfg.HeartbeatInterval)
	}
	if cfg.ChunkSize != protocol.DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want protocol.DefaultChunkSize", cfg.ChunkSize)
	}
	if cfg.Role != protocol.RolePlayer {
		t.Errorf("Role = %v, want RolePlayer", cfg.Role)
	}
}
