package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mapforge/mapforge/internal/logging"
	"github.com/mapforge/mapforge/pkg/asset"
	"github.com/mapforge/mapforge/pkg/protocol"
	"github.com/mapforge/mapforge/pkg/tabletop"
)

// Server hosts one campaign session: it owns the authoritative campaign
// state and asset store, accepts WebSocket clients, and replays every
// accepted command to the rest of the room.
type Server struct {
	cfg     *ServerConfig
	logger  *zap.SugaredLogger
	metrics *metrics

	campaign *tabletop.Campaign
	store    *asset.Store

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu       sync.RWMutex
	clients  map[string]*Conn
	reserved map[string]struct{} // names validated but not yet registered
	pol      protocol.ServerPolicy
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry sets the Prometheus registry for server metrics.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(s *Server) { s.metrics = newMetrics(reg) }
}

// WithStore sets the asset store, replacing the default in-memory one.
func WithStore(store *asset.Store) Option {
	return func(s *Server) { s.store = store }
}

// New creates a Server from cfg. Zero-valued config fields fall back to
// defaults.
func New(cfg *ServerConfig, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:      cfg,
		logger:   logging.Nop(),
		campaign: tabletop.NewCampaign(),
		clients:  make(map[string]*Conn),
		reserved: make(map[string]struct{}),
		pol:      cfg.Policy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		if cfg.AssetCacheDir != "" {
			cache, err := asset.NewDiskCache(cfg.AssetCacheDir)
			if err != nil {
				return nil, err
			}
			s.store = asset.NewStoreWithCache(cache)
		} else {
			s.store = asset.NewStore()
		}
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.DefaultRegisterer)
	}
	return s, nil
}

// Campaign returns the authoritative campaign state.
func (s *Server) Campaign() *tabletop.Campaign { return s.campaign }

// Store returns the server's asset store.
func (s *Server) Store() *asset.Store { return s.store }

// Router builds the HTTP routes: the WebSocket endpoint, health, and
// metrics.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.HandleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe runs the server until ctx is canceled, then drains
// clients and shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Router(),
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Infow("listening", "addr", s.cfg.Address)
		errc <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown disconnects every client with a shutdown notice and stops
// the HTTP listener.
func (s *Server) Shutdown() error {
	s.logger.Infow("shutting down")

	for _, c := range s.snapshot() {
		c.Kick(protocol.CloseServerShutdown, "server shutting down")
	}

	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// HandleWS upgrades a request and runs the join handshake. Successful
// joins enter the room and get the campaign replayed to them.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("upgrade failed", "error", err)
		return
	}

	req, err := s.performHandshake(ws)
	if err != nil {
		s.logger.Infow("join refused", "error", err, "remote", r.RemoteAddr)
		ws.Close()
		return
	}
	s.metrics.handshakesTotal.WithLabelValues(protocol.HandshakeOK.String()).Inc()

	c := newConn(s, ws, req.PlayerName, req.Role)

	s.mu.Lock()
	delete(s.reserved, c.name)
	s.clients[c.name] = c
	n := len(s.clients)
	s.mu.Unlock()
	s.metrics.connectedClients.Set(float64(n))

	s.logger.Infow("player joined", "player", c.name, "role", c.role, "clients", n)

	c.start()
	s.syncNewClient(c)
	s.broadcast(c, &protocol.PlayerConnected{Name: c.name, Role: c.role})
}

// syncNewClient replays the current campaign to a fresh connection,
// followed by roster entries and announcements for every asset the
// server holds.
func (s *Server) syncNewClient(c *Conn) {
	c.SendCommand(&protocol.SetPolicy{Policy: *s.policy()})

	for _, peer := range s.snapshot() {
		if peer != c {
			c.SendCommand(&protocol.PlayerConnected{Name: peer.name, Role: peer.role})
		}
	}

	for _, cmd := range s.campaign.Commands() {
		c.SendCommand(cmd)
	}

	for _, m := range s.assetAnnouncements() {
		c.SendCommand(m)
	}
}

// assetAnnouncements lists the held assets in a stable order.
func (s *Server) assetAnnouncements() []*protocol.PutAssetMeta {
	ids := s.store.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := make([]*protocol.PutAssetMeta, 0, len(ids))
	for _, id := range ids {
		if a, err := s.store.Get(id); err == nil {
			out = append(out, &protocol.PutAssetMeta{ID: a.ID, Name: a.Name, Size: a.Size()})
		}
	}
	return out
}

// broadcast fans a command out to every client except the sender. A nil
// sender reaches everyone.
func (s *Server) broadcast(sender *Conn, cmd protocol.Command) {
	start := time.Now()
	frame := protocol.CommandFrame(cmd)
	for _, c := range s.snapshot() {
		if c != sender {
			c.Send(frame)
		}
	}
	s.metrics.broadcastDuration.Observe(time.Since(start).Seconds())
}

// Broadcast sends a server-originated command to every client.
func (s *Server) Broadcast(cmd protocol.Command) {
	s.campaign.Apply(cmd)
	s.broadcast(nil, cmd)
}

// bootPlayer disconnects a named player at the GM's request.
func (s *Server) bootPlayer(name string) {
	s.mu.RLock()
	c := s.clients[name]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	s.logger.Infow("booting player", "player", name)
	c.Kick(protocol.CloseBooted, "removed by GM")
}

// releaseName frees a name reserved during handshake validation when
// the join fails before the connection registers.
func (s *Server) releaseName(name string) {
	s.mu.Lock()
	delete(s.reserved, name)
	s.mu.Unlock()
}

// removeConn drops a finished connection from the roster and announces
// the departure.
func (s *Server) removeConn(c *Conn) {
	s.mu.Lock()
	cur, ok := s.clients[c.name]
	if ok && cur == c {
		delete(s.clients, c.name)
	}
	n := len(s.clients)
	s.mu.Unlock()
	if !ok || cur != c {
		return
	}
	s.metrics.connectedClients.Set(float64(n))

	s.logger.Infow("player left",
		"player", c.name, "reason", c.closeReason, "clients", n)
	s.broadcast(c, &protocol.PlayerDisconnected{Name: c.name})
}

// Clients returns the names of the connected players.
func (s *Server) Clients() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.clients))
	for name := range s.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Server) snapshot() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conn, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) policy() *protocol.ServerPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.pol
	return &p
}

func (s *Server) setPolicy(p protocol.ServerPolicy) {
	s.mu.Lock()
	s.pol = p
	s.mu.Unlock()
}
