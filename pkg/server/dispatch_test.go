package server

import (
	"crypto/sha256"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mapforge/mapforge/pkg/protocol"
)

func newTestServer(t *testing.T, cfg *ServerConfig) *Server {
	t.Helper()
	s, err := New(cfg, WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestAuthorize(t *testing.T) {
	zone := protocol.NewGUID()
	owned := protocol.NewGUID()
	unowned := protocol.NewGUID()
	foreign := protocol.NewGUID()

	setup := func(strict, playersDraw bool) *Server {
		s := newTestServer(t, &ServerConfig{Policy: protocol.ServerPolicy{
			StrictOwnership: strict,
			PlayersCanDraw:  playersDraw,
		}})
		s.campaign.Apply(&protocol.PutZone{Zone: protocol.Zone{ID: zone}})
		s.campaign.Apply(&protocol.PutToken{Zone: zone, Token: protocol.Token{ID: owned, Owner: "aria"}})
		s.campaign.Apply(&protocol.PutToken{Zone: zone, Token: protocol.Token{ID: unowned}})
		s.campaign.Apply(&protocol.PutToken{Zone: zone, Token: protocol.Token{ID: foreign, Owner: "bram"}})
		return s
	}

	player := &Conn{name: "aria", role: protocol.RolePlayer}
	gm := &Conn{name: "gm", role: protocol.RoleGM}

	tests := []struct {
		name        string
		strict      bool
		playersDraw bool
		conn        *Conn
		cmd         protocol.Command
		want        bool
	}{
		{"player_moves_own_token", true, true, player,
			&protocol.MoveToken{Zone: zone, Token: owned}, true},
		{"player_moves_unowned_token", true, true, player,
			&protocol.MoveToken{Zone: zone, Token: unowned}, true},
		{"player_moves_foreign_token", true, true, player,
			&protocol.MoveToken{Zone: zone, Token: foreign}, false},
		{"loose_ownership_allows_foreign", false, true, player,
			&protocol.MoveToken{Zone: zone, Token: foreign}, true},
		{"gm_moves_foreign_token", true, true, gm,
			&protocol.MoveToken{Zone: zone, Token: foreign}, true},
		{"player_removes_foreign_token", true, true, player,
			&protocol.RemoveToken{Zone: zone, Token: foreign}, false},
		{"player_creates_new_token", true, true, player,
			&protocol.PutToken{Zone: zone, Token: protocol.Token{ID: protocol.NewGUID()}}, true},
		{"player_draws_when_allowed", true, true, player,
			&protocol.Draw{Zone: zone}, true},
		{"player_draws_when_disabled", true, false, player,
			&protocol.Draw{Zone: zone}, false},
		{"gm_draws_when_disabled", true, false, gm,
			&protocol.Draw{Zone: zone}, true},
		{"player_sets_policy", true, true, player,
			&protocol.SetPolicy{}, false},
		{"player_boots", true, true, player,
			&protocol.BootPlayer{Name: "bram"}, false},
		{"player_creates_zone", true, true, player,
			&protocol.PutZone{}, false},
		{"player_exposes_fog", true, true, player,
			&protocol.ExposeFog{Zone: zone}, false},
		{"gm_exposes_fog", true, true, gm,
			&protocol.ExposeFog{Zone: zone}, true},
		{"player_chats", true, true, player,
			&protocol.Chat{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := setup(tc.strict, tc.playersDraw)
			reason, got := s.authorize(tc.conn, tc.cmd)
			if got != tc.want {
				t.Errorf("authorize() = %v (%q), want %v", got, reason, tc.want)
			}
		})
	}
}

func TestCheckPassword(t *testing.T) {
	right := sha256.Sum256([]byte("secret"))
	wrong := sha256.Sum256([]byte("guess"))

	tests := []struct {
		name     string
		password string
		digest   []byte
		want     bool
	}{
		{"correct", "secret", right[:], true},
		{"wrong", "secret", wrong[:], false},
		{"missing_digest", "secret", nil, false},
		{"truncated_digest", "secret", right[:16], false},
		{"open_role_no_digest", "", nil, true},
		{"open_role_any_digest", "", wrong[:], true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := checkPassword(tc.password, tc.digest); got != tc.want {
				t.Errorf("checkPassword() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateJoin(t *testing.T) {
	digest := sha256.Sum256([]byte("gmpass"))

	s := newTestServer(t, &ServerConfig{GMPassword: "gmpass"})
	s.clients["taken"] = &Conn{name: "taken"}

	tests := []struct {
		name string
		req  protocol.JoinRequest
		code protocol.HandshakeStatus // HandshakeOK means accepted
	}{
		{"version_mismatch",
			protocol.JoinRequest{PlayerName: "a", ClientVersion: "9.0"},
			protocol.HandshakeVersionMismatch},
		{"blank_name",
			protocol.JoinRequest{PlayerName: "  ", ClientVersion: protocol.Version},
			protocol.HandshakeInvalidFormat},
		{"bad_gm_password",
			protocol.JoinRequest{PlayerName: "a", Role: protocol.RoleGM, ClientVersion: protocol.Version},
			protocol.HandshakeRefused},
		{"name_in_use",
			protocol.JoinRequest{PlayerName: "taken", ClientVersion: protocol.Version},
			protocol.HandshakeNameInUse},
		{"gm_accepted",
			protocol.JoinRequest{PlayerName: "gm", Role: protocol.RoleGM,
				PasswordDigest: digest[:], ClientVersion: protocol.Version},
			protocol.HandshakeOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			herr := s.validateJoin(&tc.req)
			switch {
			case tc.code == protocol.HandshakeOK && herr != nil:
				t.Errorf("validateJoin() = %v, want accepted", herr)
			case tc.code != protocol.HandshakeOK && herr == nil:
				t.Error("validateJoin() accepted, want refusal")
			case herr != nil && herr.code != tc.code:
				t.Errorf("refusal code = %v, want %v", herr.code, tc.code)
			}
		})
	}
}

func TestValidateJoinReservesName(t *testing.T) {
	s := newTestServer(t, &ServerConfig{})

	first := protocol.JoinRequest{PlayerName: "aria", ClientVersion: protocol.Version}
	if herr := s.validateJoin(&first); herr != nil {
		t.Fatalf("validateJoin() = %v, want accepted", herr)
	}

	// The name is held even though no connection has registered yet, so
	// a simultaneous second join cannot slip through and overwrite it.
	dup := protocol.JoinRequest{PlayerName: "aria", ClientVersion: protocol.Version}
	if herr := s.validateJoin(&dup); herr == nil || herr.code != protocol.HandshakeNameInUse {
		t.Errorf("validateJoin(duplicate) = %v, want NameInUse", herr)
	}

	s.releaseName("aria")
	if herr := s.validateJoin(&dup); herr != nil {
		t.Errorf("validateJoin() after release = %v, want accepted", herr)
	}
}

func TestValidateJoinServerFull(t *testing.T) {
	s := newTestServer(t, &ServerConfig{MaxClients: 1})
	s.clients["seated"] = &Conn{name: "seated"}

	herr := s.validateJoin(&protocol.JoinRequest{
		PlayerName:    "latecomer",
		ClientVersion: protocol.Version,
	})
	if herr == nil || herr.code != protocol.HandshakeRefused {
		t.Errorf("validateJoin() = %v, want refusal", herr)
	}
}
