package protocol

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestJoinRequestRoundTrip(t *testing.T) {
	digest := sha256.Sum256([]byte("secret"))

	tests := []struct {
		name string
		req  JoinRequest
	}{
		{
			name: "player",
			req: JoinRequest{
				PlayerName:     "aria",
				PasswordDigest: digest[:],
				Role:           RolePlayer,
				ClientVersion:  Version,
			},
		},
		{
			name: "gm_no_password",
			req: JoinRequest{
				PlayerName:    "gm",
				Role:          RoleGM,
				ClientVersion: "1.3",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeJoinRequest(EncodeJoinRequest(&tc.req))
			if err != nil {
				t.Fatalf("DecodeJoinRequest() error = %v", err)
			}
			if got.PlayerName != tc.req.PlayerName {
				t.Errorf("PlayerName = %q, want %q", got.PlayerName, tc.req.PlayerName)
			}
			if got.Role != tc.req.Role {
				t.Errorf("Role = %v, want %v", got.Role, tc.req.Role)
			}
			if got.ClientVersion != tc.req.ClientVersion {
				t.Errorf("ClientVersion = %q, want %q", got.ClientVersion, tc.req.ClientVersion)
			}
			if !bytes.Equal(got.PasswordDigest, tc.req.PasswordDigest) {
				t.Errorf("PasswordDigest = %x, want %x", got.PasswordDigest, tc.req.PasswordDigest)
			}
		})
	}
}

func TestJoinResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp *JoinResponse
	}{
		{
			name: "accepted",
			resp: NewJoinResponse(&ServerPolicy{StrictOwnership: true, PlayersCanDraw: true}),
		},
		{
			name: "refused",
			resp: NewJoinRefusal(HandshakeNameInUse, "name taken"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeJoinResponse(EncodeJoinResponse(tc.resp))
			if err != nil {
				t.Fatalf("DecodeJoinResponse() error = %v", err)
			}
			if got.Code != tc.resp.Code {
				t.Errorf("Code = %v, want %v", got.Code, tc.resp.Code)
			}
			if got.Message != tc.resp.Message {
				t.Errorf("Message = %q, want %q", got.Message, tc.resp.Message)
			}
			if (got.Policy == nil) != (tc.resp.Policy == nil) {
				t.Fatalf("Policy presence = %v, want %v", got.Policy != nil, tc.resp.Policy != nil)
			}
			if got.Policy != nil && *got.Policy != *tc.resp.Policy {
				t.Errorf("Policy = %+v, want %+v", *got.Policy, *tc.resp.Policy)
			}
		})
	}
}

func TestCompatibleVersion(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{Version, true},
		{"1.0", true},
		{"1.9", true},
		{"2.0", false},
		{"0.9", false},
		{"", false},
		{"junk", false},
	}

	for _, tc := range tests {
		if got := CompatibleVersion(tc.version); got != tc.want {
			t.Errorf("CompatibleVersion(%q) = %v, want %v", tc.version, got, tc.want)
		}
	}
}
