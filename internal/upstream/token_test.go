package upstream

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return tok
}

func TestApplyTokenGroupDefaultWithNoToken(t *testing.T) {
	out := applyTokenGroupDefault(Settings{Name: "a"})
	require.Equal(t, "", out.Group)
}

func TestApplyTokenGroupDefaultFillsEmptyGroup(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"group": "ops"})
	out := applyTokenGroupDefault(Settings{Name: "a", Token: tok})
	require.Equal(t, "ops", out.Group)
}

func TestApplyTokenGroupDefaultDoesNotOverrideExplicitGroup(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"group": "ops"})
	out := applyTokenGroupDefault(Settings{Name: "a", Token: tok, Group: "monitoring"})
	require.Equal(t, "monitoring", out.Group)
}

func TestApplyTokenGroupDefaultOnOpaqueTokenLeavesGroupUnset(t *testing.T) {
	out := applyTokenGroupDefault(Settings{Name: "a", Token: "opaque-random-string"})
	require.Equal(t, "", out.Group)
}

func TestApplyTokenGroupDefaultOnOpaqueTokenKeepsSettingsOtherwiseUnchanged(t *testing.T) {
	in := Settings{Name: "a", BrokerName: "b", URL: "wss://x/conn", Token: "not-a-jwt-at-all"}
	out := applyTokenGroupDefault(in)
	require.Equal(t, in, out)
}
