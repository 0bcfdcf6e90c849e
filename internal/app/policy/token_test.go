package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/pkg/domain/shared"
)

func TestTokenGate_RoundTrip(t *testing.T) {
	gate := NewTokenGate("test-secret", time.Minute)
	require.NotNil(t, gate)

	token, err := gate.Issue("clean")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, gate.Verify(token, "clean"))
}

func TestTokenGate_ActionMismatch(t *testing.T) {
	gate := NewTokenGate("test-secret", time.Minute)

	token, err := gate.Issue("clean")
	require.NoError(t, err)

	err = gate.Verify(token, "restore")
	require.Error(t, err)
	assert.True(t, shared.IsUnauthorized(err))
}

func TestTokenGate_Expired(t *testing.T) {
	gate := NewTokenGate("test-secret", time.Minute)
	issued := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return issued }

	token, err := gate.Issue("clean")
	require.NoError(t, err)

	gate.now = func() time.Time { return issued.Add(2 * time.Minute) }
	err = gate.Verify(token, "clean")
	require.Error(t, err)
	assert.True(t, shared.IsUnauthorized(err))
}

func TestTokenGate_WrongSecret(t *testing.T) {
	issuer := NewTokenGate("secret-a", time.Minute)
	verifier := NewTokenGate("secret-b", time.Minute)

	token, err := issuer.Issue("clean")
	require.NoError(t, err)

	assert.Error(t, verifier.Verify(token, "clean"))
}

func TestTokenGate_DisabledGatePermitsEverything(t *testing.T) {
	var gate *TokenGate
	assert.NoError(t, gate.Verify("", "clean"))
	assert.NoError(t, gate.Verify("garbage", "restore"))
}
