package signing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerSignAndVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("user-1", "room.with.dots")
	require.NoError(t, err)
	require.False(t, expiresAt.IsZero())

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "room.with.dots", claims.Resource)
	assert.WithinDuration(t, expiresAt, claims.ExpiresAt, time.Second)
}

func TestSignerRejectsExpired(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	base := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return base }
	token, _, err := signer.Sign("user-1", "room-1")
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestSignerRejectsTampering(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Sign("user-1", "room-1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = encode("user-2")
	_, err = signer.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrSignature)

	_, err = NewSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrSignature)

	_, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSignerRequiresInputs(t *testing.T) {
	_, _, err := NewSigner("", time.Hour).Sign("user-1", "room-1")
	assert.Error(t, err)
	_, _, err = NewSigner("secret", time.Hour).Sign("", "room-1")
	assert.Error(t, err)
}
