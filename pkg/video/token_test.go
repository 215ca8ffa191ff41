package video

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinter_MintParse(t *testing.T) {
	m := NewMinter("key", "secret", time.Hour)
	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

	tok, err := m.Mint("account-1", "vs_room", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)

	claims, err := m.Parse(tok.Value, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.Grants.Identity)
	assert.Equal(t, "vs_room", claims.Grants.Video.Room)

	_, err = m.Parse(tok.Value, now.Add(2*time.Hour))
	assert.Error(t, err)

	_, err = NewMinter("key", "other", time.Hour).Parse(tok.Value, now)
	assert.Error(t, err)
}

func TestMinter_FreshTokens(t *testing.T) {
	m := NewMinter("key", "secret", time.Hour)
	now := time.Now()

	a, err := m.Mint("account-1", "vs_room", now)
	require.NoError(t, err)
	b, err := m.Mint("account-1", "vs_room", now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)

	_, err = m.Mint("", "vs_room", now)
	assert.Error(t, err)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.True(t, strings.HasPrefix(a, "vs_"))
	assert.NotEqual(t, a, b)
}
