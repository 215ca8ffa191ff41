package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, hasher.Compare(hash, "correct horse"))
	assert.ErrorIs(t, hasher.Compare(hash, "wrong horse"), ErrMismatch)
	assert.Error(t, hasher.Compare("not-a-hash", "correct horse"))
}

func TestBcryptHasher_Length(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	_, err := hasher.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = hasher.Hash(strings.Repeat("x", MaxPasswordLen+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
