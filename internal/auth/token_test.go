package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *Tokens {
	tokens, err := NewTokens(Config{Key: "secret", Algorithm: "HS256", TTL: time.Hour})
	require.NoError(t, err)
	return tokens
}

func TestTokens_IssueVerify(t *testing.T) {
	tokens := newTestTokens(t)

	token, err := tokens.Issue("user-1")
	require.NoError(t, err)

	userID, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestTokens_Expired(t *testing.T) {
	tokens := newTestTokens(t)
	issued := time.Now()
	tokens.now = func() time.Time { return issued }

	token, err := tokens.Issue("user-1")
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = tokens.Verify(token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokens_WrongKey(t *testing.T) {
	token, err := newTestTokens(t).Issue("user-1")
	require.NoError(t, err)

	other, err := NewTokens(Config{Key: "other", Algorithm: "HS256", TTL: time.Hour})
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokens_RejectsOtherAlgorithm(t *testing.T) {
	tokens := newTestTokens(t)
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokens_MissingSubject(t *testing.T) {
	tokens := newTestTokens(t)
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokens_Garbage(t *testing.T) {
	_, err := newTestTokens(t).Verify("not-a-token")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewTokens_InvalidConfig(t *testing.T) {
	_, err := NewTokens(Config{Key: "k", Algorithm: "RS256", TTL: time.Hour})
	require.ErrorIs(t, err, ErrUnsupportedAlgo)

	_, err = NewTokens(Config{Key: "k", Algorithm: "HS256"})
	require.Error(t, err)
}
