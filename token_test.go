package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T) (*TokenCodec, time.Time) {
	t.Helper()
	c := NewTokenCodec([]byte("test-secret"))
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	return c, now
}

func TestTokenRoundTrip(t *testing.T) {
	c, _ := testCodec(t)

	token, err := c.Issue(42, "user@example.com", TokenKindAuth, time.Hour)
	require.NoError(t, err)

	claims, err := c.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "user@example.com", claims.Email)
	require.Equal(t, TokenKindAuth, claims.Kind)
	require.NotEmpty(t, claims.ID)

	// With or without a Bearer prefix
	claims, err = c.Verify("Bearer " + token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
}

func TestTokenExpiry(t *testing.T) {
	c, now := testCodec(t)

	token, err := c.Issue(1, "user@example.com", TokenKindAuth, time.Hour)
	require.NoError(t, err)

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = c.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)

	// Expiry is inclusive: a token dying exactly now is already dead
	c.now = func() time.Time { return now.Add(time.Hour) }
	_, err = c.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)

	c.now = func() time.Time { return now.Add(time.Hour - time.Second) }
	_, err = c.Verify(token)
	require.NoError(t, err)
}

func TestTokenMalformed(t *testing.T) {
	c, _ := testCodec(t)

	for _, bad := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := c.Verify(bad)
		require.ErrorIs(t, err, ErrTokenMalformed, "input %q", bad)
	}

	// Tampered payload
	token, err := c.Issue(1, "user@example.com", TokenKindAuth, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	_, err = c.Verify(parts[0] + "." + parts[1] + "x." + parts[2])
	require.ErrorIs(t, err, ErrTokenMalformed)

	// Signed with a different secret
	other := NewTokenCodec([]byte("other-secret"))
	other.now = c.now
	foreign, err := other.Issue(1, "user@example.com", TokenKindAuth, time.Hour)
	require.NoError(t, err)
	_, err = c.Verify(foreign)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenKindEnforcement(t *testing.T) {
	c, _ := testCodec(t)

	auth, err := c.Issue(7, "user@example.com", TokenKindAuth, time.Hour)
	require.NoError(t, err)
	refresh, err := c.Issue(7, "user@example.com", TokenKindRefresh, time.Hour)
	require.NoError(t, err)

	// An auth token cannot be refreshed, however valid its signature
	_, err = c.Refresh(auth, time.Hour)
	require.ErrorIs(t, err, ErrTokenKind)

	minted, err := c.Refresh(refresh, time.Hour)
	require.NoError(t, err)
	claims, err := c.Verify(minted)
	require.NoError(t, err)
	require.Equal(t, TokenKindAuth, claims.Kind)
	require.Equal(t, int64(7), claims.UserID)
	require.Equal(t, "user@example.com", claims.Email)
}

func TestTokenIssueRequiresIdentity(t *testing.T) {
	c, _ := testCodec(t)

	_, err := c.Issue(0, "user@example.com", TokenKindAuth, time.Hour)
	require.Error(t, err)

	_, err = c.IssueForUser(nil, TokenKindAuth, time.Hour)
	require.Error(t, err)
	_, err = c.IssueForUser(&User{ID: 1}, TokenKindAuth, time.Hour)
	require.Error(t, err)
	_, err = c.IssueForUser(&User{Email: "user@example.com"}, TokenKindAuth, time.Hour)
	require.Error(t, err)
}

func TestRemainingSeconds(t *testing.T) {
	c, now := testCodec(t)

	token, err := c.Issue(1, "user@example.com", TokenKindAuth, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(3600), c.RemainingSeconds(token))

	c.now = func() time.Time { return now.Add(30 * time.Minute) }
	require.Equal(t, int64(1800), c.RemainingSeconds(token))

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	require.Equal(t, int64(0), c.RemainingSeconds(token))

	require.Equal(t, int64(0), c.RemainingSeconds("garbage"))
}

func TestDecodeUnsafe(t *testing.T) {
	c, now := testCodec(t)

	// Decodes without caring about signature or expiry
	other := NewTokenCodec([]byte("other-secret"))
	other.now = func() time.Time { return now }
	foreign, err := other.Issue(9, "peek@example.com", TokenKindRefresh, -time.Hour)
	require.NoError(t, err)

	claims, err := c.DecodeUnsafe(foreign)
	require.NoError(t, err)
	require.Equal(t, int64(9), claims.UserID)
	require.Equal(t, TokenKindRefresh, claims.Kind)

	_, err = c.DecodeUnsafe("not-a-token")
	require.ErrorIs(t, err, ErrTokenMalformed)
}
