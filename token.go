package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds. A token is only honored by the flow matching its kind; the
// check is an explicit string comparison on the signed claims, never inferred
// from token shape.
const (
	TokenKindAuth    = "auth"
	TokenKindRefresh = "refresh"
)

// Typed verification failures.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrTokenKind        = errors.New("unexpected token kind")
)

// Claims is the payload signed into every token.
type Claims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies kind-tagged claims with a single shared
// HS256 secret. It is pure computation; nothing here touches storage.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{secret: secret, now: time.Now}
}

// StripBearer removes an optional "Bearer " prefix.
func StripBearer(token string) string {
	return strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
}

// Issue mints a signed token. The jti claim makes two tokens minted within
// the same second distinguishable.
func (c *TokenCodec) Issue(userID int64, email, kind string, ttl time.Duration) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("issue token: user id is required")
	}
	now := c.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// IssueForUser builds claims from a persisted user record.
func (c *TokenCodec) IssueForUser(u *User, kind string, ttl time.Duration) (string, error) {
	if u == nil || u.ID == 0 || u.Email == "" {
		return "", fmt.Errorf("issue token: user record lacks id or email")
	}
	return c.Issue(u.ID, u.Email, kind, ttl)
}

// Verify decodes and checks signature and time bounds. A token whose expiry
// equals the current second is already expired.
func (c *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	tokenStr = StripBearer(tokenStr)
	if strings.Count(tokenStr, ".") != 2 {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithTimeFunc(c.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.ExpiresAt != nil && !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// DecodeUnsafe parses claims without verifying the signature. Inspection
// only; never authorize anything off its result.
func (c *TokenCodec) DecodeUnsafe(tokenStr string) (*Claims, error) {
	tokenStr = StripBearer(tokenStr)
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// RemainingSeconds reports seconds until expiry, zero for anything invalid
// or already expired.
func (c *TokenCodec) RemainingSeconds(tokenStr string) int64 {
	claims, err := c.Verify(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	rem := claims.ExpiresAt.Unix() - c.now().Unix()
	if rem < 0 {
		return 0
	}
	return rem
}

// Refresh mints a fresh auth token from a verified refresh token.
func (c *TokenCodec) Refresh(refreshToken string, ttl time.Duration) (string, error) {
	claims, err := c.Verify(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.Kind != TokenKindRefresh {
		return "", ErrTokenKind
	}
	return c.Issue(claims.UserID, claims.Email, TokenKindAuth, ttl)
}
