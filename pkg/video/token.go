// Package video mints access tokens for the video provider. A token is an
// HS256 JWT signed with the API secret carrying the caller identity and a
// grant scoped to one room.
package video

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionPrefix = "vs_"

// VideoGrant scopes a token to one room.
type VideoGrant struct {
	Room string `json:"room"`
}

type Grants struct {
	Identity string     `json:"identity"`
	Video    VideoGrant `json:"video"`
}

type Claims struct {
	Grants Grants `json:"grants"`
	jwt.RegisteredClaims
}

// Token is a minted credential and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Minter struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

func NewMinter(apiKey, secret string, ttl time.Duration) *Minter {
	return &Minter{apiKey: apiKey, secret: []byte(secret), ttl: ttl}
}

// NewSessionID returns an opaque room identifier.
func NewSessionID() string {
	return sessionPrefix + uuid.NewString()
}

// Mint issues a token for identity in room. Every call returns a distinct
// token, even for the same inputs and instant.
func (m *Minter) Mint(identity, room string, now time.Time) (*Token, error) {
	if identity == "" || room == "" {
		return nil, errors.New("identity and room are required")
	}
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		Grants: Grants{
			Identity: identity,
			Video:    VideoGrant{Room: room},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = "video;v=1"
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign video token: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse verifies a token against now and returns its claims.
func (m *Minter) Parse(value string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(value, claims,
		func(t *jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.apiKey),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid video token: %w", err)
	}
	return claims, nil
}
