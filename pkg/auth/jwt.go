package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/pkg/clock"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the caller of an API request.
type Claims struct {
	AccountID uuid.UUID  `json:"account_id"`
	Role      model.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() model.Actor {
	return model.Actor{ID: c.AccountID, Role: c.Role}
}

type JWTService interface {
	GenerateAccessToken(account *model.Account) (string, time.Time, error)
	ValidateToken(token string) (*Claims, error)
}

type jwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
	clock  clock.Clock
}

func NewJWTService(secret, issuer string, expiry time.Duration, clk clock.Clock) JWTService {
	return &jwtService{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		clock:  clk,
	}
}

func (s *jwtService) GenerateAccessToken(account *model.Account) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.expiry)

	claims := &Claims{
		AccountID: account.ID,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.AccountID == uuid.Nil || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing account claims", ErrInvalidToken)
	}
	return claims, nil
}
