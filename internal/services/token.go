package services

import (
	"errors"
	"fmt"
	"time"

	"taskhub/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

type TokenService interface {
	Issue(user *models.User) (string, error)
	Validate(token string) (Caller, error)
}

// TokenClaims carries the caller identity. The id and role claim names are
// what existing clients decode.
type TokenClaims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *JWTTokenService) Issue(user *models.User) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", errors.New("cannot issue token without a user id")
	}

	now := s.now()
	claims := TokenClaims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTTokenService) Validate(tokenString string) (Caller, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.FromString(claims.UserID)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: bad id claim", ErrInvalidToken)
	}
	if !models.ValidRole(claims.Role) {
		return Caller{}, fmt.Errorf("%w: bad role claim", ErrInvalidToken)
	}

	return Caller{ID: id, Role: claims.Role}, nil
}
