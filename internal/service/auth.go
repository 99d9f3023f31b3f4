// Package service contains application services that sit between the API and the core.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/pill-monitor/internal/errs"
	"github.com/and161185/pill-monitor/internal/model"
)

// TokenService issues and verifies HS256 tokens for API clients (patient app, caregiver CLI).
type TokenService struct {
	signKey   []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenService constructs a TokenService. A non-positive ttl defaults to 24h.
func NewTokenService(signKey []byte, accessTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &TokenService{signKey: signKey, accessTTL: accessTTL, now: time.Now}
}

// Issue creates a signed token for subject.
func (s *TokenService) Issue(subject string) (model.Tokens, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return model.Tokens{}, fmt.Errorf("%w: empty subject", errs.ErrValidation)
	}
	if len(s.signKey) == 0 {
		return model.Tokens{}, errors.New("token service: empty signing key")
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify parses a token and returns its subject. Any failure is errs.ErrUnauthorized.
func (s *TokenService) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.signKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}
