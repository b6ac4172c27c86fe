package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("service token invalid or expired")

const serviceTokenIssuer = "parkmeter"

// ServiceTokens signs and checks the short-lived HS256 tokens that ledger
// instances use to call each other.
type ServiceTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewServiceTokens(secret string, ttl time.Duration) *ServiceTokens {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ServiceTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *ServiceTokens) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

func (s *ServiceTokens) Issue(subject string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    serviceTokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("ServiceTokens.Issue: %w", err)
	}
	return signed, nil
}

// Validate returns the subject of a valid token.
func (s *ServiceTokens) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(serviceTokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("%w: malformed", ErrTokenInvalid)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("%w: expired", ErrTokenInvalid)
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
