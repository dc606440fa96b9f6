// Package auth provides session tokens, password hashing, the session
// middleware and the GitHub OAuth provider.
//
// SESSION FLOW:
//  1. The client identifies (username only), registers, logs in with a
//     password, or completes the GitHub OAuth round trip.
//  2. The handler resolves that to an internal user ID and calls
//     TokenService.Generate.
//  3. The token goes back in the JSON body and in an HttpOnly "token" cookie.
//  4. RequireAuth reads the Authorization: Bearer header first, then the
//     cookie, validates the token and puts the user ID in the request context.
//  5. Handlers read it back with UserIDFromContext.
//
// WHY A SIGNED TOKEN?
// The token carries the user ID and expiry and is signed with HS256, so
// validating a request needs the secret and nothing else. No session table
// is kept, and a restart does not log anyone out as long as the secret stays
// the same. Logout only clears the cookie; a copied token stays valid until
// it expires.
//
// WHY TWO TRANSPORTS?
// The browser client relies on the cookie, which scripts cannot read.
// Scripts and tests that talk to the API directly send the bearer header.
//
// Token layout:
//
//	HEADER.PAYLOAD.SIGNATURE
//	{"alg":"HS256","typ":"JWT"}.{"sub":"<userID>","iss":"chat-backend","exp":...}.HMAC
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "chat-backend"

	// DefaultTokenTTL is used when NewTokenService gets a non-positive ttl.
	DefaultTokenTTL = 24 * time.Hour
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// TTL is the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a token for userID valid for the configured TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. A negative
// duration yields an already-expired token, which the tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry, and returns the
// user ID stored in the subject claim.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
