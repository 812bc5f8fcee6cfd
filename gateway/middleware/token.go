package middleware

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenRequest describes a bearer token minted for a holder or operator.
type TokenRequest struct {
	Subject  string
	Issuer   string
	Audience string
	Scopes   []string
	TTL      time.Duration
}

// IssueToken signs an HS256 token accepted by Authenticator configured with
// the same secret.
func IssueToken(secret string, req TokenRequest, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("token secret required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return "", errors.New("token subject required")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"sub": strings.TrimSpace(req.Subject),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = strings.Join(req.Scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
