package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
)

// Claims are the identity claims the upstream auth service puts into
// the tokens it issues.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Verifier reads the identity an upstream auth service established.
// Authentication and session management happen before a connection
// reaches the relay; this only verifies that a forwarded token was
// signed with the shared secret and extracts who it names.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Identify returns the identity carried by the token. Any missing,
// malformed or invalid token yields the anonymous identity; connecting
// without an identity is allowed, persisting is not.
func (v *Verifier) Identify(token string) domain.Identity {
	if token == "" || len(v.secret) == 0 {
		return domain.Anonymous()
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Username == "" {
		return domain.Anonymous()
	}

	identity := domain.Identity{
		UserID:        claims.UserID,
		Username:      claims.Username,
		Authenticated: true,
	}
	for _, role := range claims.Roles {
		if strings.EqualFold(role, "admin") {
			identity.Admin = true
		}
	}
	return identity
}
