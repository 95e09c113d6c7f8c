package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Identity is the caller as asserted by the external identity provider.
type Identity struct {
	Subject         string
	Issuer          string
	TokenIdentifier string
	Name            string
	Email           string
	PictureURL      string
	OrganizationID  string
}

// IdentityClaims is the token body the identity provider signs.
type IdentityClaims struct {
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Picture        string `json:"picture,omitempty"`
	OrganizationID string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenIdentifier joins issuer and subject the way share and message rows
// reference users.
func TokenIdentifier(issuer, subject string) string {
	return issuer + "|" + subject
}

type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *Verifier) Verify(token string) (Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	var claims IdentityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		Subject:         subject,
		Issuer:          claims.Issuer,
		TokenIdentifier: TokenIdentifier(claims.Issuer, subject),
		Name:            strings.TrimSpace(claims.Name),
		Email:           strings.ToLower(strings.TrimSpace(claims.Email)),
		PictureURL:      claims.Picture,
		OrganizationID:  strings.TrimSpace(claims.OrganizationID),
	}, nil
}

// IssueIdentityToken signs identity claims with the shared secret. The API only
// verifies tokens in production; this exists for local tooling and tests.
func IssueIdentityToken(secret []byte, identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Name:           identity.Name,
		Email:          identity.Email,
		Picture:        identity.PictureURL,
		OrganizationID: identity.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    identity.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign identity token: %w", err)
	}
	return signed, nil
}
