package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidSignature is returned when token signature is invalid
	ErrInvalidSignature = errors.New("invalid token signature")
)

// AllResources grants read access to every catalogue resource
const AllResources = "*"

// Claims are the JWT claims of a listing token
type Claims struct {
	// Resources the bearer may list. "*" grants all.
	Resources []string `json:"resources"`
	jwt.RegisteredClaims
}

// CanRead reports whether the claims grant access to a resource
func (c *Claims) CanRead(resource string) bool {
	return slices.Contains(c.Resources, AllResources) || slices.Contains(c.Resources, resource)
}

// Verifier issues and validates HS256 listing tokens
type Verifier struct {
	secretKey []byte
	issuer    string
	audience  string
}

// NewVerifier creates a verifier. An empty audience is not checked.
func NewVerifier(secretKey, issuer, audience string) *Verifier {
	return &Verifier{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
	}
}

// Issue signs a token for subject granting the given resources
func (v *Verifier) Issue(subject string, resources []string, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		Resources: resources,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.secretKey)
	if err != nil {
		return "", nil, err
	}

	return tokenString, claims, nil
}

// Verify validates a token string and returns its claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithIssuer(v.issuer)}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
