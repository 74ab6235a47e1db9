package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by clinicbook access tokens. The subject is the acting
// user's numeric id.
type Claims struct {
	UserID     int64   `json:"uid"`
	TenantIDs  []int64 `json:"tenant_ids,omitempty"`
	SuperAdmin bool    `json:"super_admin,omitempty"`
	Role       string  `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessTenant reports whether the token grants access to tenantID.
func (c *Claims) CanAccessTenant(tenantID int64) bool {
	if c == nil {
		return false
	}
	return c.SuperAdmin || slices.Contains(c.TenantIDs, tenantID)
}

// NewClaims builds claims valid for ttl starting now.
func NewClaims(userID int64, tenantIDs []int64, superAdmin bool, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		UserID:     userID,
		TenantIDs:  tenantIDs,
		SuperAdmin: superAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	return token.SignedString(key)
}

func ParseAndVerifyHS256(tokenStr, secret string) (*Claims, error) {
	return parse(tokenStr, jwt.SigningMethodHS256.Alg(), func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
}

// KeySource resolves RSA public keys by key id.
type KeySource interface {
	Get(keyID string) (*rsa.PublicKey, error)
}

func VerifyRS256(tokenStr string, keys KeySource) (*Claims, error) {
	return parse(tokenStr, jwt.SigningMethodRS256.Alg(), func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidToken
		}
		return keys.Get(kid)
	})
}

func parse(tokenStr, alg string, keyFunc jwt.Keyfunc) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, keyFunc, jwt.WithValidMethods([]string{alg}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	return c, nil
}
