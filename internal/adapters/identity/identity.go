package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the platform token failed validation.
var ErrInvalidToken = errors.New("invalid platform token")

// Claims is the platform-issued token payload. AdminAccounts lists account
// IDs the user may administer, which gates take-control.
type Claims struct {
	Name          string   `json:"name"`
	AdminAccounts []string `json:"admin_accounts"`
	jwt.RegisteredClaims
}

// Capabilities is the decoded identity used for capability checks.
type Capabilities struct {
	UserID        string
	Name          string
	adminAccounts map[string]struct{}
}

// ParseToken validates an HS256 platform token and extracts capabilities.
func ParseToken(token string, secret []byte) (Capabilities, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Capabilities{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Capabilities{}, ErrInvalidToken
	}

	caps := Capabilities{
		UserID:        claims.Subject,
		Name:          claims.Name,
		adminAccounts: map[string]struct{}{},
	}
	for _, account := range claims.AdminAccounts {
		caps.adminAccounts[account] = struct{}{}
	}
	return caps, nil
}

// CanAdminister reports whether the user may administer the account. This is
// a pure capability check, independent of who currently holds control.
func (c Capabilities) CanAdminister(accountID string) bool {
	_, ok := c.adminAccounts[accountID]
	return ok
}
