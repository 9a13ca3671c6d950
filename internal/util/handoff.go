package util

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HandoffTTL is how long a handoff cookie stays valid. The invitation
// itself is re-checked for consumability at sign-in completion, so a
// replay within this window cannot double-spend a token.
const HandoffTTL = 10 * time.Minute

// HandoffClaims wraps an invitation token in a signed, self-expiring
// envelope so the handoff does not depend on cookie expiry alone.
type HandoffClaims struct {
	InviteToken string `json:"invite_token"`
	jwt.RegisteredClaims
}

// SignHandoff 把邀请 token 包装成带过期时间的签名串，用于 handoff cookie
func SignHandoff(secret, inviteToken string) (string, error) {
	now := time.Now()
	claims := &HandoffClaims{
		InviteToken: inviteToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(HandoffTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseHandoff returns the wrapped invitation token. Expired or
// malformed handoffs yield an error; callers treat that as no handoff.
func ParseHandoff(secret, handoff string) (string, error) {
	token, err := jwt.ParseWithClaims(handoff, &HandoffClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*HandoffClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.InviteToken, nil
}
