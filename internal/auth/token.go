package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session token lifetime. "Remember me" does not extend it; the flag only
// controls whether the browser keeps the cookie across restarts.
const TokenTTL = 30 * 24 * time.Hour

type sessionClaims struct {
	UserID   int64 `json:"uid"`
	Remember bool  `json:"remember"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies the opaque session credential.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Sign issues a session token for the user, valid for TokenTTL.
func (t *Tokens) Sign(userID int64, remember bool) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		UserID:   userID,
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token. It fails closed: any
// malformed, expired, or wrongly-signed token returns an error.
func (t *Tokens) Verify(tokenStr string) (userID int64, remember bool, err error) {
	claims := &sessionClaims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, false, fmt.Errorf("verify token: %w", err)
	}
	return claims.UserID, claims.Remember, nil
}
