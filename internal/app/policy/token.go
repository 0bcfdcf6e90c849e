package policy

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openwpsec/guard/pkg/domain/shared"
)

// ActionClaims are the claims carried by a remediation action token.
type ActionClaims struct {
	Action string `json:"action"`
	jwt.RegisteredClaims
}

// TokenGate issues and verifies short-lived HMAC tokens that authorize
// destructive actions (cleanup, restore) triggered from a UI or API
// surface. An empty secret disables the gate entirely.
type TokenGate struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenGate builds a gate from the configured secret and TTL. A nil
// gate is returned when the secret is empty, and a nil gate permits
// every action.
func NewTokenGate(secret string, ttl time.Duration) *TokenGate {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenGate{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a signed token authorizing the named action.
func (g *TokenGate) Issue(action string) (string, error) {
	if g == nil {
		return "", shared.NewDomainError("TOKEN_GATE_DISABLED", "token gate is not configured", nil)
	}

	now := g.now()
	claims := ActionClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign action token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and confirms it was
// issued for the named action. A nil gate permits everything.
func (g *TokenGate) Verify(tokenString, action string) error {
	if g == nil {
		return nil
	}

	var claims ActionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return g.now() }))
	if err != nil {
		return shared.NewDomainError("TOKEN_INVALID", "action token rejected", fmt.Errorf("%w: %w", shared.ErrUnauthorized, err))
	}
	if !token.Valid {
		return shared.NewDomainError("TOKEN_INVALID", "action token rejected", shared.ErrUnauthorized)
	}
	if claims.Action != action {
		return shared.NewDomainError("TOKEN_ACTION_MISMATCH",
			fmt.Sprintf("token authorizes %q, not %q", claims.Action, action), shared.ErrUnauthorized)
	}
	return nil
}
