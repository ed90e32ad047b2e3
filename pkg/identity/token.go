package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig holds configuration for entitlement token signing.
type TokenConfig struct {
	SigningKey string        `env:"ENTITLEMENT_TOKEN_KEY"`
	Issuer     string        `env:"ENTITLEMENT_TOKEN_ISSUER" envDefault:"lumichat"`
	TTL        time.Duration `env:"ENTITLEMENT_TOKEN_TTL" envDefault:"15m"`
}

// EntitlementClaims are the JWT claims of an entitlement token.
type EntitlementClaims struct {
	jwt.RegisteredClaims

	Email              string `json:"email"`
	IsPremium          bool   `json:"isPremium"`
	CancelAtPeriodEnd  bool   `json:"cancelAtPeriodEnd,omitempty"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty"`
}

// TokenService signs and validates short-lived entitlement tokens that carry
// premium claims to downstream services.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// NewTokenService creates a token service using HMAC-SHA256.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		ttl:        ttl,
	}, nil
}

// Issue signs an entitlement token for a user reflecting the given claims.
func (s *TokenService) Issue(uid, email string, claims Claims) (string, error) {
	now := time.Now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, EntitlementClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email:              email,
		IsPremium:          claims.IsPremium,
		CancelAtPeriodEnd:  claims.CancelAtPeriodEnd,
		SubscriptionStatus: claims.SubscriptionStatus,
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign entitlement token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func (s *TokenService) Parse(tokenString string) (*EntitlementClaims, error) {
	var claims EntitlementClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}
