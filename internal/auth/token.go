package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/knowton/marketplace/internal/platform/middleware"
)

// TokenManager issues and validates HS256 access tokens. Claims carry the
// caller's user ID and wallet address; the wallet address is what domain
// services compare against on-chain ownership.
type TokenManager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenManager(signingKey string) *TokenManager {
	return &TokenManager{
		signingKey: []byte(signingKey),
		issuer:     "knowton-marketplace",
		ttl:        time.Hour,
	}
}

type accessClaims struct {
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// IssueToken mints a signed access token for the given identity.
func (m *TokenManager) IssueToken(userID, walletAddress string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		WalletAddress: walletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken implements middleware.JWTValidator.
func (m *TokenManager) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return &middleware.JWTClaims{
		UserID:        claims.Subject,
		WalletAddress: claims.WalletAddress,
	}, nil
}
