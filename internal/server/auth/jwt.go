package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/atiera/qrlogin/internal/common"
	"github.com/atiera/qrlogin/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "qrlogin"

	// signingKeyInfo labels the HKDF expansion of the app key used for
	// session tokens.
	signingKeyInfo = "qrlogin session signing key v1"
)

// Claims carries the registered claims plus the user id and role of the
// session owner.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

// SigningKey derives the HS256 session signing key from the application key.
func SigningKey(appKey string) ([]byte, error) {
	return cryptox.DeriveSubkey(appKey, signingKeyInfo, 32)
}

func GenerateToken(userID, role string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
		Role:   role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates tokenString and returns its claims. Every failure
// matches common.ErrInvalidToken; expiry additionally matches
// jwt.ErrTokenExpired.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
