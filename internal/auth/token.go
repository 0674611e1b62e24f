// Package auth resolves bearer credentials to user identities.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any credential that does not resolve to
// an identity, including expired and tampered tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Resolver validates signed bearer tokens and extracts the user identity.
type Resolver struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewResolver(signingKey, issuer, audience string) *Resolver {
	return &Resolver{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateToken signs an access token for a user. Used by the session
// issuing flow and by tests.
func (r *Resolver) GenerateToken(userID int64, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    r.issuer,
			Audience:  []string{r.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(r.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolve validates a token string and returns the user id it carries.
func (r *Resolver) Resolve(tokenString string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return r.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims.UserID, nil
}
