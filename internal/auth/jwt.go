package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kanbu/realtime/pkg/domain"
)

// Claims holds the JWT token payload. The identity fields feed the presence
// roster and the triggeredBy tag on broadcast events, so tokens carry the
// full display identity rather than just a user ID.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar,omitempty"`
}

// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// IssueToken creates a signed JWT access token for the given user.
func IssueToken(secret string, user *domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "kanbu",
		},
		UserID:    user.ID.String(),
		Username:  user.Username,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Identity converts validated claims into a presence entry.
func (c *Claims) Identity() (domain.PresenceEntry, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return domain.PresenceEntry{}, fmt.Errorf("auth.Identity: %w", ErrInvalidToken)
	}

	return domain.PresenceEntry{
		ID:        id,
		Username:  c.Username,
		Name:      c.Name,
		AvatarURL: c.AvatarURL,
	}, nil
}
