package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fitsphere/chat-service/internal/logger"
	"github.com/fitsphere/chat-service/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing authentication token")

	log = logger.New("auth")
)

// JWTClaims represents the claims in the JWT
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller, passed explicitly to every handler
type Principal struct {
	UserID   uuid.UUID
	Username string
}

// TokenManager issues and verifies HS256 tokens
type TokenManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenManager creates a token manager for the given secret and lifetime
func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{key: secret, ttl: ttl, now: time.Now}
}

// GenerateToken creates a new JWT token for a user
func (m *TokenManager) GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user cannot be nil")
	}
	if user.ID == uuid.Nil {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}

	now := m.now()
	expirationTime := now.Add(m.ttl)
	claims := &JWTClaims{
		UserID:   user.ID.String(),
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.key)
	return tokenString, expirationTime, err
}

// ValidateToken validates a JWT token and returns the claims
func (m *TokenManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.key, nil
	})
	if err != nil {
		log.WithError(err).Debug("token validation failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate turns a bearer token into a Principal
func (m *TokenManager) Authenticate(tokenString string) (Principal, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return Principal{}, err
	}
	userID, err := GetUserIDFromToken(claims)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: malformed user id", ErrInvalidToken)
	}
	return Principal{UserID: userID, Username: claims.Username}, nil
}

// GetUserIDFromToken extracts the UserID from claims
func GetUserIDFromToken(claims *JWTClaims) (uuid.UUID, error) {
	if claims == nil {
		return uuid.Nil, errors.New("claims cannot be nil")
	}
	return uuid.Parse(claims.UserID)
}
