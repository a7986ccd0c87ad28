package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const defaultTokenTTL = 24 * time.Hour

// TokenService issues and verifies the JWTs registered apps authenticate
// with. The token's subject is the app name, which the API middleware turns
// into the declared client name of the session descriptor.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. ttlSeconds <= 0 uses the default.
func NewTokenService(secret string, ttlSeconds int) *TokenService {
	ttl := defaultTokenTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the given app name.
func (t *TokenService) Issue(appName string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": appName,
		"iss": "memory_service",
		"exp": now.Add(t.ttl).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify parses a token and returns the app name it was issued to.
func (t *TokenService) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected token signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	appName, ok := claims["sub"].(string)
	if !ok || appName == "" {
		return "", errors.New("token carries no subject")
	}
	return appName, nil
}
