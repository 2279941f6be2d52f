package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CustomClaims описывает пользовательские данные, хранящиеся в JWT.
type CustomClaims struct {
	UserUID              string `json:"uid"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	jwt.RegisteredClaims        // ID содержит идентификатор сессии
}

// SessionID возвращает идентификатор сессии токена.
func (c *CustomClaims) SessionID() string {
	return c.ID
}

// GenerateToken создаёт подписанный токен и новый идентификатор сессии.
func (j *MakerImpl) GenerateToken(userUID, email, role string) (string, string, error) {
	const op = "jwt.GenerateToken"
	now := time.Now()
	sessionID := uuid.NewString()
	claims := CustomClaims{
		UserUID: userUID,
		Email:   email,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, sessionID, nil
}

// ParseToken проверяет подпись и срок действия токена и возвращает его claims.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("token has no session id"))
	}
	return claims, nil
}
