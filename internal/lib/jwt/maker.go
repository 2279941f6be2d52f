// Package jwt реализует выпуск и проверку JWT токенов сессии.
//
// Каждый токен несёт идентификатор сессии (claim jti), по которому сервер
// ведёт монитор активности и отзывает токен при принудительном выходе.
package jwt

import (
	"time"
)

// Maker описывает выпуск и разбор токенов.
type Maker interface {
	GenerateToken(userUID, email, role string) (token string, sessionID string, err error)
	ParseToken(tokenStr string) (*CustomClaims, error)
	TTL() time.Duration
}

// MakerImpl реализует Maker с HMAC-подписью.
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewJWTMaker создаёт MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}

// TTL возвращает время жизни выпускаемых токенов.
func (j *MakerImpl) TTL() time.Duration {
	return j.tokenTTL
}
