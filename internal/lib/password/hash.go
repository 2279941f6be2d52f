// Package password реализует хеширование и проверку паролей.
package password

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
)

// MinLength минимальная длина пароля в символах.
const MinLength = 6

// Validate проверяет требования к паролю.
func Validate(password string) error {
	const op = "password.Validate"
	if utf8.RuneCountInString(password) < MinLength {
		return fmt.Errorf("%s: password must be at least %d characters: %w", op, MinLength, apperr.ErrValidation)
	}
	return nil
}

// GetHash принимает пароль пользователя и возвращает его bcrypt‑хэш.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash сравнивает bcrypt‑хэш с введённым паролем.
//
// Возвращает nil, если пароль соответствует хэшу, иначе ошибку.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
