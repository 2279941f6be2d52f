package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
)

func TestGetHashAndCompare(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{name: "regular password", password: "password123"},
		{name: "special chars", password: "p@ssw0rd!@#$%^&*()"},
		{name: "unicode", password: "пароль-надёжный"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := GetHash(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)

			assert.NoError(t, CompareHash(hash, tt.password))
			assert.Error(t, CompareHash(hash, tt.password+"x"))
		})
	}
}

func TestGetHash_TooLong(t *testing.T) {
	_, err := GetHash(strings.Repeat("a", 100))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("123456"))
	assert.NoError(t, Validate("пароль"))
	assert.ErrorIs(t, Validate("12345"), apperr.ErrValidation)
	assert.ErrorIs(t, Validate(""), apperr.ErrValidation)
}
