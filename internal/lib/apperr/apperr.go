// Package apperr определяет таксономию ошибок приложения.
// Пакеты оборачивают эти ошибки через fmt.Errorf("%s: %w", op, ...),
// а HTTP-слой сопоставляет их со статусами ответа через errors.Is.
package apperr

import "errors"

var (
	// ErrValidation некорректные входные данные (например, неизвестный план или цикл оплаты).
	ErrValidation = errors.New("validation error")
	// ErrNotFound неизвестный идентификатор подписки, клиента, пользователя или анализа.
	ErrNotFound = errors.New("not found")
	// ErrLimitExceeded исчерпан лимит использования тарифа.
	ErrLimitExceeded = errors.New("usage limit exceeded")
	// ErrStorage сбой нижележащего хранилища.
	ErrStorage = errors.New("storage failure")
	// ErrAuthRequired операция требует аутентифицированной сессии.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUpstream внешний сервис детекции недоступен или ответил некорректно.
	ErrUpstream = errors.New("upstream service failure")
)
