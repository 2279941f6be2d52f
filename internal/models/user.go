// Package models содержит доменные структуры: профиль пользователя,
// записи мок-биллинга, результаты анализа и события аутентификации.
package models

import "time"

// Profile профиль пользователя в документном хранилище.
type Profile struct {
	UUID               string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	PasswordHash       string     `json:"-"`
	Role               PlanID     `json:"role"`
	UsageCount         int        `json:"usage_count"`
	UsageLimit         int        `json:"usage_limit"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`
	EmailVerified      bool       `json:"email_verified"`
	CustomerID         string     `json:"customer_id,omitempty"`
	SubscriptionID     string     `json:"subscription_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PlanLink изменения профиля при смене тарифа.
type PlanLink struct {
	Role               PlanID
	UsageLimit         int
	SubscriptionID     string
	SubscriptionEndsAt *time.Time
}

// Usage сводка использования для пользователя.
type Usage struct {
	Count      int  `json:"usage_count"`
	Limit      int  `json:"usage_limit"`
	Remaining  int  `json:"remaining"`
	CanPerform bool `json:"can_perform"`
}
