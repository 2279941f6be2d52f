package models

import "time"

// PlanID идентификатор тарифа (он же роль пользователя).
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanBasic      PlanID = "basic"
	PlanPremium    PlanID = "premium"
	PlanEnterprise PlanID = "enterprise"
	PlanAdmin      PlanID = "admin"
)

// BillingCycle период оплаты.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// SubscriptionStatus статус мок-подписки.
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

// IsEntitling сообщает, даёт ли статус доступ к тарифу.
func (s SubscriptionStatus) IsEntitling() bool {
	return s == StatusActive || s == StatusPastDue
}

// Customer платёжная идентичность пользователя.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created"`
}

// Subscription запись мок-подписки.
type Subscription struct {
	ID                string             `json:"id"`
	CustomerID        string             `json:"customerId"`
	PlanID            PlanID             `json:"planId"`
	BillingCycle      BillingCycle       `json:"billingCycle"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time          `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd"`
	PriceID           string             `json:"priceId"`
	CreatedAt         time.Time          `json:"created"`
}

// PaymentIntent мок платёжного намерения.
type PaymentIntent struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
}
