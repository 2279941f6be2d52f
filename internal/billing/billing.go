// Package billing реализует мок-биллинг: клиенты, подписки и платёжные намерения
// хранятся JSON-массивами в хранилище ключ-значение, реальных платежей нет.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Ключи таблиц в хранилище.
const (
	CustomersKey     = "backend_customers"
	SubscriptionsKey = "backend_subscriptions"
)

// Store хранилище ключ-значение со строковыми значениями.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Service мок-биллинг. Операции чтения-изменения-записи сериализуются мьютексом.
type Service struct {
	mu    sync.Mutex
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithNow подменяет источник текущего времени.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создаёт сервис мок-биллинга.
func New(store Store, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCustomer возвращает клиента с данным email или создаёт нового.
// Email сравнивается без учёта регистра и пробелов по краям.
func (s *Service) CreateCustomer(ctx context.Context, email, name string) (*models.Customer, error) {
	const op = "billing.CreateCustomer"
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%s: empty email: %w", op, apperr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := loadTable[models.Customer](ctx, s.store, CustomersKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range customers {
		if strings.EqualFold(customers[i].Email, email) {
			return &customers[i], nil
		}
	}

	c := models.Customer{
		ID:        s.newID("cus"),
		Email:     email,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	customers = append(customers, c)
	if err := saveTable(ctx, s.store, CustomersKey, customers); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("customer created", slog.String("customer_id", c.ID))
	return &c, nil
}

// CreateSubscription оформляет подписку по идентификатору цены.
// Существующая действующая подписка клиента отменяется, у клиента всегда не более одной активной подписки.
func (s *Service) CreateSubscription(ctx context.Context, customerID, priceID string) (*models.Subscription, error) {
	const op = "billing.CreateSubscription"
	price, err := entitlement.ResolvePrice(priceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customers, err := loadTable[models.Customer](ctx, s.store, CustomersKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !containsCustomer(customers, customerID) {
		return nil, fmt.Errorf("%s: customer %s: %w", op, customerID, apperr.ErrNotFound)
	}

	subs, err := loadTable[models.Subscription](ctx, s.store, SubscriptionsKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range subs {
		if subs[i].CustomerID == customerID && subs[i].Status.IsEntitling() {
			subs[i].Status = models.StatusCanceled
			s.log.Info("previous subscription replaced", slog.String("subscription_id", subs[i].ID))
		}
	}

	now := s.now().UTC()
	sub := models.Subscription{
		ID:               s.newID("sub"),
		CustomerID:       customerID,
		PlanID:           price.Plan,
		BillingCycle:     price.Cycle,
		Status:           models.StatusActive,
		CurrentPeriodEnd: entitlement.PeriodEnd(price.Cycle, now),
		PriceID:          price.ID,
		CreatedAt:        now,
	}
	subs = append(subs, sub)
	if err := saveTable(ctx, s.store, SubscriptionsKey, subs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription created",
		slog.String("subscription_id", sub.ID),
		slog.String("plan", string(sub.PlanID)),
		slog.String("cycle", string(sub.BillingCycle)),
	)
	return &sub, nil
}

// Subscribe оформляет подписку по паре тариф/период оплаты.
func (s *Service) Subscribe(ctx context.Context, customerID string, plan models.PlanID, cycle models.BillingCycle) (*models.Subscription, error) {
	const op = "billing.Subscribe"
	price, err := entitlement.PriceFor(plan, cycle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub, err := s.CreateSubscription(ctx, customerID, price.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CancelSubscription помечает подписку к отмене в конце оплаченного периода.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	const op = "billing.CancelSubscription"
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := loadTable[models.Subscription](ctx, s.store, SubscriptionsKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	idx := -1
	for i := range subs {
		if subs[i].ID == subscriptionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%s: subscription %s: %w", op, subscriptionID, apperr.ErrNotFound)
	}

	subs[idx].CancelAtPeriodEnd = true
	if err := saveTable(ctx, s.store, SubscriptionsKey, subs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription marked for cancellation", slog.String("subscription_id", subscriptionID))
	sub := subs[idx]
	return &sub, nil
}

// GetSubscriptionStatus возвращает действующую подписку клиента или nil.
// Подписка, помеченная к отмене, после окончания периода переводится в canceled.
func (s *Service) GetSubscriptionStatus(ctx context.Context, customerID string) (*models.Subscription, error) {
	const op = "billing.GetSubscriptionStatus"
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := loadTable[models.Subscription](ctx, s.store, SubscriptionsKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	idx := -1
	for i := range subs {
		if subs[i].CustomerID == customerID && subs[i].Status.IsEntitling() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}

	if s.now().After(subs[idx].CurrentPeriodEnd) && subs[idx].CancelAtPeriodEnd {
		subs[idx].Status = models.StatusCanceled
		if err := saveTable(ctx, s.store, SubscriptionsKey, subs); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("subscription expired", slog.String("subscription_id", subs[idx].ID))
		return nil, nil
	}
	sub := subs[idx]
	return &sub, nil
}

// CreatePaymentIntent создаёт мок платёжного намерения, которое сразу считается успешным.
func (s *Service) CreatePaymentIntent(_ context.Context, amount int64, currency string) (*models.PaymentIntent, error) {
	const op = "billing.CreatePaymentIntent"
	if amount <= 0 {
		return nil, fmt.Errorf("%s: amount must be positive: %w", op, apperr.ErrValidation)
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "eur"
	}
	pi := &models.PaymentIntent{
		ID:           s.newID("pi"),
		Amount:       amount,
		Currency:     currency,
		Status:       "succeeded",
		ClientSecret: s.newID("pi") + "_secret",
	}
	s.log.Info("payment intent created", slog.String("payment_intent_id", pi.ID), slog.Int64("amount", amount))
	return pi, nil
}

// ClearAll удаляет таблицы клиентов и подписок.
func (s *Service) ClearAll(ctx context.Context) error {
	const op = "billing.ClearAll"
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{CustomersKey, SubscriptionsKey} {
		if err := s.store.Remove(ctx, key); err != nil {
			s.log.Error("failed to clear billing data", sl.Err(err), slog.String("key", key))
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// newID возвращает идентификатор вида prefix_<unix ms>_<9 случайных символов>.
func (s *Service) newID(prefix string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, s.now().UnixMilli(), random)
}

func containsCustomer(customers []models.Customer, id string) bool {
	for _, c := range customers {
		if c.ID == id {
			return true
		}
	}
	return false
}

func loadTable[T any](ctx context.Context, store Store, key string) ([]T, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", key, apperr.ErrStorage, err)
	}
	return rows, nil
}

func saveTable[T any](ctx context.Context, store Store, key string, rows []T) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, string(data))
}
