// Package services связывает мок-биллинг с профилем пользователя: тариф, лимит и ссылку на подписку.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// ProfileRepository определяет методы профиля, которые меняются при смене тарифа.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userUID string) (*models.Profile, error)
	SetCustomerID(ctx context.Context, userUID, customerID string) error
	UpdatePlan(ctx context.Context, userUID string, link models.PlanLink) error
}

// Billing операции мок-биллинга.
type Billing interface {
	CreateCustomer(ctx context.Context, email, name string) (*models.Customer, error)
	Subscribe(ctx context.Context, customerID string, plan models.PlanID, cycle models.BillingCycle) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error)
	GetSubscriptionStatus(ctx context.Context, customerID string) (*models.Subscription, error)
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*models.PaymentIntent, error)
}

// Recorder учитывает оформленные подписки.
type Recorder interface {
	SubscriptionCreated(plan, cycle string)
}

// Notifier ставит письма в очередь рассылки.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// SubscriptionService реализует оформление, отмену и проверку подписки пользователя.
type SubscriptionService struct {
	repo     ProfileRepository
	billing  Billing
	metrics  Recorder
	notifier Notifier
	log      *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService. metrics и notifier могут быть nil.
func NewSubscriptionService(repo ProfileRepository, billing Billing, metrics Recorder, notifier Notifier, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		billing:  billing,
		metrics:  metrics,
		notifier: notifier,
		log:      log,
	}
}

// Subscribe оформляет тариф: при необходимости создаёт клиента биллинга,
// затем обновляет роль, лимит и ссылку на подписку в профиле.
func (s *SubscriptionService) Subscribe(ctx context.Context, userUID string, plan models.PlanID, cycle models.BillingCycle) (*models.Subscription, error) {
	const op = "services.subscription.Subscribe"
	p, err := s.repo.GetProfile(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	customerID, err := s.ensureCustomer(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub, err := s.billing.Subscribe(ctx, customerID, plan, cycle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	periodEnd := sub.CurrentPeriodEnd
	link := models.PlanLink{
		Role:               sub.PlanID,
		UsageLimit:         entitlement.LimitFor(sub.PlanID),
		SubscriptionID:     sub.ID,
		SubscriptionEndsAt: &periodEnd,
	}
	if err := s.repo.UpdatePlan(ctx, userUID, link); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("plan changed",
		slog.String("user_uid", userUID),
		slog.String("plan", string(sub.PlanID)),
		slog.String("subscription_id", sub.ID),
	)
	if s.metrics != nil {
		s.metrics.SubscriptionCreated(string(sub.PlanID), string(sub.BillingCycle))
	}
	if s.notifier != nil {
		err := s.notifier.Notify(ctx, models.Notification{
			Kind:  models.NotificationSubscription,
			Email: p.Email,
			Name:  p.Name,
			Text:  fmt.Sprintf("Your %s plan (%s) is active until %s.", sub.PlanID, sub.BillingCycle, periodEnd.Format("2006-01-02")),
		})
		if err != nil {
			s.log.Warn("failed to queue subscription email", sl.Err(err), slog.String("user_uid", userUID))
		}
	}
	return sub, nil
}

func (s *SubscriptionService) ensureCustomer(ctx context.Context, p *models.Profile) (string, error) {
	if p.CustomerID != "" {
		return p.CustomerID, nil
	}
	c, err := s.billing.CreateCustomer(ctx, p.Email, p.Name)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetCustomerID(ctx, p.UUID, c.ID); err != nil {
		return "", err
	}
	return c.ID, nil
}

// Cancel помечает текущую подписку пользователя к отмене в конце периода.
func (s *SubscriptionService) Cancel(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "services.subscription.Cancel"
	p, err := s.repo.GetProfile(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.SubscriptionID == "" {
		return nil, fmt.Errorf("%s: no subscription: %w", op, apperr.ErrNotFound)
	}
	sub, err := s.billing.CancelSubscription(ctx, p.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription cancellation requested", slog.String("user_uid", userUID))
	return sub, nil
}

// Status возвращает действующую подписку пользователя или nil.
// Если биллинг больше не видит подписку, а профиль на неё ссылается, профиль переводится на free.
func (s *SubscriptionService) Status(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "services.subscription.Status"
	p, err := s.repo.GetProfile(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.CustomerID == "" {
		return nil, nil
	}
	sub, err := s.billing.GetSubscriptionStatus(ctx, p.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub == nil && p.SubscriptionID != "" {
		link := models.PlanLink{
			Role:       models.PlanFree,
			UsageLimit: entitlement.LimitFor(models.PlanFree),
		}
		if err := s.repo.UpdatePlan(ctx, userUID, link); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("subscription ended, profile downgraded", slog.String("user_uid", userUID))
	}
	return sub, nil
}

// CreatePaymentIntent создаёт мок платёжного намерения.
func (s *SubscriptionService) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*models.PaymentIntent, error) {
	const op = "services.subscription.CreatePaymentIntent"
	pi, err := s.billing.CreatePaymentIntent(ctx, amount, currency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pi, nil
}
