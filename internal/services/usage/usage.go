// Package usage считает использование проверок относительно лимита тарифа.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// ProfileRepository доступ к счётчику использования в профиле.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userUID string) (*models.Profile, error)
	IncrementUsage(ctx context.Context, userUID string) (int, error)
}

// LimitRecorder учитывает отказы по лимиту.
type LimitRecorder interface {
	LimitRejected()
}

// Service сводка и проверка лимита использования.
type Service struct {
	repo    ProfileRepository
	metrics LimitRecorder
	log     *slog.Logger
}

// New создаёт сервис использования. metrics может быть nil.
func New(repo ProfileRepository, metrics LimitRecorder, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: metrics,
		log:     log,
	}
}

// Summarize строит сводку по уже загруженному профилю.
func Summarize(p *models.Profile) models.Usage {
	limit := entitlement.EffectiveLimit(p.UsageLimit)
	return models.Usage{
		Count:      p.UsageCount,
		Limit:      limit,
		Remaining:  entitlement.Remaining(p.UsageCount, limit),
		CanPerform: entitlement.CanPerformAction(p.UsageCount, limit),
	}
}

// Summary возвращает счётчик, лимит, остаток и признак доступности проверки.
func (s *Service) Summary(ctx context.Context, userUID string) (models.Usage, error) {
	const op = "usage.Summary"
	p, err := s.repo.GetProfile(ctx, userUID)
	if err != nil {
		return models.Usage{}, fmt.Errorf("%s: %w", op, err)
	}
	return Summarize(p), nil
}

// Check возвращает ErrLimitExceeded, если лимит исчерпан. Это предварительная
// проверка: окончательно лимит соблюдается условным списанием в хранилище.
func (s *Service) Check(ctx context.Context, userUID string) (models.Usage, error) {
	const op = "usage.Check"
	u, err := s.Summary(ctx, userUID)
	if err != nil {
		return u, fmt.Errorf("%s: %w", op, err)
	}
	if !u.CanPerform {
		return u, fmt.Errorf("%s: %w", op, s.Reject(userUID, u))
	}
	return u, nil
}

// IncrementUsage списывает одну проверку и возвращает новый счётчик.
// Хранилище увеличивает счётчик только пока лимит не исчерпан.
func (s *Service) IncrementUsage(ctx context.Context, userUID string) (int, error) {
	const op = "usage.IncrementUsage"
	n, err := s.repo.IncrementUsage(ctx, userUID)
	if errors.Is(err, apperr.ErrLimitExceeded) {
		u, serr := s.Summary(ctx, userUID)
		if serr != nil {
			u = models.Usage{}
		}
		return 0, fmt.Errorf("%s: %w", op, s.Reject(userUID, u))
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Reject учитывает отказ по лимиту и возвращает ErrLimitExceeded.
func (s *Service) Reject(userUID string, u models.Usage) error {
	if s.metrics != nil {
		s.metrics.LimitRejected()
	}
	s.log.Info("usage limit reached",
		slog.String("user_uid", userUID),
		slog.Int("count", u.Count),
		slog.Int("limit", u.Limit),
	)
	return fmt.Errorf("%d of %d checks used: %w", u.Count, u.Limit, apperr.ErrLimitExceeded)
}
