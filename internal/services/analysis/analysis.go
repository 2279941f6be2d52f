// Package analysis проверяет тексты через внешний детектор и ведёт историю проверок пользователя.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Ограничения истории и текста.
const (
	HistoryLimit  = 50
	MaxTextLength = 50000
)

// Detector внешний сервис детекции.
type Detector interface {
	Detect(ctx context.Context, text string) (*models.DetectionResult, error)
}

// Repository история анализов в документном хранилище.
// RecordAnalysis атомарно списывает проверку с лимита и сохраняет анализ;
// при исчерпанном лимите возвращает ErrLimitExceeded и ничего не сохраняет.
type Repository interface {
	RecordAnalysis(ctx context.Context, a models.Analysis) (string, int, error)
	ListAnalyses(ctx context.Context, userUID string, limit, offset int) ([]*models.Analysis, error)
	GetAnalysis(ctx context.Context, userUID, id string) (*models.Analysis, error)
	DeleteAnalyses(ctx context.Context, userUID string) (int64, error)
}

// Usage проверка и учёт лимита.
type Usage interface {
	Check(ctx context.Context, userUID string) (models.Usage, error)
	Reject(userUID string, u models.Usage) error
}

// Cache кэш списка анализов в хранилище ключ-значение.
type Cache interface {
	GetJSON(ctx context.Context, key string, result any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Recorder учитывает завершённые анализы.
type Recorder interface {
	AnalysisCompleted(classification string)
}

// Result сохранённый анализ и использование после него.
type Result struct {
	Analysis *models.Analysis `json:"analysis"`
	Usage    models.Usage     `json:"usage"`
}

// Service выполняет анализ текста.
type Service struct {
	detector Detector
	repo     Repository
	usage    Usage
	cache    Cache
	cacheTTL time.Duration
	metrics  Recorder
	log      *slog.Logger
}

// New создаёт сервис анализа. metrics может быть nil.
func New(detector Detector, repo Repository, usage Usage, cache Cache, cacheTTL time.Duration, metrics Recorder, log *slog.Logger) *Service {
	return &Service{
		detector: detector,
		repo:     repo,
		usage:    usage,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		log:      log,
	}
}

// CacheKey возвращает ключ кэша результатов пользователя.
func CacheKey(userUID string) string {
	return "analysisResults_" + userUID
}

// Analyze проверяет лимит, отправляет текст детектору, сохраняет результат
// и ровно один раз увеличивает счётчик использования. Списание и сохранение
// выполняются хранилищем атомарно, поэтому параллельные запросы не превышают лимит.
func (s *Service) Analyze(ctx context.Context, userUID, text string) (*Result, error) {
	const op = "services.analysis.Analyze"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%s: empty text: %w", op, apperr.ErrValidation)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, fmt.Errorf("%s: text longer than %d characters: %w", op, MaxTextLength, apperr.ErrValidation)
	}

	before, err := s.usage.Check(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	det, err := s.detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := models.Analysis{
		UserUID:         userUID,
		Text:            text,
		Classification:  det.Classification,
		ConfidenceScore: det.ConfidenceScore,
		Highlights:      det.Highlights,
		Suggestions:     det.Suggestions,
	}
	id, count, err := s.repo.RecordAnalysis(ctx, a)
	if errors.Is(err, apperr.ErrLimitExceeded) {
		// Лимит исчерпан параллельным запросом между Check и сохранением.
		exhausted := models.Usage{Count: max(before.Count, before.Limit), Limit: before.Limit}
		return nil, fmt.Errorf("%s: %w", op, s.usage.Reject(userUID, exhausted))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.ID = id
	s.invalidate(ctx, userUID)

	if s.metrics != nil {
		s.metrics.AnalysisCompleted(string(a.Classification))
	}
	s.log.Info("analysis completed",
		slog.String("user_uid", userUID),
		slog.String("analysis_id", id),
		slog.String("classification", string(a.Classification)),
	)

	return &Result{
		Analysis: &a,
		Usage: models.Usage{
			Count:      count,
			Limit:      before.Limit,
			Remaining:  entitlement.Remaining(count, before.Limit),
			CanPerform: entitlement.CanPerformAction(count, before.Limit),
		},
	}, nil
}

// History возвращает последние анализы пользователя, используя кэш.
func (s *Service) History(ctx context.Context, userUID string) ([]*models.Analysis, error) {
	const op = "services.analysis.History"
	var cached []*models.Analysis
	found, err := s.cache.GetJSON(ctx, CacheKey(userUID), &cached)
	if err != nil {
		s.log.Warn("failed to read analysis cache", sl.Err(err), slog.String("user_uid", userUID))
	}
	if found {
		return cached, nil
	}

	list, err := s.repo.ListAnalyses(ctx, userUID, HistoryLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.SetJSON(ctx, CacheKey(userUID), list, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache analysis history", sl.Err(err), slog.String("user_uid", userUID))
	}
	return list, nil
}

// Get возвращает один анализ пользователя.
func (s *Service) Get(ctx context.Context, userUID, id string) (*models.Analysis, error) {
	const op = "services.analysis.Get"
	a, err := s.repo.GetAnalysis(ctx, userUID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// Clear удаляет всю историю пользователя и возвращает число удалённых записей.
func (s *Service) Clear(ctx context.Context, userUID string) (int64, error) {
	const op = "services.analysis.Clear"
	n, err := s.repo.DeleteAnalyses(ctx, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, userUID)
	s.log.Info("analysis history cleared", slog.String("user_uid", userUID), slog.Int64("deleted", n))
	return n, nil
}

func (s *Service) invalidate(ctx context.Context, userUID string) {
	if err := s.cache.Remove(ctx, CacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate analysis cache", sl.Err(err), slog.String("user_uid", userUID))
	}
}
