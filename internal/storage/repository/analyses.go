package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/aicheck/internal/models"
)

const analysisColumns = `id, user_uid, text, classification, confidence_score, highlights, suggestions, created_at`

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	a := &models.Analysis{}
	var class string
	var highlights, suggestions []byte
	if err := row.Scan(&a.ID, &a.UserUID, &a.Text, &class, &a.ConfidenceScore,
		&highlights, &suggestions, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Classification = models.Classification(class)
	if err := json.Unmarshal(highlights, &a.Highlights); err != nil {
		return nil, fmt.Errorf("decode highlights: %w", err)
	}
	if err := json.Unmarshal(suggestions, &a.Suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	return a, nil
}

// RecordAnalysis в одной транзакции списывает проверку с лимита профиля
// и сохраняет анализ. Возвращает ID анализа и новый счётчик использования.
// При исчерпанном лимите ничего не сохраняет и возвращает ErrLimitExceeded.
func (s *Storage) RecordAnalysis(ctx context.Context, a models.Analysis) (string, int, error) {
	const op = "storage.RecordAnalysis"
	if err := ctxDone(ctx, op); err != nil {
		return "", 0, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, mapError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	count, err := incrementUsage(ctx, tx, op, a.UserUID)
	if err != nil {
		return "", 0, err
	}
	id, err := insertAnalysis(ctx, tx, op, a)
	if err != nil {
		return "", 0, err
	}
	if err := tx.Commit(); err != nil {
		return "", 0, mapError(op, err)
	}
	return id, count, nil
}

func insertAnalysis(ctx context.Context, q queryRower, op string, a models.Analysis) (string, error) {
	highlights, err := json.Marshal(nonNil(a.Highlights))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	suggestions, err := json.Marshal(nonNil(a.Suggestions))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var id string
	query := `INSERT INTO analyses (user_uid, text, classification, confidence_score, highlights, suggestions)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id;`
	if err := q.QueryRowContext(ctx, query, a.UserUID, a.Text, string(a.Classification),
		a.ConfidenceScore, highlights, suggestions).Scan(&id); err != nil {
		return "", mapError(op, err)
	}
	return id, nil
}

// ListAnalyses возвращает историю анализов пользователя, новые первыми.
func (s *Storage) ListAnalyses(ctx context.Context, userUID string, limit, offset int) ([]*models.Analysis, error) {
	const op = "storage.ListAnalyses"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + analysisColumns + `
			  FROM analyses
			  WHERE user_uid = $1
			  ORDER BY created_at DESC, id
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit, offset)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		result = append(result, a)
	}
	if err = rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return result, nil
}

// GetAnalysis возвращает анализ пользователя по ID.
func (s *Storage) GetAnalysis(ctx context.Context, userUID, id string) (*models.Analysis, error) {
	const op = "storage.GetAnalysis"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1 AND user_uid = $2`
	a, err := scanAnalysis(s.DB.QueryRowContext(ctx, query, id, userUID))
	if err != nil {
		return nil, mapError(op, err)
	}
	return a, nil
}

// DeleteAnalyses очищает историю пользователя и возвращает число удалённых записей.
func (s *Storage) DeleteAnalyses(ctx context.Context, userUID string) (int64, error) {
	const op = "storage.DeleteAnalyses"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM analyses WHERE user_uid = $1`, userUID)
	if err != nil {
		return 0, mapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
