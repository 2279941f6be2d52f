package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

const profileColumns = `uid, email, name, password_hash, role, usage_count, usage_limit,
	subscription_ends_at, email_verified, customer_id, subscription_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	p := &models.Profile{}
	var endsAt sql.NullTime
	var role string
	if err := row.Scan(&p.UUID, &p.Email, &p.Name, &p.PasswordHash, &role, &p.UsageCount,
		&p.UsageLimit, &endsAt, &p.EmailVerified, &p.CustomerID, &p.SubscriptionID,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.PlanID(role)
	if endsAt.Valid {
		p.SubscriptionEndsAt = &endsAt.Time
	}
	return p, nil
}

// CreateProfile сохраняет новый профиль и возвращает его UID.
func (s *Storage) CreateProfile(ctx context.Context, p models.Profile) (string, error) {
	const op = "storage.CreateProfile"
	if err := ctxDone(ctx, op); err != nil {
		return "", err
	}

	var uid string
	query := `INSERT INTO profiles (email, name, password_hash, role, usage_count, usage_limit,
			      subscription_ends_at, email_verified, customer_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		p.Email, p.Name, p.PasswordHash, string(p.Role), p.UsageCount, p.UsageLimit,
		p.SubscriptionEndsAt, p.EmailVerified, p.CustomerID).Scan(&uid); err != nil {
		return "", mapError(op, err)
	}
	return uid, nil
}

// GetProfile возвращает профиль по UID.
func (s *Storage) GetProfile(ctx context.Context, userUID string) (*models.Profile, error) {
	const op = "storage.GetProfile"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE uid = $1`
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, mapError(op, err)
	}
	return p, nil
}

// GetProfileByEmail возвращает профиль по email без учёта регистра.
func (s *Storage) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	const op = "storage.GetProfileByEmail"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE LOWER(email) = LOWER($1)`
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapError(op, err)
	}
	return p, nil
}

// IncrementUsage атомарно увеличивает счётчик, если лимит тарифа ещё не исчерпан,
// и возвращает новое значение. При исчерпанном лимите возвращает ErrLimitExceeded.
func (s *Storage) IncrementUsage(ctx context.Context, userUID string) (int, error) {
	const op = "storage.IncrementUsage"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}
	return incrementUsage(ctx, s.DB, op, userUID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// incrementUsage проверяет лимит и увеличивает счётчик одним UPDATE.
// Конкурентные запросы сериализуются блокировкой строки профиля.
func incrementUsage(ctx context.Context, q queryRower, op, userUID string) (int, error) {
	var count int
	query := `UPDATE profiles
			  SET usage_count = usage_count + 1, updated_at = NOW()
			  WHERE uid = $1
			    AND (usage_limit = $2
			         OR usage_count < CASE WHEN usage_limit = 0 THEN $3 ELSE usage_limit END)
			  RETURNING usage_count`
	err := q.QueryRowContext(ctx, query, userUID, entitlement.Unlimited, entitlement.DefaultLimit).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapError(op, err)
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE uid = $1)`, userUID).Scan(&exists); err != nil {
		return 0, mapError(op, err)
	}
	if !exists {
		return 0, mapError(op, sql.ErrNoRows)
	}
	return 0, fmt.Errorf("%s: %w", op, apperr.ErrLimitExceeded)
}

// UpdatePlan записывает в профиль тариф, лимит и ссылку на подписку.
func (s *Storage) UpdatePlan(ctx context.Context, userUID string, link models.PlanLink) error {
	const op = "storage.UpdatePlan"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `UPDATE profiles
			  SET role = $1, usage_limit = $2, subscription_id = $3,
			      subscription_ends_at = $4, updated_at = NOW()
			  WHERE uid = $5`
	res, err := s.DB.ExecContext(ctx, query, string(link.Role), link.UsageLimit,
		link.SubscriptionID, link.SubscriptionEndsAt, userUID)
	return checkAffected(op, res, err)
}

// SetCustomerID связывает профиль с клиентом биллинга.
func (s *Storage) SetCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetCustomerID"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE profiles SET customer_id = $1, updated_at = NOW() WHERE uid = $2`,
		customerID, userUID)
	return checkAffected(op, res, err)
}

// SetEmailVerified отмечает email как подтверждённый.
func (s *Storage) SetEmailVerified(ctx context.Context, userUID string) error {
	const op = "storage.SetEmailVerified"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE profiles SET email_verified = TRUE, updated_at = NOW() WHERE uid = $1`, userUID)
	return checkAffected(op, res, err)
}

// UpdatePassword заменяет хеш пароля.
func (s *Storage) UpdatePassword(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdatePassword"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE profiles SET password_hash = $1, updated_at = NOW() WHERE uid = $2`,
		passwordHash, userUID)
	return checkAffected(op, res, err)
}

// DeleteProfile удаляет профиль вместе с историей анализов.
func (s *Storage) DeleteProfile(ctx context.Context, userUID string) error {
	const op = "storage.DeleteProfile"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM profiles WHERE uid = $1`, userUID)
	return checkAffected(op, res, err)
}

func checkAffected(op string, res sql.Result, err error) error {
	if err != nil {
		return mapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return mapError(op, sql.ErrNoRows)
	}
	return nil
}

