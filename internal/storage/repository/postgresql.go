// Package repository реализует документное хранилище на основе PostgreSQL:
// профили пользователей со счётчиком использования и историю анализов.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
)

const (
	uniqueViolation     = "23505"
	invalidTextEncoding = "22P02"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его.
func New(ctx context.Context, storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(ctx context.Context, storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'profiles'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required table profiles check failed: %w", err)
	}
	if !exists {
		return errors.New("required table profiles missing")
	}
	return nil
}

// Ping проверяет соединение с базой.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("storage.Ping: %w: %w", apperr.ErrStorage, err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// mapError переводит ошибки драйвера в ошибки приложения.
func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: already exists: %w", op, apperr.ErrValidation)
		case invalidTextEncoding:
			// Некорректный UUID не может указывать на существующую запись.
			return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
}

func ctxDone(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}
