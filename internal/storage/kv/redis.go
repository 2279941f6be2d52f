// Package kv реализует хранилище ключ-значение поверх redis: строковые значения
// с операциями get/set/remove и JSON-обёртки над ними.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
)

// Store хранилище ключ-значение.
type Store struct {
	Db *redis.Client
}

// InitServer подключается к redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Store, error) {
	const op = "kv.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	return &Store{Db: db}, nil
}

// New оборачивает уже созданный клиент.
func New(db *redis.Client) *Store {
	return &Store{Db: db}
}

// Get возвращает значение ключа; ok=false, если ключа нет.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "kv.Get"
	val, err := s.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	return val, true, nil
}

// Set сохраняет значение без срока жизни.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.SetTTL(ctx, key, value, 0)
}

// SetTTL сохраняет значение со сроком жизни ttl (0 означает бессрочно).
func (s *Store) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "kv.SetTTL"
	if err := s.Db.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	return nil
}

// Remove удаляет ключ; отсутствие ключа ошибкой не считается.
func (s *Store) Remove(ctx context.Context, key string) error {
	const op = "kv.Remove"
	if err := s.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	return nil
}

// Exists проверяет наличие ключа.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	const op = "kv.Exists"
	n, err := s.Db.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	return n > 0, nil
}

// GetJSON читает и декодирует JSON-значение в result.
func (s *Store) GetJSON(ctx context.Context, key string, result any) (bool, error) {
	const op = "kv.GetJSON"
	val, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
	}
	return true, nil
}

// SetJSON кодирует value в JSON и сохраняет со сроком жизни ttl.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	const op = "kv.SetJSON"
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.SetTTL(ctx, key, string(data), ttl)
}

// Ping проверяет доступность redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Db.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv.Ping: %w: %w", apperr.ErrStorage, err)
	}
	return nil
}

// Close закрывает соединение с redis.
func (s *Store) Close() error {
	return s.Db.Close()
}
