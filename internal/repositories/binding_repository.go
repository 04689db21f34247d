package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BindingRepository — ожидающие привязки Telegram-чата к номеру телефона.
// Запись живёт в Redis с TTL: пользователь перешёл по deep-link с сайта,
// но контакт ещё не отправил.
type BindingRepository interface {
	Set(ctx context.Context, chatID int64, phone string, ttl time.Duration) error
	Get(ctx context.Context, chatID int64) (string, error)
	Delete(ctx context.Context, chatID int64) error
}

type bindingRepository struct {
	rdb *redis.Client
}

func NewBindingRepository(rdb *redis.Client) BindingRepository {
	return &bindingRepository{rdb: rdb}
}

func bindingKey(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}

func (r *bindingRepository) Set(ctx context.Context, chatID int64, phone string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, bindingKey(chatID), phone, ttl).Err(); err != nil {
		return fmt.Errorf("binding set: %w", err)
	}
	return nil
}

// Get — "" если привязки нет или она истекла.
func (r *bindingRepository) Get(ctx context.Context, chatID int64) (string, error) {
	phone, err := r.rdb.Get(ctx, bindingKey(chatID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("binding get: %w", err)
	}
	return phone, nil
}

func (r *bindingRepository) Delete(ctx context.Context, chatID int64) error {
	if err := r.rdb.Del(ctx, bindingKey(chatID)).Err(); err != nil {
		return fmt.Errorf("binding delete: %w", err)
	}
	return nil
}
