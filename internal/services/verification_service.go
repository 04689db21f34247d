package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/repositories"
)

var (
	ErrTelegramNotLinked = errors.New("telegram not linked")
	ErrCodeInvalid       = errors.New("code invalid or expired")
	ErrUserNotFound      = errors.New("user not found")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrSendThrottled     = errors.New("send throttled")
)

const codeLength = 6

// Notifier — канал доставки кода (Telegram в проде, заглушка в тестах).
type Notifier interface {
	SendMessage(chatID int64, text string) error
}

// RateLimiter — ограничение частоты выдачи кодов по номеру.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// VerificationService — жизненный цикл кода: выдача, доставка, гашение.
type VerificationService struct {
	Codes    repositories.VerificationCodeRepository
	Users    repositories.UserRepository
	Notifier Notifier
	Limiter  RateLimiter
	CodeTTL  time.Duration
}

func NewVerificationService(
	codes repositories.VerificationCodeRepository,
	users repositories.UserRepository,
	notifier Notifier,
	limiter RateLimiter,
	codeTTL time.Duration,
) *VerificationService {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	return &VerificationService{
		Codes:    codes,
		Users:    users,
		Notifier: notifier,
		Limiter:  limiter,
		CodeTTL:  codeTTL,
	}
}

// GenerateCode — 6 цифр из crypto/rand, равномерно по 000000–999999.
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}

// RequestCode — выдать и доставить код на привязанный Telegram.
// Выдача и доставка — одна логическая операция: если сообщение не ушло,
// код откатывается и не может быть погашен.
func (s *VerificationService) RequestCode(ctx context.Context, phone string) error {
	user, err := s.Users.GetByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if user == nil || user.TelegramID == nil || *user.TelegramID == 0 {
		return ErrTelegramNotLinked
	}

	if s.Limiter != nil && !s.Limiter.Allow(ctx, phone) {
		return ErrSendThrottled
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}
	if _, err := s.Codes.Issue(ctx, phone, code, s.CodeTTL); err != nil {
		return err
	}

	text := fmt.Sprintf("Ваш код подтверждения: <b>%s</b>\nКод действителен %d минут.",
		code, int(s.CodeTTL.Minutes()))
	if err := s.Notifier.SendMessage(*user.TelegramID, text); err != nil {
		log.Printf("[verify][send] delivery failed phone=%s: %v", phone, err)
		if invErr := s.Codes.Invalidate(ctx, phone); invErr != nil {
			log.Printf("[verify][send] rollback failed phone=%s: %v", phone, invErr)
		}
		return ErrDeliveryFailed
	}

	log.Printf("[verify][send] ok phone=%s ttl=%s", phone, s.CodeTTL)
	return nil
}

// SubmitCode — атомарно гасит код и отмечает номер подтверждённым.
func (s *VerificationService) SubmitCode(ctx context.Context, phone, code string) (*models.User, error) {
	ok, err := s.Codes.Redeem(ctx, phone, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeInvalid
	}

	verified, err := s.Users.MarkPhoneVerified(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrUserNotFound
	}

	user, err := s.Users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	log.Printf("[verify][confirm] ok phone=%s user_id=%s", phone, user.ID)
	return user, nil
}
