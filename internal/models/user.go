package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись, привязанная к номеру телефона и Telegram-аккаунту.
type User struct {
	ID            uuid.UUID `json:"id"`
	Phone         string    `json:"phone"`
	TelegramID    *int64    `json:"telegram_id,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Username      string    `json:"username"`
	PhotoURL      string    `json:"photo_url,omitempty"`
	Role          string    `json:"role"`
	PhoneVerified bool      `json:"phone_verified"`
	PasswordHash  string    `json:"-"` // не отдаём наружу
	AuthDate      int64     `json:"auth_date,omitempty"`

	// refresh-хранение в БД (opaque токен + срок действия)
	RefreshToken     *string    `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
	RefreshRevoked   bool       `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SendCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}
