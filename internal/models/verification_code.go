package models

import "time"

// VerificationCode — одноразовый код входа. На номер телефона одновременно
// действует не больше одного кода: повторная выдача перезаписывает старый.
type VerificationCode struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}
