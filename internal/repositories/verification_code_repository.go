package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/urmatdigital/tulpar/internal/models"
)

// VerificationCodeRepository — хранилище одноразовых кодов.
// На номер действует ровно один код (UNIQUE по phone), Issue перезаписывает
// предыдущий, Redeem гасит код одним условным UPDATE.
type VerificationCodeRepository interface {
	Issue(ctx context.Context, phone, code string, ttl time.Duration) (*models.VerificationCode, error)
	Redeem(ctx context.Context, phone, code string) (bool, error)
	Active(ctx context.Context, phone string) (*models.VerificationCode, error)
	Invalidate(ctx context.Context, phone string) error
}

type verificationCodeRepository struct{ db *sql.DB }

func NewVerificationCodeRepository(db *sql.DB) VerificationCodeRepository {
	return &verificationCodeRepository{db: db}
}

// Issue — upsert по номеру: прежний неиспользованный код становится
// непогашаемым, каким бы свежим он ни был.
func (r *verificationCodeRepository) Issue(ctx context.Context, phone, code string, ttl time.Duration) (*models.VerificationCode, error) {
	const q = `
		INSERT INTO verification_codes (phone, code, created_at, expires_at, used)
		VALUES ($1, $2, NOW(), $3, FALSE)
		ON CONFLICT (phone) DO UPDATE
		SET code = EXCLUDED.code,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at,
		    used = FALSE
		RETURNING id, phone, code, created_at, expires_at, used
	`
	expiresAt := time.Now().Add(ttl)

	var v models.VerificationCode
	row := r.db.QueryRowContext(ctx, q, phone, code, expiresAt)
	if err := row.Scan(&v.ID, &v.Phone, &v.Code, &v.CreatedAt, &v.ExpiresAt, &v.Used); err != nil {
		return nil, fmt.Errorf("verification_code issue: %w", err)
	}
	return &v, nil
}

// Redeem — атомарная проверка-и-гашение: один UPDATE с условием
// phone+code+used=FALSE+не истёк. Из двух конкурентных запросов с одним
// кодом ряд достанется ровно одному.
func (r *verificationCodeRepository) Redeem(ctx context.Context, phone, code string) (bool, error) {
	const q = `
		UPDATE verification_codes
		SET used = TRUE
		WHERE phone = $1 AND code = $2 AND used = FALSE AND expires_at > NOW()
	`
	res, err := r.db.ExecContext(ctx, q, phone, code)
	if err != nil {
		return false, fmt.Errorf("verification_code redeem: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("verification_code redeem rows: %w", err)
	}
	return n == 1, nil
}

// Active — действующий (неиспользованный, не истёкший) код, если есть.
func (r *verificationCodeRepository) Active(ctx context.Context, phone string) (*models.VerificationCode, error) {
	const q = `
		SELECT id, phone, code, created_at, expires_at, used
		FROM verification_codes
		WHERE phone = $1 AND used = FALSE AND expires_at > NOW()
	`
	row := r.db.QueryRowContext(ctx, q, phone)
	var v models.VerificationCode
	if err := row.Scan(&v.ID, &v.Phone, &v.Code, &v.CreatedAt, &v.ExpiresAt, &v.Used); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("verification_code active: %w", err)
	}
	return &v, nil
}

// Invalidate — откат выдачи (используется, когда доставка кода не удалась).
func (r *verificationCodeRepository) Invalidate(ctx context.Context, phone string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE phone=$1`, phone); err != nil {
		return fmt.Errorf("verification_code invalidate: %w", err)
	}
	return nil
}
