package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/urmatdigital/tulpar/internal/models"
)

type UserRepository interface {
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Привязка Telegram: создаёт пользователя по номеру или обновляет
	// существующего (upsert по phone).
	UpsertByPhone(ctx context.Context, u *models.User) error
	// Upsert по telegram_id — для callback от Login Widget (номера ещё нет).
	UpsertByTelegramID(ctx context.Context, u *models.User) error

	MarkPhoneVerified(ctx context.Context, phone string) (bool, error)

	// refresh helpers
	UpdateRefresh(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const userColumns = `
	id, COALESCE(phone,''), telegram_id,
	COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(username,''), COALESCE(photo_url,''),
	COALESCE(role,'user'), COALESCE(phone_verified,FALSE), COALESCE(password_hash,''),
	COALESCE(auth_date,0),
	refresh_token, refresh_expires_at, COALESCE(refresh_revoked,FALSE),
	created_at, updated_at
`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var (
		tgID sql.NullInt64
		rt   sql.NullString
		rte  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Phone, &tgID,
		&u.FirstName, &u.LastName, &u.Username, &u.PhotoURL,
		&u.Role, &u.PhoneVerified, &u.PasswordHash,
		&u.AuthDate,
		&rt, &rte, &u.RefreshRevoked,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tgID.Valid {
		v := tgID.Int64
		u.TelegramID = &v
	}
	if rt.Valid {
		s := rt.String
		u.RefreshToken = &s
	}
	if rte.Valid {
		t := rte.Time
		u.RefreshExpiresAt = &t
	}
	return u, nil
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, phone))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user get by phone: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user get by telegram_id: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user get by id: %w", err)
	}
	return u, nil
}

// UpsertByPhone — единственная точка создания пользователя из бота:
// контакт из Telegram несёт номер, telegram_id и имя.
func (r *userRepository) UpsertByPhone(ctx context.Context, u *models.User) error {
	const q = `
		INSERT INTO users (id, phone, telegram_id, first_name, last_name, username, auth_date, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'user')
		ON CONFLICT (phone) DO UPDATE
		SET telegram_id = EXCLUDED.telegram_id,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    username = EXCLUDED.username,
		    auth_date = EXCLUDED.auth_date,
		    updated_at = NOW()
		RETURNING id
	`
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.DB.QueryRowContext(ctx, q,
		u.ID, u.Phone, u.TelegramID, u.FirstName, u.LastName, u.Username, u.AuthDate,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("user upsert by phone: %w", err)
	}
	return nil
}

func (r *userRepository) UpsertByTelegramID(ctx context.Context, u *models.User) error {
	const q = `
		INSERT INTO users (id, telegram_id, first_name, last_name, username, photo_url, auth_date, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'user')
		ON CONFLICT (telegram_id) DO UPDATE
		SET first_name = COALESCE(NULLIF(EXCLUDED.first_name,''), users.first_name),
		    last_name = COALESCE(NULLIF(EXCLUDED.last_name,''), users.last_name),
		    username = COALESCE(NULLIF(EXCLUDED.username,''), users.username),
		    photo_url = COALESCE(NULLIF(EXCLUDED.photo_url,''), users.photo_url),
		    auth_date = EXCLUDED.auth_date,
		    updated_at = NOW()
		RETURNING id
	`
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.DB.QueryRowContext(ctx, q,
		u.ID, u.TelegramID, u.FirstName, u.LastName, u.Username, u.PhotoURL, u.AuthDate,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("user upsert by telegram_id: %w", err)
	}
	return nil
}

// MarkPhoneVerified — false, если пользователя с таким номером нет.
func (r *userRepository) MarkPhoneVerified(ctx context.Context, phone string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET phone_verified=TRUE, updated_at=NOW() WHERE phone=$1`, phone)
	if err != nil {
		return false, fmt.Errorf("user mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("user mark verified rows: %w", err)
	}
	return n > 0, nil
}

// ===== refresh helpers =====

func (r *userRepository) UpdateRefresh(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE users
		SET refresh_token=$1, refresh_expires_at=$2, refresh_revoked=FALSE, updated_at=NOW()
		WHERE id=$3
	`, token, expiresAt, userID)
	if err != nil {
		return fmt.Errorf("user update refresh: %w", err)
	}
	return nil
}

// RotateRefresh — обмен старого токена на новый одним UPDATE: повторное
// использование украденного старого токена после ротации невозможно.
func (r *userRepository) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	q := `
		UPDATE users
		SET refresh_token=$1, refresh_expires_at=$2, updated_at=NOW()
		WHERE refresh_token=$3 AND refresh_revoked=FALSE
		RETURNING ` + userColumns
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, newToken, newExpiresAt, oldToken))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user rotate refresh: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE refresh_token = $1`
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, token))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("user get by refresh: %w", err)
	}
	return u, nil
}
