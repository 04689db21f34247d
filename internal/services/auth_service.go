package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/urmatdigital/tulpar/internal/middleware"
	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/repositories"
	"github.com/urmatdigital/tulpar/internal/utils"
)

var ErrInvalidRefresh = errors.New("invalid refresh token")

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService — пароли и сессии (JWT + opaque refresh в БД).
type AuthService interface {
	HashPassword(plain string) (string, error)
	CheckPassword(hash, plain string) error
	NewSession(ctx context.Context, user *models.User) (*TokenPair, error)
	RotateSession(ctx context.Context, refreshToken string) (*TokenPair, *models.User, error)
}

type authService struct {
	users      repositories.UserRepository
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(users repositories.UserRepository, jwtSecret string, accessTTL, refreshTTL time.Duration) AuthService {
	return &authService{
		users:      users,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *authService) HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *authService) CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// NewSession — access JWT + refresh-токен; refresh сохраняется у пользователя.
func (s *authService) NewSession(ctx context.Context, user *models.User) (*TokenPair, error) {
	claims := &middleware.Claims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	refresh, err := utils.NewRefreshToken(32)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRefresh(ctx, user.ID, refresh, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RotateSession — обмен refresh-токена: старый сразу перестаёт действовать.
func (s *authService) RotateSession(ctx context.Context, refreshToken string) (*TokenPair, *models.User, error) {
	current, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if current == nil || current.RefreshRevoked ||
		current.RefreshExpiresAt == nil || time.Now().After(*current.RefreshExpiresAt) {
		return nil, nil, ErrInvalidRefresh
	}

	newRefresh, err := utils.NewRefreshToken(32)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.RotateRefresh(ctx, refreshToken, newRefresh, time.Now().Add(s.refreshTTL))
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrInvalidRefresh
	}

	claims := &middleware.Claims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: newRefresh}, user, nil
}
