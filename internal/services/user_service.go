package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/repositories"
)

type UserService interface {
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// LinkTelegram — upsert из callback Login Widget (телефона может не быть).
	LinkTelegram(ctx context.Context, u *models.User) error
}

type userService struct {
	repo repositories.UserRepository
}

func NewUserService(repo repositories.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.repo.GetByPhone(ctx, phone)
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *userService) LinkTelegram(ctx context.Context, u *models.User) error {
	return s.repo.UpsertByTelegramID(ctx, u)
}
