package repository

import (
	"context"
	"fmt"
	"time"

	"gptme-server/internal/domain"

	"gorm.io/gorm"
)

type sqlUserRepository struct {
	db *gorm.DB
}

func NewSQLUserRepository(db *gorm.DB) UserRepository {
	return &sqlUserRepository{db: db}
}

func (r *sqlUserRepository) Create(ctx context.Context, user *domain.User) error {
	m := &userModel{
		ID:            user.ID,
		Username:      user.Username,
		PasswordHash:  user.Password,
		SelectedModel: user.SelectedModel,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}

	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translateSQLError(err))
	}

	return nil
}

func (r *sqlUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var m userModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", translateSQLError(err))
	}
	return m.toDomain(), nil
}

func (r *sqlUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var m userModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", translateSQLError(err))
	}
	return m.toDomain(), nil
}

func (r *sqlUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&userModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

func (r *sqlUserRepository) UpdateSelectedModel(ctx context.Context, id, model string) error {
	res := r.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"selected_model": model,
		"updated_at":     time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update selected model: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *userModel) toDomain() *domain.User {
	return &domain.User{
		ID:            m.ID,
		Username:      m.Username,
		Password:      m.PasswordHash,
		SelectedModel: m.SelectedModel,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
