package repository

import (
	"context"
	"fmt"

	"gptme-server/internal/domain"

	"gorm.io/gorm"
)

type sqlArticleRepository struct {
	db *gorm.DB
}

func NewSQLArticleRepository(db *gorm.DB) ArticleRepository {
	return &sqlArticleRepository{db: db}
}

func (r *sqlArticleRepository) FindByID(ctx context.Context, id string) (*domain.Article, error) {
	var m articleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to find article: %w", translateSQLError(err))
	}
	return m.toDomain(), nil
}

func (r *sqlArticleRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Article, error) {
	var models []articleModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	articles := make([]*domain.Article, 0, len(models))
	for i := range models {
		articles = append(articles, models[i].toDomain())
	}
	return articles, nil
}

func (r *sqlArticleRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&articleModel{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

func (m *articleModel) toDomain() *domain.Article {
	a := &domain.Article{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.SessionID != nil {
		a.SessionID = *m.SessionID
	}
	return a
}
