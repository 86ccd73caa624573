package service

import (
	"context"
	"fmt"

	"gptme-server/internal/domain"
	"gptme-server/internal/repository"
	"gptme-server/pkg/markdown"
)

type ArticleService struct {
	articleRepo repository.ArticleRepository
	renderer    *markdown.Renderer
}

func NewArticleService(articleRepo repository.ArticleRepository, renderer *markdown.Renderer) *ArticleService {
	return &ArticleService{
		articleRepo: articleRepo,
		renderer:    renderer,
	}
}

func (s *ArticleService) List(ctx context.Context, userID string) ([]*domain.Article, error) {
	articles, err := s.articleRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

func (s *ArticleService) Get(ctx context.Context, userID, id string) (*domain.Article, error) {
	article, err := s.articleRepo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("failed to find article: %w", err)
	}

	if article.UserID != userID {
		return nil, ErrNotFoundOrUnauthorized
	}
	return article, nil
}

// RenderHTML returns the article with its markdown content rendered.
func (s *ArticleService) RenderHTML(ctx context.Context, userID, id string) (*domain.Article, string, error) {
	article, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}

	html, err := s.renderer.Render(article.Content)
	if err != nil {
		return nil, "", err
	}
	return article, html, nil
}
