package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gptme-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchArticleDoc struct {
	DocID     string    `json:"_id,omitempty"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type couchArticleRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchArticleRepository(client *kivik.Client, dbName string) ArticleRepository {
	return &couchArticleRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *couchArticleRepository) FindByID(ctx context.Context, id string) (*domain.Article, error) {
	db := r.client.DB(r.dbName)

	var doc couchArticleDoc
	if err := db.Get(ctx, fmt.Sprintf("article:%s", id)).ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to find article: %w", couchError(err))
	}
	return doc.toDomain(), nil
}

func (r *couchArticleRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Article, error) {
	docs, err := r.listDocs(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	articles := make([]*domain.Article, 0, len(docs))
	for _, d := range docs {
		articles = append(articles, d.toDomain())
	}
	return articles, nil
}

func (r *couchArticleRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	docs, err := r.listDocs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *couchArticleRepository) listDocs(ctx context.Context, userID string) ([]*couchArticleDoc, error) {
	db := r.client.DB(r.dbName)

	docs, err := findDocs[couchArticleDoc](ctx, db, map[string]interface{}{
		"type":    docTypeArticle,
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return docs, nil
}

func newCouchArticleDoc(a *domain.Article) *couchArticleDoc {
	return &couchArticleDoc{
		DocID:     fmt.Sprintf("article:%s", a.ID),
		Type:      docTypeArticle,
		ID:        a.ID,
		UserID:    a.UserID,
		SessionID: a.SessionID,
		Title:     a.Title,
		Content:   a.Content,
		CreatedAt: a.CreatedAt,
	}
}

func (d *couchArticleDoc) toDomain() *domain.Article {
	return &domain.Article{
		ID:        d.ID,
		UserID:    d.UserID,
		SessionID: d.SessionID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
}
