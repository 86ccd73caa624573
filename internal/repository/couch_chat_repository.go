package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gptme-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchSessionDoc struct {
	DocID     string    `json:"_id,omitempty"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type couchMessageDoc struct {
	DocID     string    `json:"_id,omitempty"`
	Rev       string    `json:"_rev,omitempty"`
	Deleted   bool      `json:"_deleted,omitempty"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sequence  int64     `json:"sequence"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	IsEssay   bool      `json:"is_essay"`
	CreatedAt time.Time `json:"created_at"`
}

type couchChatRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchChatRepository(client *kivik.Client, dbName string) ChatRepository {
	return &couchChatRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *couchChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("session:%s", session.ID)
	doc := &couchSessionDoc{
		Type:      docTypeSession,
		ID:        session.ID,
		UserID:    session.UserID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
	}
	if _, err := db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to create session: %w", couchError(err))
	}
	return nil
}

func (r *couchChatRepository) FindSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	doc, err := r.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *couchChatRepository) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	db := r.client.DB(r.dbName)

	docs, err := findDocs[couchSessionDoc](ctx, db, map[string]interface{}{
		"type":    docTypeSession,
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	sessions := make([]*domain.ChatSession, 0, len(docs))
	for _, d := range docs {
		sessions = append(sessions, d.toDomain())
	}
	return sessions, nil
}

func (r *couchChatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	doc, err := r.getSession(ctx, id)
	if err != nil {
		return err
	}

	doc.Title = title

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to update session title: %w", couchError(err))
	}
	return nil
}

// DeleteSession removes the session's messages and unlinks its articles
// before removing the session itself.
func (r *couchChatRepository) DeleteSession(ctx context.Context, id string) error {
	doc, err := r.getSession(ctx, id)
	if err != nil {
		return err
	}

	messages, err := r.listMessageDocs(ctx, id)
	if err != nil {
		return err
	}

	db := r.client.DB(r.dbName)
	articles, err := findDocs[couchArticleDoc](ctx, db, map[string]interface{}{
		"type":       docTypeArticle,
		"session_id": id,
	})
	if err != nil {
		return fmt.Errorf("failed to list session articles: %w", err)
	}

	writes := make([]interface{}, 0, len(messages)+len(articles))
	for _, m := range messages {
		m.Deleted = true
		writes = append(writes, m)
	}
	for _, a := range articles {
		a.SessionID = ""
		writes = append(writes, a)
	}

	if err := bulkWrite(ctx, db, writes); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}

	if _, err := db.Delete(ctx, doc.DocID, doc.Rev); err != nil {
		return fmt.Errorf("failed to delete session: %w", couchError(err))
	}
	return nil
}

func (r *couchChatRepository) AppendMessages(ctx context.Context, sessionID string, messages ...*domain.ChatMessage) error {
	docs, err := r.messageDocs(ctx, sessionID, messages)
	if err != nil {
		return err
	}

	if err := bulkWrite(ctx, r.client.DB(r.dbName), docs); err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	return nil
}

func (r *couchChatRepository) AppendEssay(ctx context.Context, message *domain.ChatMessage, article *domain.Article) error {
	docs, err := r.messageDocs(ctx, message.SessionID, []*domain.ChatMessage{message})
	if err != nil {
		return err
	}

	docs = append(docs, newCouchArticleDoc(article))
	if err := bulkWrite(ctx, r.client.DB(r.dbName), docs); err != nil {
		return fmt.Errorf("failed to append essay: %w", err)
	}
	return nil
}

func (r *couchChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	docs, err := r.listMessageDocs(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.ChatMessage, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, &domain.ChatMessage{
			ID:        d.ID,
			SessionID: d.SessionID,
			Sequence:  d.Sequence,
			Role:      domain.Role(d.Role),
			Content:   d.Content,
			IsEssay:   d.IsEssay,
			CreatedAt: d.CreatedAt,
		})
	}
	return messages, nil
}

// messageDocs numbers messages after the session's current last sequence.
// The session must exist.
func (r *couchChatRepository) messageDocs(ctx context.Context, sessionID string, messages []*domain.ChatMessage) ([]interface{}, error) {
	if _, err := r.getSession(ctx, sessionID); err != nil {
		return nil, err
	}

	existing, err := r.listMessageDocs(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var seq int64
	if n := len(existing); n > 0 {
		seq = existing[n-1].Sequence
	}

	docs := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		seq++
		msg.SessionID = sessionID
		msg.Sequence = seq
		docs = append(docs, &couchMessageDoc{
			DocID:     fmt.Sprintf("message:%s", msg.ID),
			Type:      docTypeMessage,
			ID:        msg.ID,
			SessionID: sessionID,
			Sequence:  seq,
			Role:      string(msg.Role),
			Content:   msg.Content,
			IsEssay:   msg.IsEssay,
			CreatedAt: msg.CreatedAt,
		})
	}
	return docs, nil
}

func (r *couchChatRepository) listMessageDocs(ctx context.Context, sessionID string) ([]*couchMessageDoc, error) {
	db := r.client.DB(r.dbName)

	docs, err := findDocs[couchMessageDoc](ctx, db, map[string]interface{}{
		"type":       docTypeMessage,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Sequence < docs[j].Sequence
	})
	return docs, nil
}

func (r *couchChatRepository) getSession(ctx context.Context, id string) (*couchSessionDoc, error) {
	db := r.client.DB(r.dbName)

	var doc couchSessionDoc
	if err := db.Get(ctx, fmt.Sprintf("session:%s", id)).ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to find session: %w", couchError(err))
	}
	return &doc, nil
}

func (d *couchSessionDoc) toDomain() *domain.ChatSession {
	return &domain.ChatSession{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		CreatedAt: d.CreatedAt,
	}
}
