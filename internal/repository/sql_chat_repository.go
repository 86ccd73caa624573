package repository

import (
	"context"
	"fmt"

	"gptme-server/internal/domain"

	"gorm.io/gorm"
)

type sqlChatRepository struct {
	db *gorm.DB
}

func NewSQLChatRepository(db *gorm.DB) ChatRepository {
	return &sqlChatRepository{db: db}
}

func (r *sqlChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	m := &sessionModel{
		ID:        session.ID,
		UserID:    session.UserID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", translateSQLError(err))
	}
	return nil
}

func (r *sqlChatRepository) FindSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	var m sessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to find session: %w", translateSQLError(err))
	}
	return m.toDomain(), nil
}

func (r *sqlChatRepository) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	var models []sessionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*domain.ChatSession, 0, len(models))
	for i := range models {
		sessions = append(sessions, models[i].toDomain())
	}
	return sessions, nil
}

func (r *sqlChatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	res := r.db.WithContext(ctx).Model(&sessionModel{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("failed to update session title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqlChatRepository) DeleteSession(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&messageModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete session messages: %w", err)
		}

		res := tx.Where("id = ?", id).Delete(&sessionModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *sqlChatRepository) AppendMessages(ctx context.Context, sessionID string, messages ...*domain.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendMessagesTx(tx, sessionID, messages)
	})
}

func (r *sqlChatRepository) AppendEssay(ctx context.Context, message *domain.ChatMessage, article *domain.Article) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := appendMessagesTx(tx, message.SessionID, []*domain.ChatMessage{message}); err != nil {
			return err
		}

		m := &articleModel{
			ID:        article.ID,
			UserID:    article.UserID,
			Title:     article.Title,
			Content:   article.Content,
			CreatedAt: article.CreatedAt,
		}
		if article.SessionID != "" {
			sessionID := article.SessionID
			m.SessionID = &sessionID
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create article: %w", translateSQLError(err))
		}
		return nil
	})
}

func appendMessagesTx(tx *gorm.DB, sessionID string, messages []*domain.ChatMessage) error {
	var maxSeq int64
	row := tx.Model(&messageModel{}).Where("session_id = ?", sessionID).Select("COALESCE(MAX(sequence), 0)").Row()
	if err := row.Scan(&maxSeq); err != nil {
		return fmt.Errorf("failed to read message sequence: %w", err)
	}

	for _, msg := range messages {
		maxSeq++
		msg.SessionID = sessionID
		msg.Sequence = maxSeq

		m := &messageModel{
			ID:        msg.ID,
			SessionID: msg.SessionID,
			Sequence:  msg.Sequence,
			Role:      string(msg.Role),
			Content:   msg.Content,
			IsEssay:   msg.IsEssay,
			CreatedAt: msg.CreatedAt,
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", translateSQLError(err))
		}
	}
	return nil
}

func (r *sqlChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	var models []messageModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]*domain.ChatMessage, 0, len(models))
	for _, m := range models {
		messages = append(messages, &domain.ChatMessage{
			ID:        m.ID,
			SessionID: m.SessionID,
			Sequence:  m.Sequence,
			Role:      domain.Role(m.Role),
			Content:   m.Content,
			IsEssay:   m.IsEssay,
			CreatedAt: m.CreatedAt,
		})
	}
	return messages, nil
}

func (m *sessionModel) toDomain() *domain.ChatSession {
	return &domain.ChatSession{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
	}
}
