package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gptme-server/internal/domain"

	"gorm.io/gorm"
)

type sqlNoteRepository struct {
	db *gorm.DB
}

func NewSQLNoteRepository(db *gorm.DB) NoteRepository {
	return &sqlNoteRepository{db: db}
}

func (r *sqlNoteRepository) Append(ctx context.Context, note *domain.Note) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder sql.NullInt64
		row := tx.Model(&noteModel{}).Where("user_id = ?", note.UserID).Select("MAX(sort_order)").Row()
		if err := row.Scan(&maxOrder); err != nil {
			return fmt.Errorf("failed to read max note order: %w", err)
		}

		note.Order = 0
		if maxOrder.Valid {
			note.Order = int(maxOrder.Int64) + 1
		}

		m := newNoteModel(note)
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create note: %w", translateSQLError(err))
		}
		return nil
	})
}

func (r *sqlNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var m noteModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to find note: %w", translateSQLError(err))
	}
	return m.toDomain(), nil
}

func (r *sqlNoteRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Note, error) {
	var models []noteModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sort_order ASC").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return noteModelsToDomain(models), nil
}

func (r *sqlNoteRepository) ListByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Note, error) {
	if len(ids) == 0 {
		return []*domain.Note{}, nil
	}

	var models []noteModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("sort_order ASC").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list selected notes: %w", err)
	}
	return noteModelsToDomain(models), nil
}

func (r *sqlNoteRepository) Reorder(ctx context.Context, userID string, orderedIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range orderedIDs {
			err := tx.Model(&noteModel{}).
				Where("id = ? AND user_id = ?", id, userID).
				Update("sort_order", i).Error
			if err != nil {
				return fmt.Errorf("failed to reorder note %s: %w", id, err)
			}
		}
		return nil
	})
}

func (r *sqlNoteRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&noteModel{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete note: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func newNoteModel(n *domain.Note) *noteModel {
	return &noteModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Content:   n.Content,
		Category:  n.Category,
		Order:     n.Order,
		IsEssay:   n.IsEssay,
		CreatedAt: n.CreatedAt,
	}
}

func (m *noteModel) toDomain() *domain.Note {
	return &domain.Note{
		ID:        m.ID,
		UserID:    m.UserID,
		Content:   m.Content,
		Category:  m.Category,
		Order:     m.Order,
		IsEssay:   m.IsEssay,
		CreatedAt: m.CreatedAt,
	}
}

func noteModelsToDomain(models []noteModel) []*domain.Note {
	notes := make([]*domain.Note, 0, len(models))
	for i := range models {
		notes = append(notes, models[i].toDomain())
	}
	return notes
}
