package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gptme-server/internal/domain"
	"gptme-server/internal/observability"
	"gptme-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NoteService struct {
	noteRepo  repository.NoteRepository
	publisher Publisher
	metrics   *observability.Collector
	logger    *zap.Logger
}

func NewNoteService(noteRepo repository.NoteRepository, publisher Publisher, metrics *observability.Collector, logger *zap.Logger) *NoteService {
	return &NoteService{
		noteRepo:  noteRepo,
		publisher: publisherOrNoop(publisher),
		metrics:   metrics,
		logger:    logger,
	}
}

// Add stores a note after the owner's last one and returns the owner's
// full list in display order.
func (s *NoteService) Add(ctx context.Context, userID string, req *domain.SaveNoteRequest) ([]*domain.Note, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.DefaultCategory
	}

	note := &domain.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   req.Note,
		Category:  category,
		IsEssay:   req.IsEssay,
		CreatedAt: time.Now(),
	}

	if err := s.noteRepo.Append(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}

	if s.metrics != nil {
		s.metrics.NotesSaved.Inc()
	}
	s.publisher.PublishToUser(userID, EventNoteSaved, NoteEvent{NoteID: note.ID})

	return s.List(ctx, userID)
}

func (s *NoteService) List(ctx context.Context, userID string) ([]*domain.Note, error) {
	notes, err := s.noteRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// Search matches query case-insensitively against content or category. An
// empty query matches every note; a non-empty category must match exactly.
func (s *NoteService) Search(ctx context.Context, userID, query, category string) ([]*domain.Note, error) {
	notes, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	matched := make([]*domain.Note, 0, len(notes))
	for _, n := range notes {
		if category != "" && n.Category != category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(n.Content), needle) &&
			!strings.Contains(strings.ToLower(n.Category), needle) {
			continue
		}
		matched = append(matched, n)
	}
	return matched, nil
}

// Selected returns the caller's notes among ids; foreign or unknown ids are
// ignored.
func (s *NoteService) Selected(ctx context.Context, userID string, ids []string) ([]*domain.Note, error) {
	notes, err := s.noteRepo.ListByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load selected notes: %w", err)
	}
	return notes, nil
}

// Reorder gives the note at position i the order i. Ids the caller does not
// own are skipped without error.
func (s *NoteService) Reorder(ctx context.Context, userID string, orderedIDs []string) error {
	if err := s.noteRepo.Reorder(ctx, userID, orderedIDs); err != nil {
		return fmt.Errorf("failed to reorder notes: %w", err)
	}

	s.publisher.PublishToUser(userID, EventNotesReordered, NotesReorderedEvent{NoteIDs: orderedIDs})
	return nil
}

func (s *NoteService) Delete(ctx context.Context, userID, id string) error {
	note, err := s.noteRepo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrNotFoundOrUnauthorized
		}
		return fmt.Errorf("failed to find note: %w", err)
	}

	if note.UserID != userID {
		s.logger.Warn("Rejected delete of foreign note",
			zap.String("user_id", userID),
			zap.String("note_id", id),
		)
		return ErrNotFoundOrUnauthorized
	}

	if err := s.noteRepo.Delete(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return ErrNotFoundOrUnauthorized
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}

	s.publisher.PublishToUser(userID, EventNoteDeleted, NoteEvent{NoteID: id})
	return nil
}
