package repository

import (
	"context"
	"fmt"
	"time"

	"gptme-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchNoteDoc struct {
	DocID     string    `json:"_id,omitempty"`
	Rev       string    `json:"_rev,omitempty"`
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Order     int       `json:"order"`
	IsEssay   bool      `json:"is_essay"`
	CreatedAt time.Time `json:"created_at"`
}

type couchNoteRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchNoteRepository(client *kivik.Client, dbName string) NoteRepository {
	return &couchNoteRepository{
		client: client,
		dbName: dbName,
	}
}

// Append reads the owner's notes to find the current maximum order. CouchDB
// has no multi-document transactions, so two concurrent appends for the same
// owner may share an order value.
func (r *couchNoteRepository) Append(ctx context.Context, note *domain.Note) error {
	docs, err := r.listDocs(ctx, note.UserID)
	if err != nil {
		return err
	}

	note.Order = 0
	for _, d := range docs {
		if d.Order >= note.Order {
			note.Order = d.Order + 1
		}
	}

	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("note:%s", note.ID)
	doc := &couchNoteDoc{
		Type:      docTypeNote,
		ID:        note.ID,
		UserID:    note.UserID,
		Content:   note.Content,
		Category:  note.Category,
		Order:     note.Order,
		IsEssay:   note.IsEssay,
		CreatedAt: note.CreatedAt,
	}
	if _, err := db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to create note: %w", couchError(err))
	}

	return nil
}

func (r *couchNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	db := r.client.DB(r.dbName)

	var doc couchNoteDoc
	if err := db.Get(ctx, fmt.Sprintf("note:%s", id)).ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to find note: %w", couchError(err))
	}

	return doc.toDomain(), nil
}

func (r *couchNoteRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Note, error) {
	docs, err := r.listDocs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return noteDocsToDomain(docs), nil
}

func (r *couchNoteRepository) ListByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Note, error) {
	docs, err := r.listDocs(ctx, userID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var selected []*couchNoteDoc
	for _, d := range docs {
		if wanted[d.ID] {
			selected = append(selected, d)
		}
	}
	return noteDocsToDomain(selected), nil
}

func (r *couchNoteRepository) Reorder(ctx context.Context, userID string, orderedIDs []string) error {
	docs, err := r.listDocs(ctx, userID)
	if err != nil {
		return err
	}

	owned := make(map[string]*couchNoteDoc, len(docs))
	for _, d := range docs {
		owned[d.ID] = d
	}

	var updates []interface{}
	for i, id := range orderedIDs {
		doc, ok := owned[id]
		if !ok {
			continue
		}
		doc.Order = i
		updates = append(updates, doc)
	}

	if err := bulkWrite(ctx, r.client.DB(r.dbName), updates); err != nil {
		return fmt.Errorf("failed to reorder notes: %w", err)
	}
	return nil
}

func (r *couchNoteRepository) Delete(ctx context.Context, id string) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("note:%s", id)

	var doc couchNoteDoc
	if err := db.Get(ctx, docID).ScanDoc(&doc); err != nil {
		return couchError(err)
	}

	if _, err := db.Delete(ctx, docID, doc.Rev); err != nil {
		return fmt.Errorf("failed to delete note: %w", couchError(err))
	}

	return nil
}

func (r *couchNoteRepository) listDocs(ctx context.Context, userID string) ([]*couchNoteDoc, error) {
	db := r.client.DB(r.dbName)

	docs, err := findDocs[couchNoteDoc](ctx, db, map[string]interface{}{
		"type":    docTypeNote,
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	sortByOrder(docs)
	return docs, nil
}

func (d *couchNoteDoc) toDomain() *domain.Note {
	return &domain.Note{
		ID:        d.ID,
		UserID:    d.UserID,
		Content:   d.Content,
		Category:  d.Category,
		Order:     d.Order,
		IsEssay:   d.IsEssay,
		CreatedAt: d.CreatedAt,
	}
}

func noteDocsToDomain(docs []*couchNoteDoc) []*domain.Note {
	notes := make([]*domain.Note, 0, len(docs))
	for _, d := range docs {
		notes = append(notes, d.toDomain())
	}
	return notes
}
