package repository

import (
	"context"
	"fmt"
	"time"

	"gptme-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchUserDoc struct {
	DocID         string    `json:"_id,omitempty"`
	Rev           string    `json:"_rev,omitempty"`
	Type          string    `json:"type"`
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Password      string    `json:"password"`
	SelectedModel string    `json:"selected_model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// couchUsernameDoc claims a username; its fixed document ID makes a second
// claim fail with a conflict.
type couchUsernameDoc struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type couchUserRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchUserRepository(client *kivik.Client, dbName string) UserRepository {
	return &couchUserRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *couchUserRepository) Create(ctx context.Context, user *domain.User) error {
	db := r.client.DB(r.dbName)

	claimID := fmt.Sprintf("username:%s", user.Username)
	if _, err := db.Put(ctx, claimID, &couchUsernameDoc{Type: docTypeUsername, UserID: user.ID}); err != nil {
		return fmt.Errorf("failed to claim username: %w", couchError(err))
	}

	docID := fmt.Sprintf("user:%s", user.ID)
	doc := &couchUserDoc{
		Type:          docTypeUser,
		ID:            user.ID,
		Username:      user.Username,
		Password:      user.Password,
		SelectedModel: user.SelectedModel,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
	if _, err := db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", couchError(err))
	}

	return nil
}

func (r *couchUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *couchUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	db := r.client.DB(r.dbName)

	var claim couchUsernameDoc
	if err := db.Get(ctx, fmt.Sprintf("username:%s", username)).ScanDoc(&claim); err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", couchError(err))
	}

	return r.FindByID(ctx, claim.UserID)
}

func (r *couchUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *couchUserRepository) UpdateSelectedModel(ctx context.Context, id, model string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	doc.SelectedModel = model
	doc.UpdatedAt = time.Now()

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to update user: %w", couchError(err))
	}
	return nil
}

func (r *couchUserRepository) get(ctx context.Context, id string) (*couchUserDoc, error) {
	db := r.client.DB(r.dbName)

	var doc couchUserDoc
	if err := db.Get(ctx, fmt.Sprintf("user:%s", id)).ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", couchError(err))
	}
	return &doc, nil
}

func (d *couchUserDoc) toDomain() *domain.User {
	return &domain.User{
		ID:            d.ID,
		Username:      d.Username,
		Password:      d.Password,
		SelectedModel: d.SelectedModel,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
