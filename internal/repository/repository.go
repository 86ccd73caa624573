package repository

import (
	"context"
	"errors"
	"fmt"

	"gptme-server/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateSelectedModel(ctx context.Context, id, model string) error
}

// NoteRepository stores notes. Append assigns note.Order itself: one past
// the owner's current maximum, or 0 for the owner's first note.
type NoteRepository interface {
	Append(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Note, error)
	ListByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Note, error)
	Reorder(ctx context.Context, userID string, orderedIDs []string) error
	Delete(ctx context.Context, id string) error
}

// ChatRepository stores sessions and their messages. AppendMessages assigns
// increasing sequence numbers in argument order and writes all messages or
// none.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	FindSession(ctx context.Context, id string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error)
	UpdateTitle(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	AppendMessages(ctx context.Context, sessionID string, messages ...*domain.ChatMessage) error
	AppendEssay(ctx context.Context, message *domain.ChatMessage, article *domain.Article) error
	ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error)
}

type ArticleRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Article, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Article, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Users    UserRepository
	Notes    NoteRepository
	Chats    ChatRepository
	Articles ArticleRepository
	Close    func() error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Open returns the store for driver: "couchdb" selects CouchDB, anything
// else the SQLite file at sqlitePath.
func Open(ctx context.Context, driver, sqlitePath, couchURL, dbName string) (*Store, error) {
	if driver == "couchdb" {
		store, err := OpenCouchDB(ctx, couchURL, dbName)
		if err != nil {
			return nil, fmt.Errorf("failed to open CouchDB: %w", err)
		}
		return store, nil
	}

	store, err := OpenSQLite(sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	return store, nil
}
