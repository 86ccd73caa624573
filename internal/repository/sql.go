package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type userModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Username      string    `gorm:"size:80;uniqueIndex;not null"`
	PasswordHash  string    `gorm:"size:120;not null"`
	SelectedModel string    `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (userModel) TableName() string { return "users" }

type noteModel struct {
	ID        string     `gorm:"primaryKey;size:36"`
	UserID    string     `gorm:"size:36;not null;index:idx_notes_user_order,priority:1"`
	Content   string     `gorm:"type:text;not null"`
	Category  string     `gorm:"size:50;not null"`
	Order     int        `gorm:"column:sort_order;not null;default:0;index:idx_notes_user_order,priority:2"`
	IsEssay   bool       `gorm:"not null;default:false"`
	CreatedAt time.Time  `gorm:"not null"`
	User      *userModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (noteModel) TableName() string { return "notes" }

type sessionModel struct {
	ID        string     `gorm:"primaryKey;size:36"`
	UserID    string     `gorm:"size:36;not null;index"`
	Title     string     `gorm:"size:200;not null"`
	CreatedAt time.Time  `gorm:"not null;index"`
	User      *userModel `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (sessionModel) TableName() string { return "chat_sessions" }

type messageModel struct {
	ID        string        `gorm:"primaryKey;size:36"`
	SessionID string        `gorm:"size:36;not null;uniqueIndex:idx_messages_session_seq,priority:1"`
	Sequence  int64         `gorm:"not null;uniqueIndex:idx_messages_session_seq,priority:2"`
	Role      string        `gorm:"size:16;not null"`
	Content   string        `gorm:"type:text;not null"`
	IsEssay   bool          `gorm:"not null;default:false"`
	CreatedAt time.Time     `gorm:"not null"`
	Session   *sessionModel `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (messageModel) TableName() string { return "chat_messages" }

type articleModel struct {
	ID        string        `gorm:"primaryKey;size:36"`
	UserID    string        `gorm:"size:36;not null;index"`
	SessionID *string       `gorm:"size:36;index"`
	Title     string        `gorm:"size:200;not null"`
	Content   string        `gorm:"type:text;not null"`
	CreatedAt time.Time     `gorm:"not null"`
	User      *userModel    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Session   *sessionModel `gorm:"foreignKey:SessionID;constraint:OnDelete:SET NULL"`
}

func (articleModel) TableName() string { return "articles" }

// OpenSQLite opens (creating if needed) the single-file database at path
// and migrates the schema.
func OpenSQLite(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	// Transactions take the write lock on BEGIN so a read-then-write
	// transaction waits on busy_timeout instead of failing its lock upgrade.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&userModel{}, &noteModel{}, &sessionModel{}, &messageModel{}, &articleModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	return &Store{
		Users:    NewSQLUserRepository(db),
		Notes:    NewSQLNoteRepository(db),
		Chats:    NewSQLChatRepository(db),
		Articles: NewSQLArticleRepository(db),
		Close:    sqlDB.Close,
	}, nil
}

func translateSQLError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated), strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		// The referenced user or session is gone.
		return ErrNotFound
	}
	return err
}
