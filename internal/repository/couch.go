package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
)

const (
	docTypeUser     = "user"
	docTypeUsername = "username"
	docTypeNote     = "note"
	docTypeSession  = "session"
	docTypeMessage  = "message"
	docTypeArticle  = "article"
)

// OpenCouchDB connects to CouchDB, creates the database when missing and
// ensures the Mango indexes used by the repositories.
func OpenCouchDB(ctx context.Context, url, dbName string) (*Store, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	db := client.DB(dbName)
	indexes := map[string][]string{
		"by-type-user":    {"type", "user_id"},
		"by-type-session": {"type", "session_id"},
	}
	for name, fields := range indexes {
		index := map[string]interface{}{"fields": fields}
		if err := db.CreateIndex(ctx, "", name, index); err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	return &Store{
		Users:    NewCouchUserRepository(client, dbName),
		Notes:    NewCouchNoteRepository(client, dbName),
		Chats:    NewCouchChatRepository(client, dbName),
		Articles: NewCouchArticleRepository(client, dbName),
		Close:    client.Close,
	}, nil
}

func couchError(err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrDuplicate
	}
	return err
}

// findPageSize bounds one _find round trip. CouchDB caps an unbounded
// query at 25 docs, so findDocs always pages.
var findPageSize = 200

// findDocs runs a Mango selector and scans every matching doc into T,
// following bookmarks until a short page.
func findDocs[T any](ctx context.Context, db *kivik.DB, selector map[string]interface{}) ([]*T, error) {
	var docs []*T
	bookmark := ""
	for {
		page, next, err := findPage[T](ctx, db, selector, bookmark)
		if err != nil {
			return nil, err
		}
		docs = append(docs, page...)
		if len(page) < findPageSize || next == "" || next == bookmark {
			return docs, nil
		}
		bookmark = next
	}
}

func findPage[T any](ctx context.Context, db *kivik.DB, selector map[string]interface{}, bookmark string) ([]*T, string, error) {
	query := map[string]interface{}{
		"selector": selector,
		"limit":    findPageSize,
	}
	if bookmark != "" {
		query["bookmark"] = bookmark
	}

	rows := db.Find(ctx, query)
	defer rows.Close()

	var docs []*T
	for rows.Next() {
		var doc T
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, "", err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	meta, err := rows.Metadata()
	if err != nil {
		return nil, "", err
	}
	return docs, meta.Bookmark, nil
}

func bulkWrite(ctx context.Context, db *kivik.DB, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}

	results, err := db.BulkDocs(ctx, docs)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Error != nil {
			return fmt.Errorf("bulk write %s: %w", res.ID, couchError(res.Error))
		}
	}
	return nil
}

func sortByOrder(notes []*couchNoteDoc) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Order != notes[j].Order {
			return notes[i].Order < notes[j].Order
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
}
