package repository

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteParams are applied to every connection in the pool, unlike a one-off PRAGMA
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqliteParams
	} else {
		dsn += "?" + sqliteParams
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection keeps transactions serialized
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'private',
		state TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_collections_user_created ON collections(user_id, created_at DESC, id DESC);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		uuid TEXT NOT NULL UNIQUE,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		stored_path TEXT NOT NULL,
		orientation INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS item_data (
		id TEXT PRIMARY KEY,
		link_url TEXT NOT NULL UNIQUE,
		item_type TEXT NOT NULL DEFAULT 'url',
		post_count INTEGER NOT NULL DEFAULT 0,
		upvote_count INTEGER NOT NULL DEFAULT 0,
		root_item_id TEXT NOT NULL,
		image_attachment_id TEXT REFERENCES attachments(id) ON DELETE SET NULL,
		image_pending INTEGER NOT NULL DEFAULT 1,
		html_preview TEXT,
		requested_image_url TEXT,
		abandoned_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_item_data_pending ON item_data(image_pending, updated_at);

	-- collection_id is a weak reference: items outlive their collection
	CREATE TABLE IF NOT EXISTS collection_items (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active',
		item_data_id TEXT NOT NULL REFERENCES item_data(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_collection_items_collection ON collection_items(collection_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_collection_items_data ON collection_items(item_data_id);

	CREATE TABLE IF NOT EXISTS item_data_upvotes (
		item_data_id TEXT NOT NULL REFERENCES item_data(id),
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (item_data_id, user_id)
	);
	`

	_, err := db.Exec(schema)
	return err
}
