package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema for the given driver on an open database
func Migrate(db *sql.DB, driver string) error {
	if driver == "postgres" {
		return createPostgresTables(db)
	}
	return createTables(db)
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'private',
		state TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_collections_user_created ON collections(user_id, created_at DESC, id DESC);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		uuid TEXT NOT NULL UNIQUE,
		content_type TEXT NOT NULL,
		size BIGINT NOT NULL,
		checksum TEXT NOT NULL,
		stored_path TEXT NOT NULL,
		orientation INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS item_data (
		id TEXT PRIMARY KEY,
		link_url TEXT NOT NULL UNIQUE,
		item_type TEXT NOT NULL DEFAULT 'url',
		post_count INTEGER NOT NULL DEFAULT 0,
		upvote_count INTEGER NOT NULL DEFAULT 0,
		root_item_id TEXT NOT NULL,
		image_attachment_id TEXT REFERENCES attachments(id) ON DELETE SET NULL,
		image_pending BOOLEAN NOT NULL DEFAULT TRUE,
		html_preview TEXT,
		requested_image_url TEXT,
		abandoned_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_item_data_pending ON item_data(image_pending, updated_at);

	CREATE TABLE IF NOT EXISTS collection_items (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active',
		item_data_id TEXT NOT NULL REFERENCES item_data(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_collection_items_collection ON collection_items(collection_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_collection_items_data ON collection_items(item_data_id);

	CREATE TABLE IF NOT EXISTS item_data_upvotes (
		item_data_id TEXT NOT NULL REFERENCES item_data(id),
		user_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (item_data_id, user_id)
	);
	`

	_, err := db.Exec(schema)
	return err
}
