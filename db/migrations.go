package db

import (
	"database/sql"
	"log"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		wallet TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		bio TEXT DEFAULT '',
		avatar_cid TEXT DEFAULT '',
		nonce TEXT DEFAULT '',
		on_chain INTEGER DEFAULT 0,
		follower_count INTEGER DEFAULT 0,
		following_count INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_accounts_wallet ON accounts(wallet);
	`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		author_id TEXT NOT NULL,
		content_id TEXT NOT NULL,
		content_type TEXT DEFAULT 'image',
		caption TEXT NOT NULL,
		on_chain INTEGER DEFAULT 0,
		chain_post_id INTEGER DEFAULT 0,
		tx_hash TEXT DEFAULT '',
		like_count INTEGER DEFAULT 0,
		comment_count INTEGER DEFAULT 0,
		sync_pending INTEGER DEFAULT 0,
		is_deleted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	// The partial unique index is the idempotent retry key for on-chain
	// posts: content id + ledger post id. Off-chain posts may legitimately
	// reuse identical media bytes.
	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_posts_like_count ON posts(like_count DESC);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_posts_chain_key ON posts(content_id, chain_post_id) WHERE chain_post_id != 0;
	`

	// Edges are set-valued: the UNIQUE constraint is what makes a double
	// insert impossible at the storage level.
	sqlCreateEdgesTable = `CREATE TABLE IF NOT EXISTS edges (
		edge_type TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(edge_type, from_id, to_id)
	)`

	sqlCreateEdgesIndices = `
		CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(edge_type, from_id);
		CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(edge_type, to_id);
	`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		message TEXT NOT NULL,
		is_deleted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCommentsIndices = `
		CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	`

	sqlCreateSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`

	sqlCreateMessagesTable = `CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL PRIMARY KEY,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateMessagesIndices = `
		CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_id, to_id);
	`

	sqlCreateReconcileTable = `CREATE TABLE IF NOT EXISTS reconcile_queue (
		id TEXT NOT NULL PRIMARY KEY,
		payload TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
)

// RunMigrations creates all cache store tables and indices.
func (db *DB) RunMigrations() error {
	migrations := []struct {
		name string
		sql  string
	}{
		{"accounts table", sqlCreateAccountsTable},
		{"accounts indices", sqlCreateAccountsIndices},
		{"posts table", sqlCreatePostsTable},
		{"posts indices", sqlCreatePostsIndices},
		{"edges table", sqlCreateEdgesTable},
		{"edges indices", sqlCreateEdgesIndices},
		{"comments table", sqlCreateCommentsTable},
		{"comments indices", sqlCreateCommentsIndices},
		{"sessions table", sqlCreateSessionsTable},
		{"messages table", sqlCreateMessagesTable},
		{"messages indices", sqlCreateMessagesIndices},
		{"reconcile queue table", sqlCreateReconcileTable},
	}

	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, m := range migrations {
			if _, err := tx.Exec(m.sql); err != nil {
				log.Printf("Migration %q failed: %v", m.name, err)
				return err
			}
		}
		return nil
	})
}
