package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/nounce/nounced/domain"
)

// Posts
const (
	// INSERT OR IGNORE makes the cache write replayable: a reconciled
	// retry with the same (content_id, chain_post_id) key is a no-op.
	sqlInsertPost = `INSERT OR IGNORE INTO posts(id, author_id, content_id, content_type, caption, on_chain, chain_post_id, tx_hash, sync_pending, created_at)
                     VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectPostById = `SELECT id, author_id, content_id, content_type, caption, on_chain, chain_post_id, tx_hash, like_count, comment_count, sync_pending, is_deleted, created_at
                         FROM posts WHERE id = ?`

	sqlSoftDeletePost   = `UPDATE posts SET is_deleted = 1 WHERE id = ?`
	sqlClearSyncPending = `UPDATE posts SET sync_pending = 0, on_chain = 1, chain_post_id = ?, tx_hash = ? WHERE id = ?`
	sqlAbandonSync      = `UPDATE posts SET sync_pending = 0, on_chain = 0, chain_post_id = 0, tx_hash = '' WHERE id = ?`

	sqlBumpCommentCount = `UPDATE posts SET comment_count = comment_count + ? WHERE id = ?`
)

func (db *DB) CreatePost(post *domain.Post) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertPost,
			post.Id.String(),
			post.AuthorId.String(),
			post.ContentId,
			post.ContentType,
			post.Caption,
			post.OnChain,
			post.ChainPostId,
			post.TxHash,
			post.SyncPending,
			post.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	row := db.db.QueryRow(sqlSelectPostById, id.String())
	var post domain.Post
	var idStr, authorIdStr string
	err := row.Scan(
		&idStr,
		&authorIdStr,
		&post.ContentId,
		&post.ContentType,
		&post.Caption,
		&post.OnChain,
		&post.ChainPostId,
		&post.TxHash,
		&post.LikeCount,
		&post.CommentCount,
		&post.SyncPending,
		&post.IsDeleted,
		&post.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	post.Id, _ = uuid.Parse(idStr)
	post.AuthorId, _ = uuid.Parse(authorIdStr)
	return nil, &post
}

// SoftDeletePost marks the post deleted. The row is retained forever and
// excluded from every future read.
func (db *DB) SoftDeletePost(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlSoftDeletePost, id.String())
		return err
	})
}

// SettleChainPost records the ledger identifiers once the transaction is
// confirmed and clears the pending-sync flag.
func (db *DB) SettleChainPost(id uuid.UUID, chainPostId int64, txHash string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlClearSyncPending, chainPostId, txHash, id.String())
		return err
	})
}

// AbandonChainSync downgrades a pending post to plain off-chain, used
// when its transaction turns out to have reverted.
func (db *DB) AbandonChainSync(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAbandonSync, id.String())
		return err
	})
}

// Comments
const (
	sqlInsertComment = `INSERT INTO comments(id, post_id, author_id, message, created_at) VALUES (?, ?, ?, ?, ?)`

	sqlSelectCommentById = `SELECT id, post_id, author_id, message, is_deleted, created_at FROM comments WHERE id = ?`

	sqlSelectCommentsByPostId = `SELECT id, post_id, author_id, message, is_deleted, created_at FROM comments
                                 WHERE post_id = ? AND is_deleted = 0
                                 ORDER BY created_at ASC, id ASC`

	sqlSoftDeleteComment = `UPDATE comments SET is_deleted = 1 WHERE id = ?`
)

// CreateComment inserts the comment and bumps the post's denormalized
// counter in the same transaction.
func (db *DB) CreateComment(comment *domain.Comment) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertComment,
			comment.Id.String(),
			comment.PostId.String(),
			comment.AuthorId.String(),
			comment.Message,
			comment.CreatedAt,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(sqlBumpCommentCount, 1, comment.PostId.String())
		return err
	})
}

func (db *DB) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	row := db.db.QueryRow(sqlSelectCommentById, id.String())
	var comment domain.Comment
	var idStr, postIdStr, authorIdStr string
	err := row.Scan(&idStr, &postIdStr, &authorIdStr, &comment.Message, &comment.IsDeleted, &comment.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	comment.Id, _ = uuid.Parse(idStr)
	comment.PostId, _ = uuid.Parse(postIdStr)
	comment.AuthorId, _ = uuid.Parse(authorIdStr)
	return nil, &comment
}

func (db *DB) ReadCommentsByPostId(postId uuid.UUID) (error, *[]domain.Comment) {
	rows, err := db.db.Query(sqlSelectCommentsByPostId, postId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		var idStr, postIdStr, authorIdStr string
		if err := rows.Scan(&idStr, &postIdStr, &authorIdStr, &comment.Message, &comment.IsDeleted, &comment.CreatedAt); err != nil {
			return err, &comments
		}
		comment.Id, _ = uuid.Parse(idStr)
		comment.PostId, _ = uuid.Parse(postIdStr)
		comment.AuthorId, _ = uuid.Parse(authorIdStr)
		comments = append(comments, comment)
	}
	if err = rows.Err(); err != nil {
		return err, &comments
	}
	return nil, &comments
}

// SoftDeleteComment marks the comment deleted and decrements the post's
// counter in the same transaction.
func (db *DB) SoftDeleteComment(id uuid.UUID, postId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlSoftDeleteComment, id.String())
		if err != nil {
			return err
		}
		_, err = tx.Exec(sqlBumpCommentCount, -1, postId.String())
		return err
	})
}
