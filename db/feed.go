package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/nounce/nounced/domain"
)

// Feed queries. Ordering is deterministic: creation time descending with
// the post id as tie-break, so pages never overlap or reorder between
// requests. Enrichment (author fields, counters, viewer like state) comes
// from this store only, never from the ledger.
const (
	sqlSelectFeedPage = `SELECT p.id, p.author_id, p.content_id, p.content_type, p.caption, p.on_chain, p.chain_post_id, p.tx_hash,
                                p.like_count, p.comment_count, p.sync_pending, p.is_deleted, p.created_at,
                                a.wallet, a.name, a.avatar_cid,
                                EXISTS(SELECT 1 FROM edges l WHERE l.edge_type = 'like' AND l.from_id = ? AND l.to_id = p.id)
                         FROM posts p
                         INNER JOIN accounts a ON a.id = p.author_id
                         WHERE p.is_deleted = 0
                           AND p.author_id IN (SELECT to_id FROM edges f WHERE f.edge_type = 'follow' AND f.from_id = ?)
                         ORDER BY p.created_at DESC, p.id DESC
                         LIMIT ? OFFSET ?`

	sqlSelectExplorePage = `SELECT p.id, p.author_id, p.content_id, p.content_type, p.caption, p.on_chain, p.chain_post_id, p.tx_hash,
                                   p.like_count, p.comment_count, p.sync_pending, p.is_deleted, p.created_at,
                                   a.wallet, a.name, a.avatar_cid,
                                   EXISTS(SELECT 1 FROM edges l WHERE l.edge_type = 'like' AND l.from_id = ? AND l.to_id = p.id)
                            FROM posts p
                            INNER JOIN accounts a ON a.id = p.author_id
                            WHERE p.is_deleted = 0
                            ORDER BY p.like_count DESC, p.created_at DESC, p.id DESC
                            LIMIT ? OFFSET ?`

	sqlSelectPostsByAuthor = `SELECT p.id, p.author_id, p.content_id, p.content_type, p.caption, p.on_chain, p.chain_post_id, p.tx_hash,
                                     p.like_count, p.comment_count, p.sync_pending, p.is_deleted, p.created_at,
                                     a.wallet, a.name, a.avatar_cid,
                                     EXISTS(SELECT 1 FROM edges l WHERE l.edge_type = 'like' AND l.from_id = ? AND l.to_id = p.id)
                              FROM posts p
                              INNER JOIN accounts a ON a.id = p.author_id
                              WHERE p.is_deleted = 0 AND p.author_id = ?
                              ORDER BY p.created_at DESC, p.id DESC`
)

func (db *DB) ReadFeedPage(viewerId uuid.UUID, limit, offset int) (error, *[]domain.PostSummary) {
	rows, err := db.db.Query(sqlSelectFeedPage, viewerId.String(), viewerId.String(), limit, offset)
	if err != nil {
		return err, nil
	}
	return db.scanSummaries(rows)
}

func (db *DB) ReadExplorePage(viewerId uuid.UUID, limit, offset int) (error, *[]domain.PostSummary) {
	rows, err := db.db.Query(sqlSelectExplorePage, viewerId.String(), limit, offset)
	if err != nil {
		return err, nil
	}
	return db.scanSummaries(rows)
}

func (db *DB) ReadPostsByAuthor(viewerId, authorId uuid.UUID) (error, *[]domain.PostSummary) {
	rows, err := db.db.Query(sqlSelectPostsByAuthor, viewerId.String(), authorId.String())
	if err != nil {
		return err, nil
	}
	return db.scanSummaries(rows)
}

func (db *DB) scanSummaries(rows *sql.Rows) (error, *[]domain.PostSummary) {
	defer rows.Close()

	var summaries []domain.PostSummary
	for rows.Next() {
		var s domain.PostSummary
		var idStr, authorIdStr string
		if err := rows.Scan(
			&idStr,
			&authorIdStr,
			&s.ContentId,
			&s.ContentType,
			&s.Caption,
			&s.OnChain,
			&s.ChainPostId,
			&s.TxHash,
			&s.LikeCount,
			&s.CommentCount,
			&s.SyncPending,
			&s.IsDeleted,
			&s.CreatedAt,
			&s.AuthorWallet,
			&s.AuthorName,
			&s.AuthorAvatarCid,
			&s.ViewerLiked,
		); err != nil {
			return err, &summaries
		}
		s.Id, _ = uuid.Parse(idStr)
		s.AuthorId, _ = uuid.Parse(authorIdStr)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return err, &summaries
	}
	return nil, &summaries
}
