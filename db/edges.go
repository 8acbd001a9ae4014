package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/nounce/nounced/domain"
	"time"
)

// Edges
const (
	sqlInsertEdge = `INSERT INTO edges(edge_type, from_id, to_id, created_at) VALUES (?, ?, ?, ?)`
	sqlDeleteEdge = `DELETE FROM edges WHERE edge_type = ? AND from_id = ? AND to_id = ?`
	sqlEdgeExists = `SELECT EXISTS(SELECT 1 FROM edges WHERE edge_type = ? AND from_id = ? AND to_id = ?)`

	sqlSelectFollowingIds = `SELECT to_id FROM edges WHERE edge_type = 'follow' AND from_id = ?`
	sqlSelectFollowerIds  = `SELECT from_id FROM edges WHERE edge_type = 'follow' AND to_id = ?`

	// Counter mutations are atomic in-database increments, never
	// read-modify-write in the application.
	sqlBumpLikeCount      = `UPDATE posts SET like_count = like_count + ? WHERE id = ?`
	sqlBumpFollowerCount  = `UPDATE accounts SET follower_count = follower_count + ? WHERE id = ?`
	sqlBumpFollowingCount = `UPDATE accounts SET following_count = following_count + ? WHERE id = ?`
)

func (db *DB) EdgeExists(edgeType domain.EdgeType, from, to uuid.UUID) (error, bool) {
	var exists bool
	err := db.db.QueryRow(sqlEdgeExists, string(edgeType), from.String(), to.String()).Scan(&exists)
	if err != nil {
		return err, false
	}
	return nil, exists
}

// InsertFollowEdge creates the follow edge and bumps both denormalized
// counters in one transaction.
func (db *DB) InsertFollowEdge(follower, followee uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlInsertEdge, string(domain.EdgeFollow), follower.String(), followee.String(), time.Now()); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlBumpFollowerCount, 1, followee.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlBumpFollowingCount, 1, follower.String())
		return err
	})
}

func (db *DB) DeleteFollowEdge(follower, followee uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteEdge, string(domain.EdgeFollow), follower.String(), followee.String()); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlBumpFollowerCount, -1, followee.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlBumpFollowingCount, -1, follower.String())
		return err
	})
}

// InsertLikeEdge creates the like edge and bumps the post counter in one
// transaction.
func (db *DB) InsertLikeEdge(accountId, postId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlInsertEdge, string(domain.EdgeLike), accountId.String(), postId.String(), time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlBumpLikeCount, 1, postId.String())
		return err
	})
}

func (db *DB) DeleteLikeEdge(accountId, postId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteEdge, string(domain.EdgeLike), accountId.String(), postId.String()); err != nil {
			return err
		}
		_, err := tx.Exec(sqlBumpLikeCount, -1, postId.String())
		return err
	})
}

func (db *DB) ReadFollowingIds(accountId uuid.UUID) (error, *[]uuid.UUID) {
	return db.readEdgeIds(sqlSelectFollowingIds, accountId)
}

func (db *DB) ReadFollowerIds(accountId uuid.UUID) (error, *[]uuid.UUID) {
	return db.readEdgeIds(sqlSelectFollowerIds, accountId)
}

func (db *DB) readEdgeIds(query string, accountId uuid.UUID) (error, *[]uuid.UUID) {
	rows, err := db.db.Query(query, accountId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return err, &ids
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return err, &ids
	}
	return nil, &ids
}
