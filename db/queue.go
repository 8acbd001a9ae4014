package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/domain"
)

// Messages
const (
	sqlInsertMessage = `INSERT INTO messages(id, from_id, to_id, body, created_at) VALUES (?, ?, ?, ?, ?)`

	sqlSelectMessagesBetween = `SELECT id, from_id, to_id, body, created_at FROM messages
                                WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
                                ORDER BY created_at ASC, id ASC
                                LIMIT ?`
)

func (db *DB) CreateMessage(msg *domain.Message) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertMessage,
			msg.Id.String(),
			msg.FromId.String(),
			msg.ToId.String(),
			msg.Body,
			msg.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadMessagesBetween(a, b uuid.UUID, limit int) (error, *[]domain.Message) {
	rows, err := db.db.Query(sqlSelectMessagesBetween, a.String(), b.String(), b.String(), a.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var idStr, fromStr, toStr string
		if err := rows.Scan(&idStr, &fromStr, &toStr, &msg.Body, &msg.CreatedAt); err != nil {
			return err, &msgs
		}
		msg.Id, _ = uuid.Parse(idStr)
		msg.FromId, _ = uuid.Parse(fromStr)
		msg.ToId, _ = uuid.Parse(toStr)
		msgs = append(msgs, msg)
	}
	if err = rows.Err(); err != nil {
		return err, &msgs
	}
	return nil, &msgs
}

// Reconcile queue: cache writes whose ledger step already succeeded and
// must be replayed until they land.
const (
	sqlInsertReconcile = `INSERT INTO reconcile_queue(id, payload, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?)`

	sqlSelectDueReconcile = `SELECT id, payload, attempts, next_retry_at, created_at FROM reconcile_queue
                             WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`

	sqlUpdateReconcileAttempt = `UPDATE reconcile_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteReconcile        = `DELETE FROM reconcile_queue WHERE id = ?`
)

func (db *DB) EnqueueReconcile(item *domain.ReconcileItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReconcile,
			item.Id.String(),
			item.Payload,
			item.Attempts,
			item.NextRetryAt,
			item.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadDueReconcile(limit int) (error, *[]domain.ReconcileItem) {
	rows, err := db.db.Query(sqlSelectDueReconcile, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.ReconcileItem
	for rows.Next() {
		var item domain.ReconcileItem
		var idStr string
		if err := rows.Scan(&idStr, &item.Payload, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return err, &items
		}
		item.Id, _ = uuid.Parse(idStr)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

func (db *DB) UpdateReconcileAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateReconcileAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteReconcile(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteReconcile, id.String())
		return err
	})
}
