package db

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/util"
	"log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
	"time"
)

// DB is the mutable cache store: a queryable projection over accounts,
// posts, edges, counters and off-chain-only data. For on-chain entities
// the ledger stays authoritative; this store is never more than a mirror.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

// Accounts
const (
	sqlInsertAccount = `INSERT INTO accounts(id, wallet, name, bio, avatar_cid, nonce, on_chain, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectAccountByWallet = `SELECT id, wallet, name, bio, avatar_cid, nonce, on_chain, follower_count, following_count, created_at FROM accounts WHERE wallet = ?`
	sqlSelectAccountById     = `SELECT id, wallet, name, bio, avatar_cid, nonce, on_chain, follower_count, following_count, created_at FROM accounts WHERE id = ?`

	sqlUpdateAccountProfile = `UPDATE accounts SET name = ?, bio = ?, avatar_cid = ? WHERE id = ?`
	sqlUpdateAccountOnChain = `UPDATE accounts SET on_chain = ? WHERE id = ?`
	sqlUpdateAccountNonce   = `UPDATE accounts SET nonce = ? WHERE wallet = ?`
)

func (db *DB) CreateAccount(acc *domain.Account) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount,
			acc.Id.String(),
			acc.Wallet,
			acc.Name,
			acc.Bio,
			acc.AvatarCid,
			acc.Nonce,
			acc.OnChain,
			acc.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadAccountByWallet(wallet string) (error, *domain.Account) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountByWallet, util.NormalizeWallet(wallet)))
}

func (db *DB) ReadAccountById(id uuid.UUID) (error, *domain.Account) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
}

func (db *DB) scanAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	var idStr string
	err := row.Scan(
		&idStr,
		&acc.Wallet,
		&acc.Name,
		&acc.Bio,
		&acc.AvatarCid,
		&acc.Nonce,
		&acc.OnChain,
		&acc.FollowerCount,
		&acc.FollowingCount,
		&acc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	return nil, &acc
}

func (db *DB) UpdateAccountProfile(id uuid.UUID, name, bio, avatarCid string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountProfile, name, bio, avatarCid, id.String())
		return err
	})
}

func (db *DB) SetAccountOnChain(id uuid.UUID, onChain bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountOnChain, onChain, id.String())
		return err
	})
}

// RotateNonce replaces the account's single-use login nonce.
func (db *DB) RotateNonce(wallet string, nonce string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountNonce, nonce, util.NormalizeWallet(wallet))
		return err
	})
}

// Sessions
const (
	sqlInsertSession        = `INSERT INTO sessions(id, account_id, expires_at) VALUES (?, ?, ?)`
	sqlSelectSessionById    = `SELECT id, account_id, expires_at FROM sessions WHERE id = ?`
	sqlDeleteSessionById    = `DELETE FROM sessions WHERE id = ?`
	sqlDeleteExpiredSession = `DELETE FROM sessions WHERE expires_at <= ?`
)

func (db *DB) CreateSession(session *domain.Session) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertSession, session.Id.String(), session.AccountId.String(), session.ExpiresAt)
		return err
	})
}

func (db *DB) ReadSessionById(id uuid.UUID) (error, *domain.Session) {
	row := db.db.QueryRow(sqlSelectSessionById, id.String())
	var session domain.Session
	var idStr, accountIdStr string
	err := row.Scan(&idStr, &accountIdStr, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	session.Id, _ = uuid.Parse(idStr)
	session.AccountId, _ = uuid.Parse(accountIdStr)
	return nil, &session
}

func (db *DB) DeleteSession(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteSessionById, id.String())
		return err
	})
}

func (db *DB) DeleteExpiredSessions() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteExpiredSession, time.Now())
		return err
	})
}

// Open opens the cache store at the given path (":memory:" in tests) and
// runs the schema migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		// Configure connection pool for concurrent access
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	db := &DB{db: sqlDB}
	if err := db.RunMigrations(); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.db.Close()
}

func GetDB() *DB {
	dbOnce.Do(func() {
		path := util.ResolveFilePath("cache.db")
		database, err := Open(path)
		if err != nil {
			panic(err)
		}

		// Try to enable WAL mode for concurrent readers
		var journalMode string
		if err := database.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			log.Printf("Warning: Failed to enable WAL mode: %v", err)
		} else {
			log.Printf("Database journal mode: %s", journalMode)
		}

		database.db.Exec("PRAGMA synchronous = NORMAL")
		database.db.Exec("PRAGMA temp_store = MEMORY")
		database.db.Exec("PRAGMA busy_timeout = 5000")
		database.db.Exec("PRAGMA foreign_keys = ON")

		log.Printf("Cache store initialized with connection pooling (max 25 connections)")

		dbInstance = database
	})

	return dbInstance
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
