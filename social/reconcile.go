package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/ledger"
)

// Reconcile payload kinds. Each one is a cache mutation whose
// authoritative step already happened and that must be replayed until the
// cache agrees with the ledger.
const (
	reconcileCreatePost     = "create_post"
	reconcileSettlePost     = "settle_post"
	reconcileSoftDeletePost = "soft_delete_post"
	reconcileCreateComment  = "create_comment"
	reconcileUpdateProfile  = "update_profile"
	reconcileInsertFollow   = "insert_follow"
	reconcileDeleteFollow   = "delete_follow"
	reconcileInsertLike     = "insert_like"
	reconcileDeleteLike     = "delete_like"
)

type reconcilePayload struct {
	Kind      string          `json:"kind"`
	Post      *domain.Post    `json:"post,omitempty"`
	Comment   *domain.Comment `json:"comment,omitempty"`
	PostId    string          `json:"postId,omitempty"`
	TxHash    string          `json:"txHash,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	AccountId string          `json:"accountId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Bio       string          `json:"bio,omitempty"`
	AvatarCid string          `json:"avatarCid,omitempty"`
}

func enqueueReconcile(database *db.DB, payload *reconcilePayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Reconciler: marshalling payload: %v", err)
		return
	}
	item := &domain.ReconcileItem{
		Id:          uuid.New(),
		Payload:     string(raw),
		NextRetryAt: time.Now(),
		CreatedAt:   time.Now(),
	}
	if err := database.EnqueueReconcile(item); err != nil {
		log.Printf("Reconciler: enqueueing item failed: %v", err)
	}
}

// Reconciler replays queued cache writes until they land. Every replay is
// idempotent: rows insert under their natural keys and edge mutations
// check current state first.
type Reconciler struct {
	database *db.DB
	chain    ledger.Ledger
}

func NewReconciler(database *db.DB, chain ledger.Ledger) *Reconciler {
	return &Reconciler{database: database, chain: chain}
}

// Start runs the reconciliation loop in the background.
func (r *Reconciler) Start() {
	log.Println("Starting cache reconciliation worker...")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			r.ProcessQueue()
		}
	}()
}

// ProcessQueue drains one batch of due items.
func (r *Reconciler) ProcessQueue() {
	err, items := r.database.ReadDueReconcile(50)
	if err != nil {
		log.Printf("Reconciler: failed to read queue: %v", err)
		return
	}

	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("Reconciler: processing %d pending cache writes", len(*items))

	for _, item := range *items {
		if err := r.apply(&item); err != nil {
			item.Attempts++
			backoffMinutes := []int{1, 5, 15, 60, 240, 1440}[min(item.Attempts-1, 5)]
			item.NextRetryAt = time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if item.Attempts >= 10 {
				log.Printf("Reconciler: giving up on item %s after %d attempts: %v", item.Id, item.Attempts, err)
				r.database.DeleteReconcile(item.Id)
			} else {
				log.Printf("Reconciler: item %s failed (attempt %d), retry in %dm: %v",
					item.Id, item.Attempts, backoffMinutes, err)
				r.database.UpdateReconcileAttempt(item.Id, item.Attempts, item.NextRetryAt)
			}
		} else {
			r.database.DeleteReconcile(item.Id)
		}
	}
}

var errStillPending = errors.New("transaction still unconfirmed")

func (r *Reconciler) apply(item *domain.ReconcileItem) error {
	var payload reconcilePayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	switch payload.Kind {
	case reconcileCreatePost:
		if payload.Post == nil {
			return errors.New("create_post payload without post")
		}
		return r.database.CreatePost(payload.Post)

	case reconcileSettlePost:
		return r.settlePost(&payload)

	case reconcileSoftDeletePost:
		return r.softDeletePost(&payload)

	case reconcileUpdateProfile:
		accountId, err := uuid.Parse(payload.AccountId)
		if err != nil {
			return err
		}
		return r.database.UpdateAccountProfile(accountId, payload.Name, payload.Bio, payload.AvatarCid)

	case reconcileCreateComment:
		if payload.Comment == nil {
			return errors.New("create_comment payload without comment")
		}
		err, existing := r.database.ReadCommentById(payload.Comment.Id)
		if err == nil && existing != nil {
			return nil
		}
		return r.database.CreateComment(payload.Comment)

	case reconcileInsertFollow, reconcileDeleteFollow, reconcileInsertLike, reconcileDeleteLike:
		return r.applyEdge(&payload)

	default:
		return fmt.Errorf("unknown payload kind %q", payload.Kind)
	}
}

// settlePost re-checks a pending transaction and records the outcome: the
// chain identifiers on confirmation, a downgrade to off-chain on revert.
func (r *Reconciler) settlePost(payload *reconcilePayload) error {
	postId, err := uuid.Parse(payload.PostId)
	if err != nil {
		return err
	}

	receipt, err := r.chain.Confirm(context.Background(), payload.TxHash)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerRejected) {
			log.Printf("Reconciler: tx %s reverted, downgrading post %s to off-chain", payload.TxHash, postId)
			return r.database.AbandonChainSync(postId)
		}
		return err
	}
	if receipt == nil {
		return r.database.AbandonChainSync(postId)
	}
	if receipt.Status == ledger.StatusPending {
		return errStillPending
	}
	return r.database.SettleChainPost(postId, receipt.ChainPostId, receipt.TxHash)
}

// softDeletePost applies a queued cache soft-delete. A delete queued
// behind a pending ledger transaction flips the cache only once that
// transaction confirms; a revert keeps the post visible.
func (r *Reconciler) softDeletePost(payload *reconcilePayload) error {
	postId, err := uuid.Parse(payload.PostId)
	if err != nil {
		return err
	}

	if payload.TxHash != "" {
		receipt, err := r.chain.Confirm(context.Background(), payload.TxHash)
		if err != nil {
			if errors.Is(err, domain.ErrLedgerRejected) {
				log.Printf("Reconciler: delete tx %s reverted, post %s stays visible", payload.TxHash, postId)
				return nil
			}
			return err
		}
		if receipt != nil && receipt.Status == ledger.StatusPending {
			return errStillPending
		}
	}
	return r.database.SoftDeletePost(postId)
}

func (r *Reconciler) applyEdge(payload *reconcilePayload) error {
	from, err := uuid.Parse(payload.From)
	if err != nil {
		return err
	}
	to, err := uuid.Parse(payload.To)
	if err != nil {
		return err
	}

	edgeType := domain.EdgeFollow
	if payload.Kind == reconcileInsertLike || payload.Kind == reconcileDeleteLike {
		edgeType = domain.EdgeLike
	}
	wantActive := payload.Kind == reconcileInsertFollow || payload.Kind == reconcileInsertLike

	err, exists := r.database.EdgeExists(edgeType, from, to)
	if err != nil {
		return err
	}
	if exists == wantActive {
		return nil
	}

	switch payload.Kind {
	case reconcileInsertFollow:
		return r.database.InsertFollowEdge(from, to)
	case reconcileDeleteFollow:
		return r.database.DeleteFollowEdge(from, to)
	case reconcileInsertLike:
		return r.database.InsertLikeEdge(from, to)
	default:
		return r.database.DeleteLikeEdge(from, to)
	}
}
