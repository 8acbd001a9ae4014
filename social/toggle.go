package social

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/ledger"
)

// keyedLocks serializes operations per edge key so two concurrent toggles
// of the same pair can never double-insert or lose a delete.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	lock, exists := k.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

// Toggles flips follow/like edges: read the current state under the key's
// lock, apply the opposite state to the ledger first, then mirror it into
// the cache together with the counter increment.
type Toggles struct {
	database *db.DB
	chain    ledger.Ledger
	locks    *keyedLocks
}

func NewToggles(database *db.DB, chain ledger.Ledger) *Toggles {
	return &Toggles{database: database, chain: chain, locks: newKeyedLocks()}
}

// ToggleFollow flips the follow edge and reports the resulting state.
func (t *Toggles) ToggleFollow(ctx context.Context, follower, followee *domain.Account) (bool, error) {
	if follower.Id == followee.Id {
		return false, fmt.Errorf("%w: cannot follow yourself", domain.ErrValidation)
	}

	lock := t.locks.get(fmt.Sprintf("follow:%s:%s", follower.Id, followee.Id))
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithoutCancel(ctx)

	err, exists := t.database.EdgeExists(domain.EdgeFollow, follower.Id, followee.Id)
	if err != nil {
		return false, err
	}
	following := !exists

	receipt, err := t.chain.SetFollow(ctx, follower.Wallet, followee.Wallet, following)
	if err != nil {
		return exists, err
	}

	if following {
		err = t.database.InsertFollowEdge(follower.Id, followee.Id)
	} else {
		err = t.database.DeleteFollowEdge(follower.Id, followee.Id)
	}
	if err != nil {
		if receipt != nil {
			// Ledger-true, cache-stale: the flip happened, the mirror is
			// replayed later. Report the ledger's state.
			t.enqueueEdge(follower.Id, followee.Id, domain.EdgeFollow, following)
			log.Printf("Toggles: follow mirror for %s -> %s queued: %v", follower.Id, followee.Id, err)
			return following, nil
		}
		return exists, err
	}
	return following, nil
}

// ToggleLike flips the like edge for a post and reports the resulting
// state.
func (t *Toggles) ToggleLike(ctx context.Context, account *domain.Account, postId uuid.UUID) (bool, error) {
	err, post := t.database.ReadPostById(postId)
	if err != nil || post == nil || post.IsDeleted {
		return false, fmt.Errorf("%w: post %s", domain.ErrNotFound, postId)
	}

	lock := t.locks.get(fmt.Sprintf("like:%s:%s", account.Id, post.Id))
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithoutCancel(ctx)

	err, exists := t.database.EdgeExists(domain.EdgeLike, account.Id, post.Id)
	if err != nil {
		return false, err
	}
	liked := !exists

	var receipt *ledger.Receipt
	if post.OnChain {
		receipt, err = t.chain.SetLike(ctx, account.Wallet, post.ChainPostId, liked)
		if err != nil {
			return exists, err
		}
	}

	if liked {
		err = t.database.InsertLikeEdge(account.Id, post.Id)
	} else {
		err = t.database.DeleteLikeEdge(account.Id, post.Id)
	}
	if err != nil {
		if receipt != nil {
			t.enqueueEdge(account.Id, post.Id, domain.EdgeLike, liked)
			log.Printf("Toggles: like mirror for %s -> %s queued: %v", account.Id, post.Id, err)
			return liked, nil
		}
		return exists, err
	}
	return liked, nil
}

// HasLiked reports the viewer's like state from the cache.
func (t *Toggles) HasLiked(account *domain.Account, postId uuid.UUID) (bool, error) {
	err, exists := t.database.EdgeExists(domain.EdgeLike, account.Id, postId)
	return exists, err
}

func (t *Toggles) enqueueEdge(from, to uuid.UUID, edgeType domain.EdgeType, active bool) {
	kind := reconcileDeleteFollow
	switch {
	case edgeType == domain.EdgeFollow && active:
		kind = reconcileInsertFollow
	case edgeType == domain.EdgeLike && active:
		kind = reconcileInsertLike
	case edgeType == domain.EdgeLike && !active:
		kind = reconcileDeleteLike
	}
	enqueueReconcile(t.database, &reconcilePayload{Kind: kind, From: from.String(), To: to.String()})
}
