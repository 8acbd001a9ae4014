package social

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/content"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/ledger"
)

// Orchestrator sequences multi-store writes: content store first, then
// the ledger, then the cache. The ordering is fixed: the ledger needs an
// immutable content id to reference, and the cache must never show an
// on-chain entity the ledger has not acknowledged.
type Orchestrator struct {
	database *db.DB
	store    content.Store
	chain    ledger.Ledger
}

func NewOrchestrator(database *db.DB, store content.Store, chain ledger.Ledger) *Orchestrator {
	return &Orchestrator{database: database, store: store, chain: chain}
}

// CommitPost stores the media, registers the post on the ledger when
// enabled, and writes the cache row. A client going away mid-flight must
// not cancel the ledger submission, so the whole orchestration runs on a
// detached context.
func (o *Orchestrator) CommitPost(ctx context.Context, author *domain.Account, caption string, media []byte, mediaType string) (*domain.Post, error) {
	if caption == "" {
		return nil, fmt.Errorf("%w: caption is required", domain.ErrValidation)
	}
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: media is required", domain.ErrValidation)
	}
	if mediaType != "image" && mediaType != "video" {
		return nil, fmt.Errorf("%w: unknown media type %q", domain.ErrValidation, mediaType)
	}

	ctx = context.WithoutCancel(ctx)

	var pin *content.Pin
	var receipt *ledger.Receipt

	name := fmt.Sprintf("post_%s_%d", author.Wallet, time.Now().UnixMilli())
	tags := map[string]string{"type": "post", "owner": author.Wallet, "contentType": mediaType}

	post := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author.Id,
		ContentType: mediaType,
		Caption:     caption,
		CreatedAt:   time.Now(),
	}

	commit := &saga{steps: []step{
		{
			name: "pin content",
			run: func(ctx context.Context) error {
				var err error
				pin, err = o.store.Put(ctx, media, name, tags)
				return err
			},
			compensate: func(ctx context.Context) error {
				return o.store.Unpin(ctx, pin.Id)
			},
		},
		{
			name: "ledger create post",
			run: func(ctx context.Context) error {
				var err error
				receipt, err = o.chain.CreatePost(ctx, author.Wallet, caption, pin.Id, mediaType)
				return err
			},
			committed: func() bool { return receipt != nil },
		},
		{
			name: "cache post row",
			run: func(ctx context.Context) error {
				post.ContentId = pin.Id
				if receipt != nil {
					post.TxHash = receipt.TxHash
					post.ChainPostId = receipt.ChainPostId
					post.OnChain = receipt.Status == ledger.StatusConfirmed
					post.SyncPending = receipt.Status == ledger.StatusPending
				}
				return o.database.CreatePost(post)
			},
		},
	}}

	if err := commit.execute(ctx); err != nil {
		if receipt != nil {
			// The ledger step is authoritative and irreversible. The cache
			// write is queued for replay under its idempotent key instead
			// of surfacing an unqualified failure.
			o.enqueue(&reconcilePayload{Kind: reconcileCreatePost, Post: post})
			log.Printf("Orchestrator: post %s committed on ledger, cache write queued: %v", post.Id, err)
			return post, fmt.Errorf("%w: %v", domain.ErrPartialCommit, err)
		}
		return nil, err
	}

	if receipt != nil && receipt.Status == ledger.StatusPending {
		o.enqueue(&reconcilePayload{Kind: reconcileSettlePost, PostId: post.Id.String(), TxHash: receipt.TxHash})
	}
	return post, nil
}

// DeletePost soft-deletes a post. For on-chain posts the ledger delete is
// acknowledged before the cache flips; a pending acknowledgment queues
// the soft-delete instead of applying a view the ledger may not share.
func (o *Orchestrator) DeletePost(ctx context.Context, requester *domain.Account, postId uuid.UUID) error {
	err, post := o.database.ReadPostById(postId)
	if err != nil || post == nil {
		return fmt.Errorf("%w: post %s", domain.ErrNotFound, postId)
	}
	if post.IsDeleted {
		return fmt.Errorf("%w: post %s", domain.ErrNotFound, postId)
	}
	if post.AuthorId != requester.Id {
		return fmt.Errorf("%w: only the author may delete a post", domain.ErrUnauthorized)
	}

	ctx = context.WithoutCancel(ctx)

	if post.OnChain {
		receipt, err := o.chain.DeletePost(ctx, post.ChainPostId)
		if err != nil {
			return err
		}
		if receipt != nil && receipt.Status == ledger.StatusPending {
			// The soft-delete settles through the queue once the delete
			// transaction confirms; the tx hash rides along for that check.
			o.enqueue(&reconcilePayload{Kind: reconcileSoftDeletePost, PostId: post.Id.String(), TxHash: receipt.TxHash})
			log.Printf("Orchestrator: ledger delete of post %s pending, cache soft-delete queued", post.Id)
			return nil
		}
	}

	if err := o.database.SoftDeletePost(post.Id); err != nil {
		if post.OnChain {
			o.enqueue(&reconcilePayload{Kind: reconcileSoftDeletePost, PostId: post.Id.String()})
			return fmt.Errorf("%w: %v", domain.ErrPartialCommit, err)
		}
		return err
	}

	// Unpinning is cleanup, not part of the contract.
	if err := o.store.Unpin(ctx, post.ContentId); err != nil {
		log.Printf("Orchestrator: unpin of %s failed: %v", post.ContentId, err)
	}
	return nil
}

// RegisterProfile completes a stub account created at first login: pins
// the avatar, registers the account on the ledger, then fills the cache
// row.
func (o *Orchestrator) RegisterProfile(ctx context.Context, acc *domain.Account, name, bio string, avatar []byte) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)

	var pin *content.Pin
	var receipt *ledger.Receipt

	register := &saga{steps: []step{
		{
			name: "pin avatar",
			run: func(ctx context.Context) error {
				if len(avatar) == 0 {
					return nil
				}
				var err error
				pin, err = o.store.Put(ctx, avatar,
					fmt.Sprintf("profile_%s_%d", acc.Wallet, time.Now().UnixMilli()),
					map[string]string{"type": "profile", "wallet": acc.Wallet})
				return err
			},
			compensate: func(ctx context.Context) error {
				if pin == nil {
					return nil
				}
				return o.store.Unpin(ctx, pin.Id)
			},
		},
		{
			name: "ledger register account",
			run: func(ctx context.Context) error {
				avatarCid := ""
				if pin != nil {
					avatarCid = pin.Id
				}
				var err error
				receipt, err = o.chain.RegisterAccount(ctx, acc.Wallet, name, avatarCid)
				return err
			},
			committed: func() bool { return receipt != nil },
		},
		{
			name: "cache profile",
			run: func(ctx context.Context) error {
				avatarCid := ""
				if pin != nil {
					avatarCid = pin.Id
				}
				if err := o.database.UpdateAccountProfile(acc.Id, name, bio, avatarCid); err != nil {
					return err
				}
				if receipt != nil {
					return o.database.SetAccountOnChain(acc.Id, true)
				}
				return nil
			},
		},
	}}

	return register.execute(ctx)
}

// UpdateAvatar follows the pin-commit-cache pattern: the old content id
// is unpinned only after the new one is durably referenced, so a failed
// upload never leaves the profile pointing at nothing.
func (o *Orchestrator) UpdateAvatar(ctx context.Context, acc *domain.Account, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: image is required", domain.ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)
	previous := acc.AvatarCid

	pin, err := o.store.Put(ctx, image,
		fmt.Sprintf("profile_%s_%d", acc.Wallet, time.Now().UnixMilli()),
		map[string]string{"type": "profile", "wallet": acc.Wallet})
	if err != nil {
		return "", err
	}

	if _, err := o.chain.UpdateAccount(ctx, acc.Wallet, acc.Name, pin.Id); err != nil {
		if uerr := o.store.Unpin(ctx, pin.Id); uerr != nil {
			log.Printf("Orchestrator: unpin of %s after ledger failure failed: %v", pin.Id, uerr)
		}
		return "", err
	}

	if err := o.database.UpdateAccountProfile(acc.Id, acc.Name, acc.Bio, pin.Id); err != nil {
		// The ledger already references the new content id; the cache
		// write is queued for replay instead of surfacing a bare failure.
		o.enqueue(&reconcilePayload{
			Kind:      reconcileUpdateProfile,
			AccountId: acc.Id.String(),
			Name:      acc.Name,
			Bio:       acc.Bio,
			AvatarCid: pin.Id,
		})
		log.Printf("Orchestrator: avatar of %s committed on ledger, cache write queued: %v", acc.Wallet, err)
		return pin.Id, fmt.Errorf("%w: %v", domain.ErrPartialCommit, err)
	}

	if previous != "" && previous != pin.Id {
		if err := o.store.Unpin(ctx, previous); err != nil {
			log.Printf("Orchestrator: unpin of previous avatar %s failed: %v", previous, err)
		}
	}
	return pin.Id, nil
}

func (o *Orchestrator) enqueue(payload *reconcilePayload) {
	enqueueReconcile(o.database, payload)
}
