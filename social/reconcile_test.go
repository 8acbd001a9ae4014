package social

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/ledger"
)

func TestReconcileCreatePostReplay(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author.Id,
		ContentId:   "cid",
		Caption:     "queued",
		OnChain:     true,
		ChainPostId: 5,
		TxHash:      "0xtx",
		CreatedAt:   time.Now(),
	}
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileCreatePost, Post: post})

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	err, stored := database.ReadPostById(post.Id)
	if err != nil || stored == nil {
		t.Fatal("Expected replayed post row in the cache")
	}
	if stored.Caption != "queued" {
		t.Errorf("Expected caption 'queued', got %s", stored.Caption)
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected queue drained after successful replay")
	}

	// Replaying the same item again is harmless
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileCreatePost, Post: post})
	r.ProcessQueue()
	if queueDepth(t, database) != 0 {
		t.Error("Expected replay of an existing row to succeed")
	}
}

func TestReconcileSettleConfirmed(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author.Id,
		ContentId:   "cid",
		TxHash:      "0xslow",
		SyncPending: true,
		CreatedAt:   time.Now(),
	}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileSettlePost, PostId: post.Id.String(), TxHash: "0xslow"})

	chain := &fakeLedger{confirmReceipt: confirmedReceipt("0xslow", 11)}
	r := NewReconciler(database, chain)
	r.ProcessQueue()

	err, stored := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if stored.SyncPending {
		t.Error("Expected sync_pending cleared")
	}
	if !stored.OnChain || stored.ChainPostId != 11 {
		t.Errorf("Expected settled chain identity, got %+v", stored)
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected settle item removed")
	}
}

func TestReconcileSettleStillPending(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author.Id,
		ContentId:   "cid",
		TxHash:      "0xslow",
		SyncPending: true,
		CreatedAt:   time.Now(),
	}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileSettlePost, PostId: post.Id.String(), TxHash: "0xslow"})

	chain := &fakeLedger{confirmReceipt: pendingReceipt("0xslow")}
	r := NewReconciler(database, chain)
	r.ProcessQueue()

	// The item stays queued with a backoff; the post stays pending
	err, stored := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if !stored.SyncPending {
		t.Error("Expected post still pending")
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected item rescheduled into the future, not due now")
	}
}

func TestReconcileSettleReverted(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author.Id,
		ContentId:   "cid",
		TxHash:      "0xbad",
		SyncPending: true,
		CreatedAt:   time.Now(),
	}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileSettlePost, PostId: post.Id.String(), TxHash: "0xbad"})

	chain := &fakeLedger{confirmErr: fmt.Errorf("%w: reverted", domain.ErrLedgerRejected)}
	r := NewReconciler(database, chain)
	r.ProcessQueue()

	// Reverted transaction downgrades the post to off-chain
	err, stored := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if stored.OnChain || stored.SyncPending {
		t.Errorf("Expected off-chain downgrade, got %+v", stored)
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected settle item removed after downgrade")
	}
}

func TestReconcileEdgeIdempotent(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	alice := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	bob := newTestAccount(t, database, "0xbbb0000000000000000000000000000000000002")

	// The edge already landed through the normal path
	if err := database.InsertFollowEdge(alice.Id, bob.Id); err != nil {
		t.Fatalf("InsertFollowEdge failed: %v", err)
	}

	enqueueReconcile(database, &reconcilePayload{
		Kind: reconcileInsertFollow,
		From: alice.Id.String(),
		To:   bob.Id.String(),
	})

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	if queueDepth(t, database) != 0 {
		t.Error("Expected idempotent edge replay to drain")
	}

	// No double counting
	err, b := database.ReadAccountById(bob.Id)
	if err != nil {
		t.Fatalf("ReadAccountById failed: %v", err)
	}
	if b.FollowerCount != 1 {
		t.Errorf("Expected follower count 1, got %d", b.FollowerCount)
	}
}

func TestReconcileSoftDelete(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ContentId: "cid", CreatedAt: time.Now()}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	enqueueReconcile(database, &reconcilePayload{Kind: reconcileSoftDeletePost, PostId: post.Id.String()})

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	err, stored := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if !stored.IsDeleted {
		t.Error("Expected queued soft-delete applied")
	}
}

func TestReconcileSoftDeleteWaitsForConfirmation(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ContentId: "cid", OnChain: true, ChainPostId: 7, CreatedAt: time.Now()}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	item := &domain.ReconcileItem{
		Id:          uuid.New(),
		Payload:     fmt.Sprintf(`{"kind":"soft_delete_post","postId":"%s","txHash":"0xdel"}`, post.Id),
		NextRetryAt: time.Now().Add(-time.Second),
		CreatedAt:   time.Now(),
	}
	if err := database.EnqueueReconcile(item); err != nil {
		t.Fatalf("EnqueueReconcile failed: %v", err)
	}

	// The delete transaction has not confirmed: the cache must not flip
	chain := &fakeLedger{confirmReceipt: pendingReceipt("0xdel")}
	r := NewReconciler(database, chain)
	r.ProcessQueue()

	err, stored := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if stored.IsDeleted {
		t.Error("Expected post to stay visible while the delete tx is unconfirmed")
	}

	// Confirmation lands: the queued soft-delete applies on the next pass
	chain.confirmReceipt = confirmedReceipt("0xdel", 0)
	if err := database.UpdateReconcileAttempt(item.Id, 1, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("UpdateReconcileAttempt failed: %v", err)
	}
	r.ProcessQueue()

	err, stored = database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if !stored.IsDeleted {
		t.Error("Expected soft-delete applied after confirmation")
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected item removed after the delete settled")
	}
}

func TestReconcileSoftDeleteRevertedKeepsPost(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ContentId: "cid", OnChain: true, ChainPostId: 8, CreatedAt: time.Now()}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	enqueueReconcile(database, &reconcilePayload{Kind: reconcileSoftDeletePost, PostId: post.Id.String(), TxHash: "0xbad"})

	chain := &fakeLedger{confirmErr: fmt.Errorf("%w: reverted", domain.ErrLedgerRejected)}
	r := NewReconciler(database, chain)
	r.ProcessQueue()

	// A reverted delete never flips the cache; the item is resolved
	err, stored := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if stored.IsDeleted {
		t.Error("Expected post to stay visible after a reverted delete")
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected item removed after the revert")
	}
}

func TestReconcileUpdateProfile(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	acc := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")

	enqueueReconcile(database, &reconcilePayload{
		Kind:      reconcileUpdateProfile,
		AccountId: acc.Id.String(),
		Name:      "Alice",
		Bio:       "gm",
		AvatarCid: "newcid",
	})

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	err, stored := database.ReadAccountById(acc.Id)
	if err != nil {
		t.Fatalf("ReadAccountById failed: %v", err)
	}
	if stored.Name != "Alice" || stored.Bio != "gm" || stored.AvatarCid != "newcid" {
		t.Errorf("Expected replayed profile update, got %+v", stored)
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected queue drained after profile replay")
	}
}

func TestReconcileCreateCommentReplay(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	author := newTestAccount(t, database, "0xaaa0000000000000000000000000000000000001")
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ContentId: "cid", CreatedAt: time.Now()}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	comment := &domain.Comment{
		Id:        uuid.New(),
		PostId:    post.Id,
		AuthorId:  author.Id,
		Message:   "late",
		CreatedAt: time.Now(),
	}
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileCreateComment, Comment: comment})

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	err, stored := database.ReadCommentById(comment.Id)
	if err != nil || stored == nil {
		t.Fatal("Expected replayed comment in the cache")
	}

	// A second replay must not bump the counter again
	enqueueReconcile(database, &reconcilePayload{Kind: reconcileCreateComment, Comment: comment})
	r.ProcessQueue()

	err, p := database.ReadPostById(post.Id)
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if p.CommentCount != 1 {
		t.Errorf("Expected comment_count 1 after duplicate replay, got %d", p.CommentCount)
	}
}

func TestReconcileBacksOffOnFailure(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	// A payload the reconciler cannot apply
	item := &domain.ReconcileItem{
		Id:          uuid.New(),
		Payload:     `{"kind":"bogus"}`,
		NextRetryAt: time.Now().Add(-time.Second),
		CreatedAt:   time.Now(),
	}
	if err := database.EnqueueReconcile(item); err != nil {
		t.Fatalf("EnqueueReconcile failed: %v", err)
	}

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	// Rescheduled into the future, not due now
	if queueDepth(t, database) != 0 {
		t.Error("Expected failed item rescheduled, not due")
	}

	// Pull it forward: the row still exists, it was not deleted
	if err := database.UpdateReconcileAttempt(item.Id, 1, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("UpdateReconcileAttempt failed: %v", err)
	}
	if queueDepth(t, database) != 1 {
		t.Error("Expected failed item retained for retry")
	}
}

func TestReconcileGivesUpAfterMaxAttempts(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	item := &domain.ReconcileItem{
		Id:          uuid.New(),
		Payload:     `{"kind":"bogus"}`,
		Attempts:    9,
		NextRetryAt: time.Now().Add(-time.Second),
		CreatedAt:   time.Now(),
	}
	if err := database.EnqueueReconcile(item); err != nil {
		t.Fatalf("EnqueueReconcile failed: %v", err)
	}

	r := NewReconciler(database, ledger.NewNoop())
	r.ProcessQueue()

	// Tenth failure drops the item for good
	if err := database.UpdateReconcileAttempt(item.Id, 10, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("UpdateReconcileAttempt failed: %v", err)
	}
	if queueDepth(t, database) != 0 {
		t.Error("Expected item dropped after exhausting retries")
	}
}
