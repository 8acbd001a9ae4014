package social

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/content"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/ledger"
)

func newTestDB(t *testing.T) *db.DB {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	return database
}

func newTestAccount(t *testing.T, database *db.DB, wallet string) *domain.Account {
	acc := &domain.Account{
		Id:        uuid.New(),
		Wallet:    wallet,
		Nonce:     "n",
		CreatedAt: time.Now(),
	}
	if err := database.CreateAccount(acc); err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return acc
}

// fakeLedger records submitted operations and answers with a canned
// receipt or error.
type fakeLedger struct {
	receipt        *ledger.Receipt
	err            error
	confirmReceipt *ledger.Receipt
	confirmErr     error
	calls          []string
}

func (f *fakeLedger) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeLedger) Enabled() bool { return true }

func (f *fakeLedger) RegisterAccount(ctx context.Context, wallet, name, avatarCid string) (*ledger.Receipt, error) {
	f.record("registerAccount")
	return f.receipt, f.err
}

func (f *fakeLedger) UpdateAccount(ctx context.Context, wallet, name, avatarCid string) (*ledger.Receipt, error) {
	f.record("updateAccount")
	return f.receipt, f.err
}

func (f *fakeLedger) CreatePost(ctx context.Context, wallet, caption, contentId, contentType string) (*ledger.Receipt, error) {
	f.record("createPost")
	return f.receipt, f.err
}

func (f *fakeLedger) DeletePost(ctx context.Context, chainPostId int64) (*ledger.Receipt, error) {
	f.record("deletePost")
	return f.receipt, f.err
}

func (f *fakeLedger) SetFollow(ctx context.Context, follower, followee string, active bool) (*ledger.Receipt, error) {
	f.record("setFollow")
	return f.receipt, f.err
}

func (f *fakeLedger) SetLike(ctx context.Context, wallet string, chainPostId int64, active bool) (*ledger.Receipt, error) {
	f.record("setLike")
	return f.receipt, f.err
}

func (f *fakeLedger) AddComment(ctx context.Context, wallet string, chainPostId int64) (*ledger.Receipt, error) {
	f.record("addComment")
	return f.receipt, f.err
}

func (f *fakeLedger) Confirm(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	f.record("confirm")
	return f.confirmReceipt, f.confirmErr
}

func (f *fakeLedger) Account(ctx context.Context, wallet string) (*ledger.AccountState, error) {
	return nil, nil
}

func confirmedReceipt(txHash string, chainPostId int64) *ledger.Receipt {
	return &ledger.Receipt{
		TxHash:      txHash,
		BlockNumber: 1,
		ChainPostId: chainPostId,
		Status:      ledger.StatusConfirmed,
	}
}

func pendingReceipt(txHash string) *ledger.Receipt {
	return &ledger.Receipt{TxHash: txHash, Status: ledger.StatusPending}
}

// fakeStore wraps MemStore with a failure switch and an unpin log.
type fakeStore struct {
	*content.MemStore
	failPut  bool
	putErr   error
	unpinned []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemStore: content.NewMemStore()}
}

func (f *fakeStore) Put(ctx context.Context, data []byte, name string, tags map[string]string) (*content.Pin, error) {
	if f.failPut {
		return nil, f.putErr
	}
	return f.MemStore.Put(ctx, data, name, tags)
}

func (f *fakeStore) Unpin(ctx context.Context, id string) error {
	f.unpinned = append(f.unpinned, id)
	return f.MemStore.Unpin(ctx, id)
}

func queueDepth(t *testing.T, database *db.DB) int {
	err, items := database.ReadDueReconcile(100)
	if err != nil {
		t.Fatalf("ReadDueReconcile failed: %v", err)
	}
	return len(*items)
}
