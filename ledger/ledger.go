package ledger

import (
	"context"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	// StatusPending marks a submission that ran past the confirmation
	// window. Slow is not failed: the transaction may still land.
	StatusPending Status = "pending"
)

// Receipt is the result of a submitted ledger operation.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	ChainPostId int64 // emitted post id, 0 when the operation emits none
	Status      Status
}

// AccountState is the ledger's own view of an account.
type AccountState struct {
	Wallet         string
	Name           string
	AvatarCid      string
	FollowerCount  int
	FollowingCount int
	PostCount      int
	Exists         bool
}

// Ledger is the append-only authoritative record for on-chain entities.
// The implementation is chosen once at startup; callers never branch on
// an enabled flag themselves.
type Ledger interface {
	Enabled() bool
	RegisterAccount(ctx context.Context, wallet, name, avatarCid string) (*Receipt, error)
	UpdateAccount(ctx context.Context, wallet, name, avatarCid string) (*Receipt, error)
	CreatePost(ctx context.Context, wallet, caption, contentId, contentType string) (*Receipt, error)
	DeletePost(ctx context.Context, chainPostId int64) (*Receipt, error)
	SetFollow(ctx context.Context, follower, followee string, active bool) (*Receipt, error)
	SetLike(ctx context.Context, wallet string, chainPostId int64, active bool) (*Receipt, error)
	AddComment(ctx context.Context, wallet string, chainPostId int64) (*Receipt, error)
	// Confirm re-checks a previously pending transaction once, without
	// waiting. A still-unconfirmed transaction yields a pending receipt.
	Confirm(ctx context.Context, txHash string) (*Receipt, error)
	Account(ctx context.Context, wallet string) (*AccountState, error)
}

// Noop is the ledger-disabled implementation: every submission succeeds
// without a receipt, so entities stay off-chain.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Enabled() bool {
	return false
}

func (n *Noop) RegisterAccount(ctx context.Context, wallet, name, avatarCid string) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) UpdateAccount(ctx context.Context, wallet, name, avatarCid string) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) CreatePost(ctx context.Context, wallet, caption, contentId, contentType string) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) DeletePost(ctx context.Context, chainPostId int64) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) SetFollow(ctx context.Context, follower, followee string, active bool) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) SetLike(ctx context.Context, wallet string, chainPostId int64, active bool) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) AddComment(ctx context.Context, wallet string, chainPostId int64) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) Confirm(ctx context.Context, txHash string) (*Receipt, error) {
	return nil, nil
}

func (n *Noop) Account(ctx context.Context, wallet string) (*AccountState, error) {
	return nil, nil
}
