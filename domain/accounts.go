package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

type Account struct {
	Id             uuid.UUID
	Wallet         string // canonical lowercase wallet address, unique
	Name           string
	Bio            string
	AvatarCid      string // content id of the profile picture
	Nonce          string // current single-use login nonce
	OnChain        bool
	FollowerCount  int
	FollowingCount int
	CreatedAt      time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tWallet: %s \n\tName: %s \n\tCreatedAt: %s)", acc.Id, acc.Wallet, acc.Name, acc.CreatedAt)
}

// Session is a bearer credential issued after a successful signature login.
type Session struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	ExpiresAt time.Time
}
