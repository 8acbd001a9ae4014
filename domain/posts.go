package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

type Post struct {
	Id           uuid.UUID
	AuthorId     uuid.UUID
	ContentId    string // content-addressed media id
	ContentType  string // "image" or "video"
	Caption      string
	OnChain      bool
	ChainPostId  int64  // ledger-assigned post id, 0 when off-chain
	TxHash       string // empty when off-chain
	LikeCount    int
	CommentCount int
	SyncPending  bool // ledger step confirmed but cache row not yet settled
	IsDeleted    bool
	CreatedAt    time.Time
}

func (p *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tAuthorId: %s \n\tContentId: %s \n\tCreatedAt: %s)", p.Id, p.AuthorId, p.ContentId, p.CreatedAt)
}

type Comment struct {
	Id        uuid.UUID
	PostId    uuid.UUID
	AuthorId  uuid.UUID
	Message   string
	IsDeleted bool
	CreatedAt time.Time
}

// PostSummary is a feed entry enriched from the cache store only.
// It is computed on demand and never persisted.
type PostSummary struct {
	Post
	AuthorWallet    string
	AuthorName      string
	AuthorAvatarCid string
	ViewerLiked     bool
}
