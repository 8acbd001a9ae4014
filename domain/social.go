package domain

import (
	"github.com/google/uuid"
	"time"
)

type EdgeType string

const (
	EdgeFollow EdgeType = "follow"
	EdgeLike   EdgeType = "like"
)

// Edge is a set-valued social relationship: it either exists or it doesn't.
// For follows both ends are account ids, for likes To is a post id.
type Edge struct {
	Type      EdgeType
	From      uuid.UUID
	To        uuid.UUID
	CreatedAt time.Time
}

// Message is an off-chain direct message delivered over the realtime hub.
type Message struct {
	Id        uuid.UUID
	FromId    uuid.UUID
	ToId      uuid.UUID
	Body      string
	CreatedAt time.Time
}

// ReconcileItem is a queued cache write whose authoritative ledger step
// already succeeded.
type ReconcileItem struct {
	Id          uuid.UUID
	Payload     string // JSON-encoded cache mutation
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
}
