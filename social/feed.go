package social

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/util"
)

// Feeds computes paginated views over the cache store. Every page is
// recomputed fresh from the current follow graph: no cursor state
// survives between requests, so an unfollow between pages simply changes
// what the next page sees. Enrichment never touches the ledger.
type Feeds struct {
	database *db.DB
	pageSize int
}

// maxPageSize bounds a caller-supplied page size so one request can
// never pull an unbounded slice of the cache.
const maxPageSize = 100

func NewFeeds(database *db.DB, pageSize int) *Feeds {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Feeds{database: database, pageSize: pageSize}
}

func (f *Feeds) PageSize() int {
	return f.pageSize
}

// GetFeed returns one page of the viewer's personalized feed: non-deleted
// posts by followed authors, newest first, post id breaking ties. An
// empty follow set or a page past the end yields an empty page, not an
// error.
func (f *Feeds) GetFeed(viewer *domain.Account, page, pageSize int) ([]domain.PostSummary, error) {
	offset, limit, err := f.window(page, pageSize)
	if err != nil {
		return nil, err
	}

	err, summaries := f.database.ReadFeedPage(viewer.Id, limit, offset)
	if err != nil {
		return nil, err
	}
	return *summaries, nil
}

// GetExploreFeed ignores the follow graph and ranks globally by
// popularity, then recency, with the same deterministic tie-break.
func (f *Feeds) GetExploreFeed(viewerId uuid.UUID, page, pageSize int) ([]domain.PostSummary, error) {
	offset, limit, err := f.window(page, pageSize)
	if err != nil {
		return nil, err
	}

	err, summaries := f.database.ReadExplorePage(viewerId, limit, offset)
	if err != nil {
		return nil, err
	}
	return *summaries, nil
}

// GetProfile returns the account behind a wallet together with its posts.
func (f *Feeds) GetProfile(viewerId uuid.UUID, wallet string) (*domain.Account, []domain.PostSummary, error) {
	if !util.IsWalletAddress(wallet) {
		return nil, nil, fmt.Errorf("%w: not a wallet address", domain.ErrValidation)
	}

	err, acc := f.database.ReadAccountByWallet(wallet)
	if err != nil || acc == nil {
		return nil, nil, fmt.Errorf("%w: wallet %s", domain.ErrNotFound, wallet)
	}

	err, summaries := f.database.ReadPostsByAuthor(viewerId, acc.Id)
	if err != nil {
		return nil, nil, err
	}
	return acc, *summaries, nil
}

func (f *Feeds) window(page, pageSize int) (offset, limit int, err error) {
	if page < 0 {
		return 0, 0, fmt.Errorf("%w: page must not be negative", domain.ErrValidation)
	}
	if pageSize <= 0 {
		pageSize = f.pageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page * pageSize, pageSize, nil
}
