package social

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/ledger"
)

// Comments mutates the cache's comment list and counters. For on-chain
// posts the ledger commit precedes the cache write, same as post
// creation, even though comment text itself is never content-addressed.
type Comments struct {
	database *db.DB
	chain    ledger.Ledger
}

func NewComments(database *db.DB, chain ledger.Ledger) *Comments {
	return &Comments{database: database, chain: chain}
}

func (c *Comments) AddComment(ctx context.Context, author *domain.Account, postId uuid.UUID, text string) (*domain.Comment, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: comment text is required", domain.ErrValidation)
	}

	err, post := c.database.ReadPostById(postId)
	if err != nil || post == nil || post.IsDeleted {
		return nil, fmt.Errorf("%w: post %s", domain.ErrNotFound, postId)
	}

	ctx = context.WithoutCancel(ctx)

	var receipt *ledger.Receipt
	if post.OnChain {
		receipt, err = c.chain.AddComment(ctx, author.Wallet, post.ChainPostId)
		if err != nil {
			return nil, err
		}
		if receipt != nil && receipt.Status == ledger.StatusPending {
			log.Printf("Comments: ledger comment on post %s still pending, proceeding", post.Id)
		}
	}

	comment := &domain.Comment{
		Id:        uuid.New(),
		PostId:    post.Id,
		AuthorId:  author.Id,
		Message:   text,
		CreatedAt: time.Now(),
	}
	if err := c.database.CreateComment(comment); err != nil {
		if receipt != nil {
			enqueueReconcile(c.database, &reconcilePayload{Kind: reconcileCreateComment, Comment: comment})
			return comment, fmt.Errorf("%w: %v", domain.ErrPartialCommit, err)
		}
		return nil, err
	}
	return comment, nil
}

func (c *Comments) DeleteComment(ctx context.Context, requester *domain.Account, commentId uuid.UUID) error {
	err, comment := c.database.ReadCommentById(commentId)
	if err != nil || comment == nil || comment.IsDeleted {
		return fmt.Errorf("%w: comment %s", domain.ErrNotFound, commentId)
	}
	if comment.AuthorId != requester.Id {
		return fmt.Errorf("%w: only the author may delete a comment", domain.ErrUnauthorized)
	}

	return c.database.SoftDeleteComment(comment.Id, comment.PostId)
}

func (c *Comments) ListComments(postId uuid.UUID) ([]domain.Comment, error) {
	err, post := c.database.ReadPostById(postId)
	if err != nil || post == nil || post.IsDeleted {
		return nil, fmt.Errorf("%w: post %s", domain.ErrNotFound, postId)
	}

	err, comments := c.database.ReadCommentsByPostId(postId)
	if err != nil {
		return nil, err
	}
	return *comments, nil
}
