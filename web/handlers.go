package web

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nounce/nounced/auth"
	"github.com/nounce/nounced/chat"
	"github.com/nounce/nounced/content"
	"github.com/nounce/nounced/db"
	"github.com/nounce/nounced/domain"
	"github.com/nounce/nounced/social"
	"github.com/nounce/nounced/util"
)

// Handlers wires the core components to the JSON API.
type Handlers struct {
	database     *db.DB
	manager      *auth.Manager
	orchestrator *social.Orchestrator
	toggles      *social.Toggles
	feeds        *social.Feeds
	comments     *social.Comments
	hub          *chat.Hub
	store        content.Store
}

func NewHandlers(database *db.DB, manager *auth.Manager, orchestrator *social.Orchestrator,
	toggles *social.Toggles, feeds *social.Feeds, comments *social.Comments,
	hub *chat.Hub, store content.Store) *Handlers {
	return &Handlers{
		database:     database,
		manager:      manager,
		orchestrator: orchestrator,
		toggles:      toggles,
		feeds:        feeds,
		comments:     comments,
		hub:          hub,
		store:        store,
	}
}

// HandleNonce issues a fresh login challenge for a wallet.
func (h *Handlers) HandleNonce(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress is required"})
		return
	}

	message, err := h.manager.Challenge(req.WalletAddress)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// HandleVerify checks the signature over the outstanding nonce and issues
// a bearer session.
func (h *Handlers) HandleVerify(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		Signature     string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress and signature are required"})
		return
	}

	err, session := h.manager.Verify(req.WalletAddress, req.Signature)
	if err != nil {
		renderError(c, err)
		return
	}

	err, acc := h.database.ReadAccountById(session.AccountId)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     session.Id.String(),
		"expiresAt": session.ExpiresAt,
		"account":   accountJSON(acc),
	})
}

// HandleLogout revokes the bearer session.
func (h *Handlers) HandleLogout(c *gin.Context) {
	h.manager.Logout(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// HandleRegister completes the profile of the logged-in account.
func (h *Handlers) HandleRegister(c *gin.Context) {
	acc := currentAccount(c)

	name := c.PostForm("name")
	bio := c.PostForm("bio")
	avatar := formFileBytes(c, "avatar")

	if err := h.orchestrator.RegisterProfile(c.Request.Context(), acc, name, bio, avatar); err != nil {
		renderError(c, err)
		return
	}

	err, updated := h.database.ReadAccountById(acc.Id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": accountJSON(updated)})
}

// HandleAvatar swaps the profile picture, unpinning the old one only
// after the new one is committed.
func (h *Handlers) HandleAvatar(c *gin.Context) {
	acc := currentAccount(c)

	image := formFileBytes(c, "avatar")
	cid, err := h.orchestrator.UpdateAvatar(c.Request.Context(), acc, image)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatarCid": cid})
}

func (h *Handlers) HandleProfile(c *gin.Context) {
	viewerId := uuid.Nil
	if acc := h.optionalAccount(c); acc != nil {
		viewerId = acc.Id
	}

	acc, posts, err := h.feeds.GetProfile(viewerId, c.Param("wallet"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": accountJSON(acc),
		"posts":   summariesJSON(posts),
	})
}

// HandleCreatePost runs the full write orchestration. A partial commit
// still returns the post: the ledger already accepted it, the cache
// catches up in the background.
func (h *Handlers) HandleCreatePost(c *gin.Context) {
	acc := currentAccount(c)

	caption := c.PostForm("caption")
	mediaType := c.DefaultQuery("type", "image")
	media := formFileBytes(c, "file")

	post, err := h.orchestrator.CommitPost(c.Request.Context(), acc, caption, media, mediaType)
	if err != nil {
		if errors.Is(err, domain.ErrPartialCommit) {
			c.JSON(http.StatusAccepted, gin.H{"status": "sync_pending", "post": postJSON(post)})
			return
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": postJSON(post)})
}

func (h *Handlers) HandleDeletePost(c *gin.Context) {
	acc := currentAccount(c)

	postId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return
	}

	if err := h.orchestrator.DeletePost(c.Request.Context(), acc, postId); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (h *Handlers) HandleToggleLike(c *gin.Context) {
	acc := currentAccount(c)

	postId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return
	}

	liked, err := h.toggles.ToggleLike(c.Request.Context(), acc, postId)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h *Handlers) HandleToggleFollow(c *gin.Context) {
	acc := currentAccount(c)

	wallet := c.Param("wallet")
	if !util.IsWalletAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}

	err, followee := h.database.ReadAccountByWallet(wallet)
	if err != nil || followee == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	following, err := h.toggles.ToggleFollow(c.Request.Context(), acc, followee)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

// HandleFollowers lists the accounts following a wallet.
func (h *Handlers) HandleFollowers(c *gin.Context) {
	h.edgeListing(c, h.database.ReadFollowerIds)
}

// HandleFollowing lists the accounts a wallet follows.
func (h *Handlers) HandleFollowing(c *gin.Context) {
	h.edgeListing(c, h.database.ReadFollowingIds)
}

func (h *Handlers) edgeListing(c *gin.Context, read func(uuid.UUID) (error, *[]uuid.UUID)) {
	wallet := c.Param("wallet")
	if !util.IsWalletAddress(wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}

	err, acc := h.database.ReadAccountByWallet(wallet)
	if err != nil || acc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	err, ids := read(acc.Id)
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]gin.H, 0, len(*ids))
	for _, id := range *ids {
		err, other := h.database.ReadAccountById(id)
		if err != nil || other == nil {
			continue
		}
		out = append(out, accountJSON(other))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (h *Handlers) HandleAddComment(c *gin.Context) {
	acc := currentAccount(c)

	postId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	comment, err := h.comments.AddComment(c.Request.Context(), acc, postId, req.Text)
	if err != nil {
		if errors.Is(err, domain.ErrPartialCommit) {
			c.JSON(http.StatusAccepted, gin.H{"status": "sync_pending", "comment": commentJSON(comment)})
			return
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": commentJSON(comment)})
}

func (h *Handlers) HandleListComments(c *gin.Context) {
	postId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return
	}

	comments, err := h.comments.ListComments(postId)
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]gin.H, 0, len(comments))
	for i := range comments {
		out = append(out, commentJSON(&comments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": out})
}

func (h *Handlers) HandleDeleteComment(c *gin.Context) {
	acc := currentAccount(c)

	commentId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment id"})
		return
	}

	if err := h.comments.DeleteComment(c.Request.Context(), acc, commentId); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

func (h *Handlers) HandleFeed(c *gin.Context) {
	acc := currentAccount(c)

	page := queryInt(c, "page", 0)
	pageSize := queryInt(c, "pageSize", h.feeds.PageSize())

	summaries, err := h.feeds.GetFeed(acc, page, pageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "posts": summariesJSON(summaries)})
}

func (h *Handlers) HandleExplore(c *gin.Context) {
	viewerId := uuid.Nil
	if acc := h.optionalAccount(c); acc != nil {
		viewerId = acc.Id
	}

	page := queryInt(c, "page", 0)
	pageSize := queryInt(c, "pageSize", h.feeds.PageSize())

	summaries, err := h.feeds.GetExploreFeed(viewerId, page, pageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "posts": summariesJSON(summaries)})
}

func (h *Handlers) HandleMessages(c *gin.Context) {
	acc := currentAccount(c)

	wallet := c.Param("wallet")
	err, other := h.database.ReadAccountByWallet(wallet)
	if err != nil || other == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	history, err := h.hub.History(acc.Id, other.Id, queryInt(c, "limit", 100))
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]chat.WireMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, chat.WireMessage{
			Id:        msg.Id.String(),
			From:      msg.FromId.String(),
			To:        msg.ToId.String(),
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and pumps it through the hub. The
// bearer token rides in the query string since browsers can't set
// headers on websocket dials.
func (h *Handlers) HandleWS(c *gin.Context) {
	err, acc := h.manager.SessionAccount(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	go h.hub.Serve(acc.Id, conn)
}

// HandleHealth checks content store connectivity.
func (h *Handlers) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	contentStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		contentStatus = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"content": contentStatus,
		"version": util.GetNameAndVersion(),
	})
}

// optionalAccount resolves the bearer token when one is present. Public
// routes use it to personalize responses without requiring a session.
func (h *Handlers) optionalAccount(c *gin.Context) *domain.Account {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		return nil
	}
	err, acc := h.manager.SessionAccount(token)
	if err != nil {
		return nil
	}
	return acc
}

func formFileBytes(c *gin.Context, field string) []byte {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil
	}
	return data
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func accountJSON(acc *domain.Account) gin.H {
	return gin.H{
		"id":             acc.Id.String(),
		"walletAddress":  acc.Wallet,
		"name":           acc.Name,
		"bio":            acc.Bio,
		"avatarCid":      acc.AvatarCid,
		"onChain":        acc.OnChain,
		"followerCount":  acc.FollowerCount,
		"followingCount": acc.FollowingCount,
		"createdAt":      acc.CreatedAt,
	}
}

func postJSON(post *domain.Post) gin.H {
	return gin.H{
		"id":           post.Id.String(),
		"authorId":     post.AuthorId.String(),
		"contentId":    post.ContentId,
		"contentType":  post.ContentType,
		"caption":      post.Caption,
		"onChain":      post.OnChain,
		"chainPostId":  post.ChainPostId,
		"txHash":       post.TxHash,
		"likeCount":    post.LikeCount,
		"commentCount": post.CommentCount,
		"syncPending":  post.SyncPending,
		"createdAt":    post.CreatedAt,
	}
}

func summariesJSON(summaries []domain.PostSummary) []gin.H {
	out := make([]gin.H, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		entry := postJSON(&s.Post)
		entry["authorWallet"] = s.AuthorWallet
		entry["authorName"] = s.AuthorName
		entry["authorAvatarCid"] = s.AuthorAvatarCid
		entry["viewerLiked"] = s.ViewerLiked
		out = append(out, entry)
	}
	return out
}

func commentJSON(comment *domain.Comment) gin.H {
	return gin.H{
		"id":        comment.Id.String(),
		"postId":    comment.PostId.String(),
		"authorId":  comment.AuthorId.String(),
		"message":   comment.Message,
		"createdAt": comment.CreatedAt,
	}
}
