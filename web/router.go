package web

import (
	"fmt"
	"log"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/nounce/nounced/social"
	"github.com/nounce/nounced/util"
	"golang.org/x/time/rate"
)

// NewRouter assembles the gin engine with all API routes. Kept separate
// from Run so tests can drive it with httptest.
func NewRouter(conf *util.AppConfig, h *Handlers, feeds *social.Feeds) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	authed := AuthMiddleware(h.manager)

	// Max 10MB for media uploads, 64KB for everything else posted as JSON
	maxUpload := MaxBytesMiddleware(10 * 1024 * 1024)
	maxJson := MaxBytesMiddleware(64 * 1024)

	api := g.Group("/api")
	{
		api.POST("/auth/nonce", maxJson, h.HandleNonce)
		api.POST("/auth/verify", maxJson, h.HandleVerify)
		api.POST("/auth/logout", authed, h.HandleLogout)
		api.POST("/auth/register", authed, maxUpload, h.HandleRegister)
		api.PUT("/auth/avatar", authed, maxUpload, h.HandleAvatar)

		api.GET("/users/:wallet", h.HandleProfile)
		api.POST("/users/:wallet/follow", authed, h.HandleToggleFollow)
		api.GET("/users/:wallet/followers", h.HandleFollowers)
		api.GET("/users/:wallet/following", h.HandleFollowing)

		api.POST("/posts", authed, maxUpload, h.HandleCreatePost)
		api.DELETE("/posts/:id", authed, h.HandleDeletePost)
		api.POST("/posts/:id/like", authed, h.HandleToggleLike)
		api.GET("/posts/:id/comments", h.HandleListComments)
		api.POST("/posts/:id/comments", authed, maxJson, h.HandleAddComment)
		api.DELETE("/comments/:id", authed, h.HandleDeleteComment)

		api.GET("/feed", authed, h.HandleFeed)
		api.GET("/explore", h.HandleExplore)

		api.GET("/messages/:wallet", authed, h.HandleMessages)
	}

	g.GET("/ws", h.HandleWS)

	g.GET("/rss", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		rss, err := GetRSS(conf, feeds)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/health", h.HandleHealth)

	return g
}

// Run starts the HTTP server and blocks.
func Run(conf *util.AppConfig, h *Handlers, feeds *social.Feeds) error {
	log.Printf("Starting API server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := NewRouter(conf, h, feeds)
	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}
