package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"supportdesk/internal/auth"
	"supportdesk/internal/handler"
	"supportdesk/internal/middleware"
	"supportdesk/internal/store"
)

type Deps struct {
	Store store.TicketStore
	Auth  *auth.Service
	// LoginLimiter throttles POST /api/auth/login; nil disables it.
	LoginLimiter *middleware.RateLimiter
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	api := r.Group("/api")
	requireStaff := middleware.RequireStaff(deps.Auth)

	authHandler := &handler.AuthHandler{Auth: deps.Auth}
	login := []gin.HandlerFunc{authHandler.Login}
	if deps.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{middleware.RateLimit(deps.LoginLimiter)}, login...)
	}
	api.POST("/auth/login", login...)
	api.GET("/auth/verify", requireStaff, authHandler.Verify)

	tickets := &handler.TicketHandler{Store: deps.Store, Verifier: deps.Auth}
	api.POST("/tickets", tickets.Create)
	api.GET("/tickets/:id", tickets.Get)
	api.POST("/tickets/:id/messages", tickets.PostMessage)

	staff := api.Group("")
	staff.Use(requireStaff)
	staff.GET("/tickets", tickets.List)
	staff.PATCH("/tickets/:id", tickets.SetStatus)
	staff.POST("/tickets/:id/reply", tickets.Reply)

	return r
}
