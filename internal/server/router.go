package server

import (
	"context"

	"playbook/internal/auth"
	"playbook/internal/config"
	"playbook/internal/mailer"
	"playbook/internal/quotes"
	"playbook/internal/refresher"
	"playbook/internal/trades"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HistoryProvider serves the charting endpoint.
type HistoryProvider interface {
	History(ctx context.Context, symbol, market string) ([]quotes.Candle, error)
}

// Server wires the HTTP surface to the services.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *gorm.DB
	tokens    *auth.TokenManager
	trades    *trades.Service
	coalescer *refresher.Coalescer
	history   HistoryProvider
	mail      mailer.Notifier
}

// New creates the HTTP server.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	tokens *auth.TokenManager,
	tradesSvc *trades.Service,
	coalescer *refresher.Coalescer,
	history HistoryProvider,
	mail mailer.Notifier,
) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		tokens:    tokens,
		trades:    tradesSvc,
		coalescer: coalescer,
		history:   history,
		mail:      mail,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", s.signup)
		authGroup.POST("/verify-signup", s.verifySignup)
		authGroup.POST("/login", s.login)
		authGroup.POST("/forgot-password", s.forgotPassword)
		authGroup.POST("/reset-password", s.resetPassword)
	}

	tradeGroup := api.Group("/trades")
	tradeGroup.Use(s.authRequired())
	{
		tradeGroup.GET("", s.listTrades)
		tradeGroup.POST("", s.adminOnly(), s.createTrade)
		tradeGroup.PUT("/:id", s.adminOnly(), s.updateTrade)
		tradeGroup.POST("/interact", s.interact)
		tradeGroup.POST("/comment", s.postComment)
		tradeGroup.GET("/comments/all", s.listComments)
		tradeGroup.GET("/history/:symbol", s.symbolHistory)
	}

	return router
}
