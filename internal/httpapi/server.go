// Package httpapi exposes the rewards service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// RewardService is the subset of rewards.Service the HTTP facade calls.
type RewardService interface {
	Today() rewards.Date
	Participate(ctx context.Context, userID rewards.UserID, today rewards.Date) (rewards.ParticipationResult, error)
	ParticipationStatus(ctx context.Context, userID rewards.UserID, today rewards.Date) (rewards.ParticipationStatus, error)
	CancelParticipation(ctx context.Context, participationID rewards.ParticipationID) (rewards.ParticipationSnapshot, error)
	PointBalance(ctx context.Context, userID rewards.UserID) (rewards.PointBalance, error)
	PointHistory(ctx context.Context, userID rewards.UserID, limit int) ([]rewards.PointHistory, error)
	Purchase(ctx context.Context, userID rewards.UserID, productID rewards.ProductID, quantity int64) (rewards.OrderSnapshot, error)
	CancelOrder(ctx context.Context, orderID rewards.OrderID) (rewards.OrderSnapshot, error)
	EnsureBudgetRange(ctx context.Context, start rewards.Date, end rewards.Date, dailyCap rewards.Points) ([]rewards.BudgetSnapshot, error)
	QueryBudgets(ctx context.Context, start rewards.Date, end rewards.Date, page rewards.PageRequest) (rewards.Page[rewards.BudgetSnapshot], error)
}

// Config carries the router settings.
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter wires every route onto a gin engine.
func NewRouter(cfg Config, service RewardService, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		service: service,
		logger:  logger,
		timeout: cfg.RequestTimeout,
	}
	return setupRouter(cfg, handler)
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rewards api listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(handler.withTimeout)

	users := api.Group("/users/:userID")
	users.GET("/roulette", handler.handleRouletteStatus)
	users.POST("/roulette", handler.handleParticipate)
	users.GET("/points", handler.handlePointBalance)
	users.GET("/points/history", handler.handlePointHistory)
	users.POST("/orders", handler.handlePurchase)

	api.POST("/orders/:orderID/cancel", handler.handleCancelOrder)

	admin := api.Group("/admin")
	admin.POST("/budgets", handler.handleEnsureBudgets)
	admin.GET("/budgets", handler.handleQueryBudgets)
	admin.POST("/participations/:participationID/cancel", handler.handleCancelParticipation)

	return router
}
