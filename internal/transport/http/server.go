package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tidemark/internal/logger"
	"tidemark/internal/news"
	"tidemark/internal/risk"
	"tidemark/internal/store/gormstore"

	"github.com/gin-gonic/gin"
)

// Server exposes a read-only status surface: health, recent decisions, open
// positions and active news pauses. It never mutates engine state.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig carries the collaborators the status routes read from.
type ServerConfig struct {
	Addr    string
	Store   *gormstore.Store
	Shock   *news.ShockEngine
	Account *risk.Account
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("status http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9981"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/decisions", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		decisions, err := cfg.Store.RecentDecisions(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"decisions": decisions})
	})
	api.GET("/decisions/slot/:id", func(c *gin.Context) {
		slotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot id"})
			return
		}
		decisions, err := cfg.Store.DecisionsBySlot(c.Request.Context(), slotID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"slot_id": slotID, "decisions": decisions})
	})
	if cfg.Shock != nil {
		api.GET("/pauses", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"pauses": cfg.Shock.ActivePauses(time.Now().UTC())})
		})
	}
	if cfg.Account != nil {
		api.GET("/positions", func(c *gin.Context) {
			now := time.Now().UTC()
			c.JSON(http.StatusOK, gin.H{
				"positions":       cfg.Account.Positions(),
				"realized_pnl":    cfg.Account.RealizedPnl(now),
				"drawdown_paused": cfg.Account.DrawdownPaused(now),
			})
		})
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), client, time.Since(start))
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
