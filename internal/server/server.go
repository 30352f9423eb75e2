// internal/server/server.go
// Package server is the thin HTTP surface over the session supervisor.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/solpilot/solpilot/internal/metrics"
	"github.com/solpilot/solpilot/internal/session"
)

type Server struct {
	supervisor *session.Supervisor
	logger     *zap.Logger
	http       *http.Server
}

type launchRequest struct {
	Wallet string  `json:"wallet" binding:"required"`
	Amount float64 `json:"amount" binding:"required"`
}

type depositRequest struct {
	SignedTx string  `json:"signed_tx" binding:"required"`
	Wallet   string  `json:"wallet" binding:"required"`
	Amount   float64 `json:"amount" binding:"required"`
}

func New(addr string, supervisor *session.Supervisor, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		supervisor: supervisor,
		logger:     logger.Named("server"),
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	router.POST("/sessions", s.launch)
	router.POST("/sessions/:id/deposit", s.confirmDeposit)
	router.POST("/sessions/:id/stop", s.stop)
	router.GET("/sessions/:id", s.status)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) launch(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	res := s.supervisor.Launch(c.Request.Context(), req.Wallet, req.Amount)
	c.JSON(statusFor(res.Success), res)
}

func (s *Server) confirmDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	res := s.supervisor.ConfirmDeposit(c.Request.Context(), c.Param("id"), req.SignedTx, req.Wallet, req.Amount)
	c.JSON(statusFor(res.Success), res)
}

func (s *Server) stop(c *gin.Context) {
	res := s.supervisor.Stop(c.Param("id"))
	c.JSON(statusFor(res.Success), res)
}

func (s *Server) status(c *gin.Context) {
	res := s.supervisor.Status(c.Param("id"))
	c.JSON(statusFor(res.Success), res)
}

func statusFor(success bool) int {
	if success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}
