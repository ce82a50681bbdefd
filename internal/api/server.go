package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/claim-evaluator/internal/evaluation"
	"github.com/spigell/claim-evaluator/internal/logger"
)

const defaultRequestTimeout = 2 * time.Minute

// Evaluator runs a claim evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (*evaluation.Result, error)
}

// Config defines HTTP server settings.
type Config struct {
	AllowedOrigins []string      `mapstructure:"allowed-origins"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

// Server exposes the claim evaluation pipeline over HTTP.
type Server struct {
	evaluator      Evaluator
	allowedOrigins []string
	requestTimeout time.Duration
	logger         *zap.Logger
}

func NewServer(evaluator Evaluator, cfg Config, log *zap.Logger) (*Server, error) {
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Server{
		evaluator:      evaluator,
		allowedOrigins: cfg.AllowedOrigins,
		requestTimeout: timeout,
		logger:         logger.WithFields(log),
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", headerRequestID}
	corsCfg.ExposeHeaders = []string{headerRequestID}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.POST("/query", s.handleQuery)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, evaluation.ErrInvalidInput)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	res, err := s.evaluator.Evaluate(ctx, evaluation.Request{
		Query:   req.Query,
		FileURL: req.FileURL,
		ID:      c.GetString(contextRequestID),
	})
	switch {
	case errors.Is(err, evaluation.ErrInvalidInput):
		s.renderError(c, http.StatusBadRequest, err)
		return
	case err != nil:
		logger.WithRequest(s.logger, c.GetString(contextRequestID)).Error("claim evaluation failed", zap.Error(err))
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, decisionResponse{
		Decision:      string(res.Decision.Decision),
		Amount:        res.Decision.Amount,
		Justification: res.Decision.Justification,
	})
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
