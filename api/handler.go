package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ShodmonX/trading-signals-bot/internal/infrastructure"
	"github.com/ShodmonX/trading-signals-bot/internal/model"
	"github.com/ShodmonX/trading-signals-bot/internal/storage"
)

// StartBacktest enqueues a run and returns its session id. It reports false
// when the worker queue is full.
type StartBacktest func(params model.BacktestParams) (string, bool)

type Handler struct {
	repo   *storage.Repository
	start  StartBacktest
	logger *zap.Logger
}

func NewHandler(repo *storage.Repository, start StartBacktest, logger *zap.Logger) *Handler {
	return &Handler{
		repo:   repo,
		start:  start,
		logger: logger,
	}
}

func normalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "/", "")
}

// RunBacktest validates the request and hands it to the worker pool. The
// response carries the subjects a websocket client can follow for progress.
func (h *Handler) RunBacktest(c *gin.Context) {
	var req struct {
		Symbol    string    `json:"symbol" binding:"required"`
		Timeframe string    `json:"timeframe" binding:"required"`
		Threshold float64   `json:"threshold"`
		StartDate time.Time `json:"start_date" binding:"required"`
		EndDate   time.Time `json:"end_date" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !model.ValidTimeframe(req.Timeframe) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported timeframe: " + req.Timeframe})
		return
	}
	if !req.EndDate.After(req.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be after start_date"})
		return
	}
	if req.Threshold < 0 || req.Threshold > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be between 0 and 100"})
		return
	}

	params := model.BacktestParams{
		Symbol:    normalizeSymbol(req.Symbol),
		Timeframe: req.Timeframe,
		Threshold: req.Threshold,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}

	sessionID, ok := h.start(params)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest queue is full, try again later"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id":     sessionID,
		"progress_topic": infrastructure.SubjectProgressPrefix + sessionID,
		"result_topic":   infrastructure.SubjectResultPrefix + sessionID,
	})
}

// GetBacktest returns a persisted run by session id.
func (h *Handler) GetBacktest(c *gin.Context) {
	sessionID := c.Param("session")

	summary, err := h.repo.GetBacktestBySession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		h.logger.Error("failed to load backtest result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ListStrategies exposes the currently active strategy set.
func (h *Handler) ListStrategies(c *gin.Context) {
	configs, err := h.repo.LoadActiveStrategyConfigs(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load strategies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, configs)
}
