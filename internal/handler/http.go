package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anime-notifier/internal/anilist"
	"anime-notifier/internal/models"
	"anime-notifier/internal/service"
)

// ShowSearcher finds shows by title.
type ShowSearcher interface {
	SearchShows(ctx context.Context, query string) ([]anilist.SearchResult, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler serves the admin and trigger API.
type HTTPHandler struct {
	db        Pinger
	runner    service.PassRunner
	watchlist *service.Watchlist
	searcher  ShowSearcher
	backupSvc *service.BackupService
	apiToken  string
	logger    *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler. backupSvc may be nil.
func NewHTTPHandler(
	runner service.PassRunner,
	watchlist *service.Watchlist,
	searcher ShowSearcher,
	backupSvc *service.BackupService,
	apiToken string,
	logger *zap.Logger,
) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		runner:    runner,
		watchlist: watchlist,
		searcher:  searcher,
		backupSvc: backupSvc,
		apiToken:  strings.TrimSpace(apiToken),
		logger:    logger,
	}
}

// SetDatabase makes /api/health report store reachability.
func (h *HTTPHandler) SetDatabase(db Pinger) {
	h.db = db
}

// RegisterRoutes registers all HTTP routes
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	// Health check must allow unauthenticated ping for probes
	r.GET("/api/health", h.Health)

	api := r.Group("/api")
	api.Use(h.authMiddleware)

	api.POST("/check", h.RunCheck)

	api.GET("/watches", h.ListWatches)
	api.POST("/watches", h.AddWatch)
	api.DELETE("/watches/:user/:show", h.RemoveWatch)
	api.PUT("/watches/:user/:show/episode", h.SetEpisode)
	api.PUT("/users/:user/target", h.SetTarget)

	api.GET("/schedule/:show", h.GetSchedule)
	api.GET("/search", h.Search)
	api.GET("/calendar.ics", h.Calendar)

	api.POST("/backup", h.Backup)
}

// Health returns health status and the time of the newest backup.
func (h *HTTPHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed: database unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
	}

	body := gin.H{"status": "ok"}
	if h.backupSvc != nil {
		last, err := h.backupSvc.GetLastBackupTime()
		if err != nil {
			h.logger.Warn("failed to read last backup time", zap.Error(err))
		} else if !last.IsZero() {
			body["last_backup"] = last.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, body)
}

// RunCheck runs one reconciliation pass and returns its summary.
func (h *HTTPHandler) RunCheck(c *gin.Context) {
	result, err := h.runner.RunPass(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListWatches returns a user's watch entries with cached schedules.
func (h *HTTPHandler) ListWatches(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	views, err := h.watchlist.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watches": views})
}

// AddWatch starts watching a show.
func (h *HTTPHandler) AddWatch(c *gin.Context) {
	var req struct {
		UserID         string `json:"user_id" binding:"required"`
		ShowID         int    `json:"show_id" binding:"required,gt=0"`
		DeliveryTarget string `json:"delivery_target"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.watchlist.Add(c.Request.Context(), req.UserID, req.ShowID, req.DeliveryTarget)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"watch": entry})
}

// RemoveWatch stops watching a show.
func (h *HTTPHandler) RemoveWatch(c *gin.Context) {
	showID, ok := h.showParam(c)
	if !ok {
		return
	}
	if err := h.watchlist.Remove(c.Request.Context(), c.Param("user"), showID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// SetEpisode overrides the last notified episode of an entry.
func (h *HTTPHandler) SetEpisode(c *gin.Context) {
	showID, ok := h.showParam(c)
	if !ok {
		return
	}
	var req struct {
		Episode *int `json:"episode" binding:"required,min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.watchlist.SetEpisode(c.Request.Context(), c.Param("user"), showID, *req.Episode); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "episode updated"})
}

// SetTarget routes all of a user's notifications to a chat or channel. An
// empty target reverts to direct messages.
func (h *HTTPHandler) SetTarget(c *gin.Context) {
	var req struct {
		Target string `json:"target"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.watchlist.SetChannel(c.Request.Context(), c.Param("user"), req.Target)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// GetSchedule returns the current schedule of a show.
func (h *HTTPHandler) GetSchedule(c *gin.Context) {
	showID, ok := h.showParam(c)
	if !ok {
		return
	}
	snap, err := h.watchlist.Schedule(c.Request.Context(), showID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": snap})
}

// Search finds shows by title.
func (h *HTTPHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	results, err := h.searcher.SearchShows(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Backup writes a database backup now.
func (h *HTTPHandler) Backup(c *gin.Context) {
	if h.backupSvc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backups are not configured"})
		return
	}
	backupPath, err := h.backupSvc.Backup(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_path": backupPath})
}

// authMiddleware enforces Bearer token authentication against the configured API token.
func (h *HTTPHandler) authMiddleware(c *gin.Context) {
	expected := h.apiToken
	if expected == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "API token not set"})
		c.Abort()
		return
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
		c.Abort()
		return
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(expected)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		c.Abort()
		return
	}

	c.Next()
}

// writeError maps domain errors to status codes.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *HTTPHandler) showParam(c *gin.Context) (int, bool) {
	showID, err := strconv.Atoi(c.Param("show"))
	if err != nil || showID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid show id"})
		return 0, false
	}
	return showID, true
}
