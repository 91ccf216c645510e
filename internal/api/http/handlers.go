package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/editor"
	"github.com/GriffinCanCode/jsgist/internal/gist"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

// Version is reported by the root endpoint
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	manager *editor.Manager
	metrics *monitoring.Metrics
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(manager *editor.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		manager: manager,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "jsGist runner",
		"version": Version,
	})
}

// Health reports liveness and workspace load
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"workspaces": h.manager.Count(),
		"uptime":     time.Since(h.started).Round(time.Second).String(),
	})
}

// workspace resolves the :id parameter, writing the error response itself
func (h *Handlers) workspace(c *gin.Context) (*editor.Workspace, bool) {
	wid := c.Param("id")
	if !id.Valid(wid, id.WorkspacePrefix) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
		return nil, false
	}
	w, ok := h.manager.Get(id.WorkspaceID(wid))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": editor.ErrNotFound.Error()})
		return nil, false
	}
	return w, true
}

// fail maps domain errors to status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var upstream *gist.StatusError
	switch {
	case errors.Is(err, editor.ErrNotFound), errors.Is(err, gist.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, gist.ErrInvalidSource):
		status = http.StatusBadRequest
	case errors.Is(err, editor.ErrTooMany):
		status = http.StatusServiceUnavailable
	case errors.Is(err, editor.ErrNoRunner), errors.Is(err, editor.ErrNoLoader),
		errors.Is(err, sandbox.ErrNoLauncher), errors.Is(err, sandbox.ErrClosed):
		status = http.StatusConflict
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
