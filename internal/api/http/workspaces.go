package http

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// MaxGistSize bounds a gist posted to run
const MaxGistSize = 4 << 20

// LoadRequest names the gist to load
type LoadRequest struct {
	Src string `json:"src" binding:"required"`
}

// CreateWorkspace starts a workspace with a stopped runner
func (h *Handlers) CreateWorkspace(c *gin.Context) {
	w, err := h.manager.Create()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w.Info())
}

// ListWorkspaces lists all live workspaces
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	infos := h.manager.List()
	c.JSON(http.StatusOK, gin.H{
		"workspaces": infos,
		"count":      len(infos),
	})
}

// GetWorkspace describes one workspace
func (h *Handlers) GetWorkspace(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w.Info())
}

// Run runs the workspace's gist. A gist in the body replaces it first.
func (h *Handlers) Run(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxGistSize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "gist too large"})
		return
	}
	if len(body) > 0 {
		var g protocol.Gist
		if err := sonic.Unmarshal(body, &g); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gist: " + err.Error()})
			return
		}
		w.SetGist(g)
	}

	if err := w.Run(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, w.Info())
}

// Stop replaces the running gist with the blank one
func (h *Handlers) Stop(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := w.Stop(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, w.Info())
}

// Load fetches a gist by id or url and runs it
func (h *Handlers) Load(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "src is required"})
		return
	}
	if err := w.Load(c.Request.Context(), req.Src); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, w.Info())
}

// Fork copies the workspace's gist into a new workspace and runs it there
func (h *Handlers) Fork(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	forked, err := h.manager.Fork(w.ID())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, forked.Info())
}

// Logs returns the consolidated log
func (h *Handlers) Logs(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	entries := w.Logs().Entries()
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// ClearLogs empties the consolidated log
func (h *Handlers) ClearLogs(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	w.Logs().Clear()
	c.Status(http.StatusNoContent)
}

// DeleteWorkspace tears a workspace down
func (h *Handlers) DeleteWorkspace(c *gin.Context) {
	w, ok := h.workspace(c)
	if !ok {
		return
	}
	h.manager.Close(w.ID())
	c.Status(http.StatusNoContent)
}
