package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/editor"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/logstream"
	"github.com/GriffinCanCode/jsgist/internal/protocol"
	"github.com/GriffinCanCode/jsgist/internal/shared/id"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	loadTimeout  = 30 * time.Second
	maxMessage   = 4 << 20
	noticeBuffer = 32
)

// Handler serves the editor stream
type Handler struct {
	manager  *editor.Manager
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a stream handler
func NewHandler(manager *editor.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS middleware decides which origins reach us
			},
		},
	}
}

// HandleConnection attaches the socket to the workspace named by the
// workspace query parameter, or to a new one that lives as long as the
// socket. A src parameter loads that gist once connected.
func (h *Handler) HandleConnection(c *gin.Context) {
	var (
		w     *editor.Workspace
		owned bool
	)
	if wid := c.Query("workspace"); wid != "" {
		var ok bool
		if w, ok = h.manager.Get(id.WorkspaceID(wid)); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
			return
		}
	} else {
		var err error
		if w, err = h.manager.Create(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		owned = true
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		if owned {
			h.manager.Close(w.ID())
		}
		return
	}

	conn := newConn(ws, w, h.metrics, h.logger)
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	defer func() {
		if owned {
			h.manager.Close(w.ID())
		}
	}()

	conn.serve(c.Request.Context(), c.Query("src"))
}

type conn struct {
	id        string
	ws        *websocket.Conn
	workspace *editor.Workspace
	metrics   *monitoring.Metrics
	logger    *zap.Logger

	dirty   chan struct{}
	notices chan editor.Notice
	out     chan ServerMessage
	done    chan struct{}
}

func newConn(ws *websocket.Conn, w *editor.Workspace, metrics *monitoring.Metrics, logger *zap.Logger) *conn {
	cid := uuid.NewString()
	return &conn{
		id:        cid,
		ws:        ws,
		workspace: w,
		metrics:   metrics,
		logger: logger.With(
			zap.String("conn", cid),
			zap.String("workspace", w.ID().String()),
		),
		dirty:   make(chan struct{}, 1),
		notices: make(chan editor.Notice, noticeBuffer),
		out:     make(chan ServerMessage, 8),
		done:    make(chan struct{}),
	}
}

func (c *conn) serve(ctx context.Context, src string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.ws.Close()

	logs := c.workspace.Logs()
	onChange := logstream.OnChange(c.markDirty)
	logs.Subscribe(onChange)
	defer logs.Unsubscribe(onChange)

	onNotice := editor.OnNotice(c.pushNotice)
	c.workspace.SubscribeNotices(onNotice)
	defer c.workspace.UnsubscribeNotices(onNotice)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()
	defer func() {
		close(c.done)
		<-writerDone
	}()

	c.logger.Info("Editor connected")
	c.enqueue(ServerMessage{Type: TypeHello, Workspace: c.workspace.ID().String()})
	c.markDirty()

	if src != "" {
		go c.load(ctx, src)
	}

	c.readLoop(ctx)
	c.logger.Info("Editor disconnected")
}

func (c *conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessage)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.notice(editor.LevelError, "invalid message")
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordWSMessage("in", msg.Type)
		}
		c.handle(ctx, msg)
	}
}

func (c *conn) handle(ctx context.Context, msg ClientMessage) {
	w := c.workspace
	switch msg.Type {
	case TypeRun:
		if len(msg.Data) > 0 {
			var g protocol.Gist
			if err := sonic.Unmarshal(msg.Data, &g); err != nil {
				c.notice(editor.LevelError, fmt.Sprintf("invalid gist: %v", err))
				return
			}
			w.SetGist(g)
		}
		if err := w.Run(); err != nil {
			c.notice(editor.LevelError, fmt.Sprintf("could not run: %v", err))
		}
	case TypeStop:
		if err := w.Stop(); err != nil {
			c.notice(editor.LevelError, fmt.Sprintf("could not stop: %v", err))
		}
	case TypeNewGist:
		w.Post(protocol.Message{Type: protocol.TypeNewGist, Data: msg.Data})
	case TypeLoad:
		if msg.Src == "" {
			c.notice(editor.LevelError, "load needs src")
			return
		}
		go c.load(ctx, msg.Src)
	case TypePing:
		c.enqueue(ServerMessage{Type: TypePong})
	default:
		c.notice(editor.LevelError, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// load reports failures as notices. The workspace publishes its own
// loader failures; a missing loader is reported here.
func (c *conn) load(ctx context.Context, src string) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	err := c.workspace.Load(ctx, src)
	switch {
	case errors.Is(err, editor.ErrNoLoader):
		c.notice(editor.LevelError, fmt.Sprintf("could not load jsGist: src=%s %v", src, err))
	case err != nil:
		c.logger.Debug("Load failed", zap.String("src", src), zap.Error(err))
	}
}

// markDirty coalesces log changes; the writer sends one snapshot per wakeup
func (c *conn) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *conn) pushNotice(n editor.Notice) {
	select {
	case c.notices <- n:
	default:
		c.logger.Debug("Dropping notice for slow client", zap.String("message", n.Message))
	}
}

// notice goes to this connection only
func (c *conn) notice(level editor.Level, msg string) {
	c.pushNotice(editor.Notice{Level: level, Message: msg, Time: time.Now()})
}

func (c *conn) enqueue(msg ServerMessage) {
	select {
	case c.out <- msg:
	case <-c.done:
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-c.done:
			return
		case <-c.dirty:
			err = c.write(ServerMessage{Type: TypeLogs, Entries: c.workspace.Logs().Entries()})
		case n := <-c.notices:
			err = c.write(ServerMessage{Type: TypeNotice, Level: string(n.Level), Message: n.Message})
		case msg := <-c.out:
			err = c.write(msg)
		case <-ticker.C:
			err = c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			c.logger.Debug("WebSocket write failed", zap.Error(err))
			c.ws.Close()
			return
		}
	}
}

func (c *conn) write(msg ServerMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", msg.Type)
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
