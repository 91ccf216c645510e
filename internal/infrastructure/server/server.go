package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/jsgist/internal/api/http"
	"github.com/GriffinCanCode/jsgist/internal/api/middleware"
	"github.com/GriffinCanCode/jsgist/internal/api/ws"
	"github.com/GriffinCanCode/jsgist/internal/editor"
	"github.com/GriffinCanCode/jsgist/internal/gist"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsgist/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsgist/internal/runner"
	"github.com/GriffinCanCode/jsgist/internal/sandbox"
	"github.com/GriffinCanCode/jsgist/internal/transport/inproc"
	"github.com/GriffinCanCode/jsgist/internal/transport/process"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	manager *editor.Manager
	loader  *gist.Loader
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	target := cfg.Runner.Target()
	logger.Info("Initializing jsGist server",
		zap.String("port", cfg.Server.Port),
		zap.String("runner_env", cfg.Runner.Env),
		zap.String("runner_mode", cfg.Runner.Mode),
		zap.String("runner_url", target.RunnerURL),
	)

	metrics := monitoring.NewMetrics()

	loader, err := gist.New(gist.Config{
		APIURL:    cfg.Gist.APIURL,
		Token:     cfg.Gist.Token,
		Timeout:   cfg.Gist.Timeout.Std(),
		Retries:   cfg.Gist.Retries,
		CacheTTL:  cfg.Gist.CacheTTL.Std(),
		CacheSize: cfg.Gist.CacheSize,
	}, logger.Component("gist"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gist loader: %w", err)
	}
	loader.WithMetrics(metrics)

	manager := editor.NewManager(editor.ManagerConfig{
		Target:   target,
		Launcher: launcherFor(cfg, logger),
		Loader:   loader,
		Limit:    cfg.Server.MaxWorkspaces,
		Metrics:  metrics,
		Logger:   logger.Component("editor"),
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.CORSOrigins
	}
	router.Use(middleware.CORS(cors))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(middleware.NewLimiter(rl)))
	}

	handlers := apihttp.NewHandlers(manager, metrics, logger.Component("api"))
	wsHandler := ws.NewHandler(manager, metrics, logger.Component("ws"))
	registerRoutes(router, handlers, wsHandler)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		manager: manager,
		loader:  loader,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

func registerRoutes(router *gin.Engine, h *apihttp.Handlers, wsHandler *ws.Handler) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	// Bootstrap script named by the sandbox url
	router.GET("/jsgist-runner.js", apihttp.RunnerScript())

	workspaces := router.Group("/workspaces")
	workspaces.POST("", h.CreateWorkspace)
	workspaces.GET("", h.ListWorkspaces)
	workspaces.GET("/:id", h.GetWorkspace)
	workspaces.POST("/:id/run", h.Run)
	workspaces.POST("/:id/stop", h.Stop)
	workspaces.POST("/:id/load", h.Load)
	workspaces.POST("/:id/fork", h.Fork)
	workspaces.GET("/:id/logs", h.Logs)
	workspaces.DELETE("/:id/logs", h.ClearLogs)
	workspaces.DELETE("/:id", h.DeleteWorkspace)

	// WebSocket
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics endpoints
	router.GET("/metrics", h.Metrics())
	router.GET("/metrics/json", h.MetricsJSON)
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	return logging.New(lc)
}

// launcherFor picks the sandbox transport each workspace gets
func launcherFor(cfg *config.Config, logger *logging.Logger) editor.LauncherFunc {
	rc := cfg.Runner
	if rc.Mode == config.ModeProcess {
		args := []string{
			"-timeout", rc.Timeout.Std().String(),
			"-max-call-stack", strconv.Itoa(rc.MaxCallStack),
			"-log-level", cfg.Logging.Level,
		}
		return func(d sandbox.Dispatcher) sandbox.Launcher {
			return process.NewLauncher(d, rc.Binary, args, logger.Component("process"))
		}
	}

	runnerCfg := runner.Config{
		Timeout:          rc.Timeout.Std(),
		MaxCallStackSize: rc.MaxCallStack,
		Loader:           runner.NewHTTPLoader(cfg.Gist.Timeout.Std(), cfg.Gist.Retries, logger.Component("runner")),
	}
	return func(d sandbox.Dispatcher) sandbox.Launcher {
		return inproc.NewLauncher(d, runnerCfg, logger.Component("inproc"))
	}
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the workspace manager
func (s *Server) Manager() *editor.Manager {
	return s.manager
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. Cancellation shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.http = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Close tears down every workspace and flushes the logger
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.manager.CloseAll()
	s.loader.Close()

	_ = s.logger.Sync()
	return nil
}
