package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fileforge/internal/config"
	"fileforge/internal/events"
	"fileforge/internal/logging"
	"fileforge/internal/orchestrator"
	"fileforge/internal/storage"
)

// Server exposes the HTTP API: submission, status, format discovery, signed
// downloads, and the per-job SSE stream.
type Server struct {
	cfg         *config.Config
	orch        *orchestrator.Orchestrator
	broadcaster *events.Broadcaster
	blobs       storage.BlobStorage
	signer      *storage.URLSigner
	logger      *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires the router. Gin runs in release mode; request logging goes
// through the component logger instead of gin's default writer.
func NewServer(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	broadcaster *events.Broadcaster,
	blobs storage.BlobStorage,
	signer *storage.URLSigner,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:         cfg,
		orch:        orch,
		broadcaster: broadcaster,
		blobs:       blobs,
		signer:      signer,
		logger:      logger.With(logging.String(logging.FieldComponent, "api")),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api")
	api.POST("/upload", s.handleUpload)
	api.POST("/convert", s.handleConvert)
	api.GET("/status/:jobID", s.handleStatus)
	api.GET("/formats", s.handleFormats)
	api.GET("/formats/:category", s.handleFormatsByCategory)
	api.GET("/download/:jobID", s.handleDownload)
	api.GET("/files", s.handleFiles)
	api.GET("/subscribe/:jobID", s.handleSubscribe)
	api.GET("/queue", s.handleQueueList)
	api.POST("/queue/retry", s.handleQueueRetry)
	api.DELETE("/queue", s.handleQueueClear)

	s.engine = engine
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving on the configured bind address. It returns once the
// listener stops; callers run it in a goroutine.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.Paths.APIBind,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api listening", logging.String("bind", s.cfg.Paths.APIBind))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
