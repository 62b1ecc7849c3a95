// Package httpapi exposes the item graph over a gin admin API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"itemcore/internal/blob"
	"itemcore/internal/export"
	"itemcore/internal/item"
	"itemcore/pkg/domain"
)

// Items is the part of the item factory the API drives.
type Items interface {
	GetItem(ctx context.Context, id domain.ItemID, recurse bool) (*item.Item, error)
	SpawnItemWithAttributes(ctx context.Context, data domain.ItemData, attrs domain.Attributes) (*item.Item, error)
}

// Exports schedules and reports asynchronous inventory exports.
type Exports interface {
	Enqueue(containerID domain.ItemID, requestedBy string) (export.Job, error)
	Get(id string) (export.Job, bool)
}

// Archive lists stored snapshots of a container.
type Archive interface {
	List(ctx context.Context, containerID domain.ItemID) ([]blob.Info, error)
}

// Logger is the request logging surface. *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config wires the API collaborators. Items is required; the rest are optional
// and their routes are omitted when nil.
type Config struct {
	Items   Items
	Exports Exports
	Archive Archive
	Metrics http.Handler
	Events  http.Handler
	Logger  Logger
}

type server struct {
	items   Items
	exports Exports
	archive Archive
	logger  Logger
}

// NewRouter builds the gin engine serving the admin API.
func NewRouter(cfg Config) *gin.Engine {
	s := &server{items: cfg.Items, exports: cfg.Exports, archive: cfg.Archive, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = noopLogger{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	if cfg.Events != nil {
		r.GET("/ws", gin.WrapH(cfg.Events))
	}

	items := r.Group("/items")
	items.POST("", s.spawn)
	items.GET("/:id", s.getItem)
	items.DELETE("/:id", s.deleteItem)
	items.GET("/:id/contents", s.contents)
	items.POST("/:id/move", s.move)
	items.POST("/:id/split", s.split)
	items.POST("/:id/merge", s.merge)
	items.POST("/:id/stack", s.stack)
	if cfg.Exports != nil {
		items.POST("/:id/export", s.enqueueExport)
		r.GET("/exports/:job", s.getExport)
	}
	if cfg.Archive != nil {
		items.GET("/:id/exports", s.listExports)
	}
	return r
}

func (s *server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []any{"method", c.Request.Method, "path", c.FullPath(), "status", status, "duration", time.Since(start)}
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", append(args, "errors", c.Errors.String())...)
			return
		}
		s.logger.Info("request", args...)
	}
}
