// ABOUTME: HTTP surface of the schema architect: database catalog, analysis, and history routes
// ABOUTME: Built on gin with CORS, request logging, and Prometheus instrumentation
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/harper/ddl-architect/internal/architect"
	"github.com/harper/ddl-architect/internal/history"
	"github.com/harper/ddl-architect/internal/metrics"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/schema"
)

// Analyzer runs one schema analysis in a session
type Analyzer interface {
	Analyze(ctx context.Context, session *architect.Session, req architect.Request) (*architect.Result, error)
}

// Catalog reads a live database's catalog
type Catalog interface {
	Ping(ctx context.Context, c schema.Connection) error
	Databases(ctx context.Context, c schema.Connection) ([]string, error)
	Tables(ctx context.Context, c schema.Connection, database string) ([]string, error)
	TableSchemas(ctx context.Context, c schema.Connection, tables []string) (models.TableSchemas, error)
}

// Deps are the collaborators the router serves
type Deps struct {
	History  *history.Service
	Analyzer Analyzer
	Catalog  Catalog
	// Count backs the health probe, typically store.Store.Count
	Count       func(ctx context.Context) (int, error)
	Metrics     *metrics.Metrics
	CORSOrigins []string
	Logger      *log.Logger
}

// Server holds the default session shared by requests that do not name a conversation
type Server struct {
	deps    Deps
	session *architect.Session
	logger  *log.Logger
}

// NewServer creates a server with a fresh default session
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{deps: deps, session: architect.NewSession(), logger: logger}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	if s.deps.Metrics != nil {
		r.Use(s.instrument())
	}
	if len(s.deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.deps.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) {
		detail(c, http.StatusNotFound, "Not Found")
	})
	r.NoMethod(func(c *gin.Context) {
		detail(c, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.GET("/", s.root)
	r.GET("/healthz", s.healthz)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	db := r.Group("/database")
	db.POST("/connect", s.connect)
	db.POST("/databases/", s.databases)
	db.POST("/tables/:database_name", s.tables)
	db.POST("/analyze-schema/", s.analyzeSchema)

	conv := r.Group("/api/conversations")
	conv.GET("", s.listConversations)
	conv.POST("/reset", s.resetConversation)
	conv.GET("/:conversation_id", s.getConversation)
	conv.DELETE("/:conversation_id", s.deleteConversation)

	hist := r.Group("/api/chat-history")
	hist.GET("", s.listHistory)
	hist.GET("/:item_id", s.getHistoryItem)
	hist.DELETE("/:item_id", s.deleteHistoryItem)

	return r
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Schema architect is running!"})
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.Count == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	n, err := s.deps.Count(c.Request.Context())
	if err != nil {
		s.logger.Error("health probe failed", "err", err)
		detail(c, http.StatusServiceUnavailable, "record store unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "records": n})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
