// ABOUTME: Database catalog and schema analysis handlers
// ABOUTME: Connection failures are reported without echoing the connection details
package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harper/ddl-architect/internal/architect"
	"github.com/harper/ddl-architect/internal/models"
	"github.com/harper/ddl-architect/internal/schema"
)

type analyzeRequest struct {
	schema.Connection
	Prompt         string   `json:"prompt"`
	SelectedTables []string `json:"selected_tables"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

func (s *Server) bindConnection(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) connect(c *gin.Context) {
	var conn schema.Connection
	if !s.bindConnection(c, &conn) {
		return
	}
	s.logger.Info("connection requested", "db_type", conn.DBType, "host", conn.Host, "database", conn.Database)

	if err := s.deps.Catalog.Ping(c.Request.Context(), conn); err != nil {
		s.logger.Error("connection failed", "db_type", conn.DBType, "host", conn.Host, "err", err)
		detail(c, http.StatusBadRequest, "Database connection failed. Please check your credentials and connection details.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Connected to %s database!", conn.DBType)})
}

func (s *Server) databases(c *gin.Context) {
	var conn schema.Connection
	if !s.bindConnection(c, &conn) {
		return
	}
	dbs, err := s.deps.Catalog.Databases(c.Request.Context(), conn)
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Database listing service unavailable")
		return
	}
	if dbs == nil {
		dbs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"databases": dbs})
}

func (s *Server) tables(c *gin.Context) {
	var conn schema.Connection
	if !s.bindConnection(c, &conn) {
		return
	}
	database := c.Param("database_name")
	tables, err := s.deps.Catalog.Tables(c.Request.Context(), conn, database)
	if err != nil {
		if statusFor(err, 0) == http.StatusBadRequest {
			s.fail(c, err, http.StatusBadRequest, "")
			return
		}
		s.logger.Error("table listing failed", "database", database, "err", err)
		detail(c, http.StatusUnprocessableEntity, "Invalid database or insufficient privileges")
		return
	}
	if tables == nil {
		tables = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) analyzeSchema(c *gin.Context) {
	var req analyzeRequest
	if !s.bindConnection(c, &req) {
		return
	}
	if len(req.SelectedTables) == 0 {
		detail(c, http.StatusBadRequest, "selected_tables must not be empty")
		return
	}

	session := s.session
	if req.ConversationID != "" {
		resumed, err := architect.ResumeSession(req.ConversationID)
		if err != nil {
			s.fail(c, err, http.StatusBadRequest, "")
			return
		}
		session = resumed
	}

	ctx := c.Request.Context()
	tableSchemas, err := s.deps.Catalog.TableSchemas(ctx, req.Connection, req.SelectedTables)
	if err != nil {
		s.failAnalysis(c, err, req)
		return
	}

	result, err := s.deps.Analyzer.Analyze(ctx, session, architect.Request{
		Prompt:   req.Prompt,
		Database: req.Database,
		Tables:   req.SelectedTables,
		Schema:   tableSchemas,
	})
	if err != nil {
		s.failAnalysis(c, err, req)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) failAnalysis(c *gin.Context, err error, req analyzeRequest) {
	s.logger.Error("schema analysis failed", "database", req.Database, "tables", req.SelectedTables, "err", err)
	// Only our own input checks are echoed; provider rejections stay behind the generic message
	var ae *models.AnalysisError
	if statusFor(err, 0) == http.StatusBadRequest && !(errors.As(err, &ae) && ae.Stage == architect.StageComplete) {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	detail(c, http.StatusUnprocessableEntity, "Schema analysis failed. Please validate inputs and try again.")
}
