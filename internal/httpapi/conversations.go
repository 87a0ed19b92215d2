// ABOUTME: Conversation and legacy chat-history handlers
// ABOUTME: Ids are validated by the history service before any store access
package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/harper/ddl-architect/internal/history"
	"github.com/harper/ddl-architect/internal/models"
)

func listOptions(c *gin.Context) (history.ListOptions, error) {
	opts := history.ListOptions{
		Database: c.Query("database"),
		Table:    c.Query("table"),
		Limit:    history.DefaultLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: limit must be an integer, got %q", models.ErrValidation, v)
		}
		opts.Limit = n
		if n == 0 {
			// zero would otherwise select the default
			return opts, fmt.Errorf("%w: limit must be between 1 and %d, got 0", models.ErrValidation, history.MaxLimit)
		}
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: offset must be an integer, got %q", models.ErrValidation, v)
		}
		opts.Offset = n
	}
	return opts, nil
}

func (s *Server) listConversations(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest, "")
		return
	}
	convs, err := s.deps.History.List(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Failed to retrieve conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (s *Server) resetConversation(c *gin.Context) {
	s.session.Reset()
	s.logger.Info("default conversation reset")
	c.Status(http.StatusNoContent)
}

func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.deps.History.Get(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Failed to retrieve conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteConversation(c *gin.Context) {
	id := c.Param("conversation_id")
	if _, err := s.deps.History.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	if s.session.ID() == id {
		s.session.Reset()
	}
	c.Status(http.StatusNoContent)
}

// listHistory flattens the listed conversations into pairs, newest first
func (s *Server) listHistory(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.fail(c, err, http.StatusBadRequest, "")
		return
	}
	convs, err := s.deps.History.List(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Failed to retrieve chat history")
		return
	}

	items := []models.PairView{}
	for _, conv := range convs {
		items = append(items, conv.Messages...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp > items[j].Timestamp
	})
	c.JSON(http.StatusOK, items)
}

func (s *Server) getHistoryItem(c *gin.Context) {
	pair, err := s.deps.History.GetPair(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Failed to retrieve history item")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) deleteHistoryItem(c *gin.Context) {
	if err := s.deps.History.DeletePair(c.Request.Context(), c.Param("item_id")); err != nil {
		s.fail(c, err, http.StatusInternalServerError, "Failed to delete history item")
		return
	}
	c.Status(http.StatusNoContent)
}
