package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/collect/staging"
)

// ListStagingResponse represents the response for GET /api/v1/staging.
type ListStagingResponse struct {
	Items []staging.Item `json:"items"`
	Total int            `json:"total"`
}

// HandleListStaging handles GET /api/v1/staging.
func (s *Server) HandleListStaging(c *gin.Context) {
	var filter staging.Filter

	if v := c.Query("node"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid node ID format"))
			return
		}
		filter.NodeID = &id
	}
	if v := c.Query("status"); v != "" {
		status, err := parseStatus(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
			return
		}
		filter.Status = &status
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid limit"))
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid offset"))
			return
		}
		filter.Offset = offset
	}

	items, err := s.deps.Staging.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if items == nil {
		items = []staging.Item{}
	}

	c.JSON(http.StatusOK, ListStagingResponse{Items: items, Total: len(items)})
}

// HandleStagingStats handles GET /api/v1/staging/stats?node={id}.
func (s *Server) HandleStagingStats(c *gin.Context) {
	id, err := uuid.Parse(c.Query("node"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid node ID format"))
		return
	}

	stats, err := s.deps.Staging.Stats(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandlePurgeItem handles DELETE /api/v1/staging/{id}. The item is removed
// and its URL forgotten so discovery stages it again.
func (s *Server) HandlePurgeItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid item ID"))
		return
	}

	if _, err := s.deps.Controller.Pipeline().PurgeItem(c.Request.Context(), id); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseStatus(v string) (staging.Status, error) {
	for _, st := range staging.Statuses {
		if string(st) == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", v)
}
