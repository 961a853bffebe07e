package content

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// APIServer serves read access to imported content.
type APIServer struct {
	store *Store
}

// NewAPIServer creates a content API server.
func NewAPIServer(store *Store) *APIServer {
	return &APIServer{store: store}
}

// Register adds the content routes to group.
func (s *APIServer) Register(group *gin.RouterGroup) {
	group.GET("/content/:kind", s.HandleList)
	group.GET("/content/:kind/:id", s.HandleGet)
	group.DELETE("/content/:kind/:id", s.HandleDelete)
}

// ListResponse represents the response for GET /content/{kind}.
type ListResponse struct {
	Entries []Entry  `json:"entries"`
	Total   int      `json:"total"`
	Errors  []string `json:"errors,omitempty"`
}

func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// HandleList handles GET /content/{kind}.
func (s *APIServer) HandleList(c *gin.Context) {
	result, err := s.store.List(c.Param("kind"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	resp := ListResponse{
		Entries: result.Entries,
		Total:   len(result.Entries),
	}
	if resp.Entries == nil {
		resp.Entries = []Entry{}
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}

	c.JSON(http.StatusOK, resp)
}

// HandleGet handles GET /content/{kind}/{id}.
func (s *APIServer) HandleGet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid entry ID"))
		return
	}

	entry, err := s.store.Get(c.Param("kind"), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// HandleDelete handles DELETE /content/{kind}/{id}.
func (s *APIServer) HandleDelete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid entry ID"))
		return
	}

	if err := s.store.Delete(c.Param("kind"), id); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *APIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
		return
	case errors.Is(err, ErrInvalidKind):
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
}
