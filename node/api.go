package node

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeleteFunc removes a node and everything that belongs to it. purgeHistory
// also forgets the node's URL hashes so they can be discovered again.
type DeleteFunc func(ctx context.Context, id uuid.UUID, purgeHistory bool) error

// APIServer serves node CRUD over HTTP.
type APIServer struct {
	store  *Store
	delete DeleteFunc
}

// NewAPIServer creates a node API server. A nil del deletes only the node
// row.
func NewAPIServer(store *Store, del DeleteFunc) *APIServer {
	if del == nil {
		del = func(ctx context.Context, id uuid.UUID, _ bool) error {
			return store.Delete(ctx, id)
		}
	}
	return &APIServer{
		store:  store,
		delete: del,
	}
}

// Register adds the node routes to group.
func (s *APIServer) Register(group *gin.RouterGroup) {
	group.GET("/nodes", s.HandleListNodes)
	group.GET("/nodes/:id", s.HandleGetNode)
	group.POST("/nodes", s.HandleCreateNode)
	group.PUT("/nodes/:id", s.HandleUpdateNode)
	group.DELETE("/nodes/:id", s.HandleDeleteNode)
}

// ListNodesResponse represents the response for GET /nodes.
type ListNodesResponse struct {
	Nodes []Node `json:"nodes"`
	Total int    `json:"total"`
}

// ErrorResponse creates a standardized error response.
func ErrorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *APIServer) handleError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":     "validation_error",
				"message":  err.Error(),
				"problems": verr.Problems,
			},
		})
	case errors.Is(err, ErrNodeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse("not_found", err.Error()))
	case errors.Is(err, ErrDuplicateName):
		c.JSON(http.StatusConflict, ErrorResponse("conflict", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse("internal_error", "Failed to process request"))
	}
}

// HandleListNodes handles GET /nodes.
func (s *APIServer) HandleListNodes(c *gin.Context) {
	filter := Filter{}

	if kindParam := c.Query("kind"); kindParam != "" {
		kind := TargetKind(kindParam)
		filter.Kind = &kind
	}
	filter.Scheduled = c.Query("scheduled") == "true"

	nodes, err := s.store.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if nodes == nil {
		nodes = []Node{}
	}

	c.JSON(http.StatusOK, ListNodesResponse{
		Nodes: nodes,
		Total: len(nodes),
	})
}

// HandleGetNode handles GET /nodes/{id}.
func (s *APIServer) HandleGetNode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}

// HandleCreateNode handles POST /nodes.
func (s *APIServer) HandleCreateNode(c *gin.Context) {
	var req Node
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", err.Error()))
		return
	}

	n, err := s.store.Create(c.Request.Context(), &req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, n)
}

// HandleUpdateNode handles PUT /nodes/{id}. The body is the complete node.
func (s *APIServer) HandleUpdateNode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req Node
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", err.Error()))
		return
	}
	req.ID = id

	if err := s.store.Update(c.Request.Context(), &req); err != nil {
		s.handleError(c, err)
		return
	}

	n, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}

// HandleDeleteNode handles DELETE /nodes/{id}?purge_history=true.
func (s *APIServer) HandleDeleteNode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	purge := c.Query("purge_history") == "true"
	if err := s.delete(c.Request.Context(), id, purge); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("bad_request", "Invalid node ID"))
		return uuid.UUID{}, false
	}
	return id, true
}
