package content

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Test helper: create a test router
func setupTestRouter(t *testing.T) (*gin.Engine, *Store) {
	store := createTestStore(t)
	router := gin.New()
	NewAPIServer(store).Register(router.Group("/api/v1"))
	return router, store
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

// TestHandleList verifies listing by kind
func TestHandleList(t *testing.T) {
	router, store := setupTestRouter(t)
	_, _, err := store.Upsert("article", "http://x/a", map[string]any{"title": "A"})
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/api/v1/content/article")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "A", resp.Entries[0].Fields["title"])

	w = serve(router, http.MethodGet, "/api/v1/content/BAD")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleGetAndDelete verifies single entry access
func TestHandleGetAndDelete(t *testing.T) {
	router, store := setupTestRouter(t)
	entry, _, err := store.Upsert("photo", "http://x/p", nil)
	require.NoError(t, err)

	path := fmt.Sprintf("/api/v1/content/photo/%s", entry.ID)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, path).Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, path).Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, path).Code)

	w := serve(router, http.MethodGet, fmt.Sprintf("/api/v1/content/photo/%s", uuid.New()))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/api/v1/content/photo/xyz").Code)
}
