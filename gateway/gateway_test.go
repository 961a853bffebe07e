package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pevans/collect/content"
	"github.com/pevans/collect/mapping"
	"github.com/pevans/collect/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(url string, fields map[string]any) mapping.Record {
	return mapping.Record{Kind: node.KindArticle, SourceURL: url, Fields: fields}
}

// TestContentGateway_Upsert verifies created then updated results
func TestContentGateway_Upsert(t *testing.T) {
	store, err := content.NewStore(t.TempDir())
	require.NoError(t, err)
	gw := NewContentGateway(store, nil)
	ctx := context.Background()

	res, err := gw.Import(ctx, node.KindArticle, record("http://x/a", map[string]any{"title": "A"}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "created"))

	res, err = gw.Import(ctx, node.KindArticle, record("http://x/a", map[string]any{"title": "A2"}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "updated"))

	entry, err := store.GetByURL("article", "http://x/a")
	require.NoError(t, err)
	assert.Equal(t, "A2", entry.Fields["title"])
}

// TestContentGateway_MissingRequired verifies rejection is not an error
func TestContentGateway_MissingRequired(t *testing.T) {
	store, err := content.NewStore(t.TempDir())
	require.NoError(t, err)
	gw := NewContentGateway(store, nil)

	res, err := gw.Import(context.Background(), node.KindArticle, record("http://x/a", map[string]any{"title": "  "}))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "title")

	_, err = store.GetByURL("article", "http://x/a")
	assert.ErrorIs(t, err, content.ErrEntryNotFound)
}

// TestHTTPGateway verifies the request and decoded result
func TestHTTPGateway(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody mapping.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"stored 17"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "secret", time.Second)
	res, err := gw.Import(context.Background(), node.KindPhoto, record("http://x/p", map[string]any{"title": "P"}))
	require.NoError(t, err)

	assert.Equal(t, Result{Success: true, Message: "stored 17"}, res)
	assert.Equal(t, "/import/photo", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "http://x/p", gotBody.SourceURL)
}

// TestHTTPGateway_Rejected verifies non-2xx responses become failed results
func TestHTTPGateway_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate slug", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", time.Second)
	res, err := gw.Import(context.Background(), node.KindArticle, record("http://x/a", nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "422")
	assert.Contains(t, res.Message, "duplicate slug")
}

// TestHTTPGateway_Unreachable verifies transport failures are errors
func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	gw := NewHTTPGateway(base, "", time.Second)
	_, err := gw.Import(context.Background(), node.KindArticle, record("http://x/a", nil))
	assert.Error(t, err)
}
