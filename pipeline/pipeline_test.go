package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pevans/collect/category"
	"github.com/pevans/collect/database"
	"github.com/pevans/collect/extract"
	"github.com/pevans/collect/fetch"
	"github.com/pevans/collect/gateway"
	"github.com/pevans/collect/history"
	"github.com/pevans/collect/lock"
	"github.com/pevans/collect/mapping"
	"github.com/pevans/collect/metrics"
	"github.com/pevans/collect/node"
	"github.com/pevans/collect/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// site serves listing pages and detail pages for tests
type site struct {
	mu       sync.Mutex
	listings map[string]string // page number -> HTML
	details  map[string]string // path -> HTML
	failing  map[string]bool   // path or "list:<p>" -> respond 500
}

func newSite() *site {
	return &site{
		listings: map[string]string{},
		details:  map[string]string{},
		failing:  map[string]bool{},
	}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.URL.Path == "/list" {
		p := r.URL.Query().Get("p")
		if s.failing["list:"+p] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		body, ok := s.listings[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
		return
	}

	if s.failing[r.URL.Path] {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	body, ok := s.details[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

// listing builds a listing page linking to the given paths
func listing(paths ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, p := range paths {
		fmt.Fprintf(&b, `<li><a class="item" href="%s">Title <b>%s</b></a></li>`, p, strings.TrimPrefix(p, "/"))
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

// detail builds a detail page
func detail(title, category string) string {
	return fmt.Sprintf(`<html><body>
		<h1> %s </h1>
		<div class="body"><p>Some <strong>body</strong> text</p></div>
		<span class="cat">%s</span>
	</body></html>`, title, category)
}

type gatewayCall struct {
	Kind node.TargetKind
	URL  string
}

// recordingGateway records every import call and accepts everything except
// the URLs in reject
type recordingGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	records []mapping.Record
	reject  map[string]string
}

func (g *recordingGateway) Import(_ context.Context, kind node.TargetKind, rec mapping.Record) (gateway.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, gatewayCall{Kind: kind, URL: rec.SourceURL})
	g.records = append(g.records, rec)
	if msg, ok := g.reject[rec.SourceURL]; ok {
		return gateway.Result{Message: msg}, nil
	}
	return gateway.Result{Success: true, Message: "stored"}, nil
}

type testEnv struct {
	site       *site
	srv        *httptest.Server
	nodes      *node.Store
	history    *history.Store
	staging    *staging.Store
	categories *category.Store
	gateway    *recordingGateway
	metrics    *metrics.Metrics
	pipeline   *Pipeline
	controller *Controller
}

// Test helper: create stores, a test site and a pipeline over them
func newTestEnv(t *testing.T, opts Options) *testEnv {
	db, err := database.Open(database.DriverCGO, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		site:    newSite(),
		gateway: &recordingGateway{reject: map[string]string{}},
		metrics: metrics.New(),
	}
	env.srv = httptest.NewServer(env.site)
	t.Cleanup(env.srv.Close)

	env.nodes, err = node.NewStore(db)
	require.NoError(t, err)
	env.history, err = history.NewStore(db)
	require.NoError(t, err)
	env.staging, err = staging.NewStore(db)
	require.NoError(t, err)
	env.categories, err = category.NewStore(db, 0)
	require.NoError(t, err)

	env.pipeline = New(Deps{
		Nodes:   env.nodes,
		History: env.history,
		Staging: env.staging,
		Fetcher: fetch.NewHTTPFetcher(fetch.Options{}, nil),
		Mapper:  mapping.New(nil, env.categories),
		Gateway: env.gateway,
		Metrics: env.metrics,
		Logger:  zaptest.NewLogger(t),
	}, opts)
	env.controller = NewController(env.pipeline)

	return env
}

// Test helper: create a two-page node against the test site
func (env *testEnv) createNode(t *testing.T, mutate func(n *node.Node)) *node.Node {
	n := &node.Node{
		Name:       "test-" + uuid.NewString()[:8],
		TargetKind: node.KindArticle,
		SourceMode: node.ModePaged,
		ListURL:    env.srv.URL + "/list?p={page}",
		PageStart:  1,
		PageEnd:    2,
		URLRule:    extract.Rule{Type: extract.RuleCSS, Pattern: "a.item", Attr: "href"},
		TitleRule:  extract.Rule{Type: extract.RuleCSS, Pattern: "a.item"},
		FieldRules: []node.FieldRule{
			{Name: node.FieldTitle, Rule: extract.Rule{Type: extract.RuleCSS, Pattern: "h1"}},
			{
				Name:     node.FieldBody,
				Rule:     extract.Rule{Type: extract.RuleCSS, Pattern: "div.body"},
				HTMLRule: &extract.Rule{Type: extract.RuleCSS, Pattern: "div.body", Attr: extract.AttrHTML},
			},
			{Name: node.FieldCategory, Rule: extract.Rule{Type: extract.RuleCSS, Pattern: "span.cat"}},
		},
		Mappings: []node.FieldMapping{
			{Target: "title", Source: node.FieldTitle, Transform: "trim"},
			{Target: "content", Source: node.FieldBody, Transform: "markdown"},
			{Target: "catid", Source: node.FieldCategory},
		},
	}
	if mutate != nil {
		mutate(n)
	}

	created, err := env.nodes.Create(context.Background(), n)
	require.NoError(t, err)
	return created
}

// Test helper: build a stage context for a node
func (env *testEnv) context(t *testing.T, id uuid.UUID, progress *strings.Builder) Context {
	var pc Context
	var err error
	if progress != nil {
		pc, err = env.pipeline.NewContext(context.Background(), id, progress)
	} else {
		pc, err = env.pipeline.NewContext(context.Background(), id, nil)
	}
	require.NoError(t, err)
	return pc
}

// Test helper: staged URLs of a node in ID order
func (env *testEnv) stagedURLs(t *testing.T, id uuid.UUID, status staging.Status) []string {
	items, err := env.staging.List(context.Background(), staging.Filter{NodeID: &id, Status: &status})
	require.NoError(t, err)

	urls := make([]string, len(items))
	for i, item := range items {
		// List is newest first
		urls[len(items)-1-i] = strings.TrimPrefix(item.URL, env.srv.URL)
	}
	return urls
}

// Test helper: publish the two-page listing and detail pages a, b, c
func (env *testEnv) publishABC() {
	env.site.listings["1"] = listing("/a", "/b")
	env.site.listings["2"] = listing("/b", "/c")
	env.site.details["/a"] = detail("Alpha", "Action")
	env.site.details["/b"] = detail("Beta", "7")
	env.site.details["/c"] = detail("Gamma", "News")
}

// TestNewContext_NodeSnapshot verifies the context copies the node
func TestNewContext_NodeSnapshot(t *testing.T) {
	env := newTestEnv(t, Options{})
	n := env.createNode(t, nil)

	pc := env.context(t, n.ID, nil)
	assert.Equal(t, n.ID, pc.Node.ID)
	assert.False(t, pc.Now.IsZero())

	_, err := env.pipeline.NewContext(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, node.ErrNodeNotFound)
}

// TestOptions_Defaults verifies unset options get defaults
func TestOptions_Defaults(t *testing.T) {
	env := newTestEnv(t, Options{})
	opts := env.pipeline.Options()
	assert.Equal(t, DefaultExtractBatch, opts.ExtractBatch)
	assert.Equal(t, DefaultImportBatch, opts.ImportBatch)
	assert.Equal(t, CategoryOmit, opts.CategoryPolicy)
}

// TestDeleteNode_Cascades verifies staged items go with the node
func TestDeleteNode_Cascades(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.publishABC()
	ctx := context.Background()

	n := env.createNode(t, nil)
	_, err := env.controller.RunToCompletion(ctx, Start(StageDiscover, n.ID, 0, false), nil)
	require.NoError(t, err)

	require.NoError(t, env.pipeline.DeleteNode(ctx, n.ID, false))

	_, err = env.nodes.Get(ctx, n.ID)
	assert.ErrorIs(t, err, node.ErrNodeNotFound)
	assert.Empty(t, env.stagedURLs(t, n.ID, staging.StatusDiscovered))

	count, err := env.history.Count(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "history is kept without purge")

	assert.ErrorIs(t, env.pipeline.DeleteNode(ctx, n.ID, false), node.ErrNodeNotFound)
}

// TestDeleteNode_PurgeHistory verifies purged URLs can be rediscovered
func TestDeleteNode_PurgeHistory(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.publishABC()
	ctx := context.Background()

	n := env.createNode(t, nil)
	_, err := env.controller.RunToCompletion(ctx, Start(StageDiscover, n.ID, 0, false), nil)
	require.NoError(t, err)
	require.NoError(t, env.pipeline.DeleteNode(ctx, n.ID, true))

	again := env.createNode(t, nil)
	tok, err := env.controller.RunToCompletion(ctx, Start(StageDiscover, again.ID, 0, false), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tok.Totals.New)
}

// TestPurgeItem verifies a purged item is staged again by discovery
func TestPurgeItem(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.publishABC()
	ctx := context.Background()

	n := env.createNode(t, nil)
	_, err := env.controller.RunToCompletion(ctx, Start(StageDiscover, n.ID, 0, false), nil)
	require.NoError(t, err)

	items, err := env.staging.NextDiscovered(ctx, n.ID, 1)
	require.NoError(t, err)
	purged, err := env.pipeline.PurgeItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, env.srv.URL+"/a", purged.URL)

	tok, err := env.controller.RunToCompletion(ctx, Start(StageDiscover, n.ID, 0, false), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tok.Totals.New)
	assert.Equal(t, 3, tok.Totals.Duplicates)
}

// TestPurgeItem_NodeBusy verifies an item is not purged while its node is
// locked by another run
func TestPurgeItem_NodeBusy(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.publishABC()
	ctx := context.Background()

	n := env.createNode(t, nil)
	_, err := env.controller.RunToCompletion(ctx, Start(StageDiscover, n.ID, 0, false), nil)
	require.NoError(t, err)
	items, err := env.staging.NextDiscovered(ctx, n.ID, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	locker := lock.NewLocal()
	p := New(Deps{
		Nodes:   env.nodes,
		History: env.history,
		Staging: env.staging,
		Fetcher: env.pipeline.fetcher,
		Gateway: env.gateway,
		Locker:  locker,
	}, Options{})

	release, err := locker.TryLock(ctx, "node:"+n.ID.String())
	require.NoError(t, err)

	_, err = p.PurgeItem(ctx, items[0].ID)
	assert.ErrorIs(t, err, ErrNodeBusy)
	_, err = env.staging.Get(ctx, items[0].ID)
	require.NoError(t, err, "item should still be staged")

	require.NoError(t, release(ctx))
	purged, err := p.PurgeItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, items[0].ID, purged.ID)

	_, err = env.staging.Get(ctx, items[0].ID)
	assert.ErrorIs(t, err, staging.ErrItemNotFound)
}
