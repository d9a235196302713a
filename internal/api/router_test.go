package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/councilgen/internal/catalog"
	"github.com/timmy/councilgen/internal/config"
	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/repository"
	"github.com/timmy/councilgen/internal/service"
)

const pagesYAML = `
content_type: page
items:
  - id: home
    title_template: "Welcome to {{council_name}}"
    prompt: "Write a homepage for {{council_name}}"
    images:
      - type: hero
        prompt: "{{council_name}} town hall"
  - id: about
    title_template: "About {{council_name}}"
    prompt: "Describe {{council_name}}"
    dependencies: [home]
`

type testServer struct {
	router  http.Handler
	content *repository.ContentRepository
	state   *service.StateManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite_pure",
		Path:        filepath.Join(t.TempDir(), "api.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	loader := catalog.NewLoader(fstest.MapFS{"pages.yaml": {Data: []byte(pagesYAML)}}, []string{"pages"})
	contentRepo := repository.NewContentRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	stateRepo := repository.NewStateRepository(db)

	state := service.NewStateManager(stateRepo)
	collector := service.NewCollector(stateRepo)
	orchestrator := service.NewOrchestrator(loader, nil, contentRepo, collector, state, stateRepo, nil)
	batch := service.NewBatchProcessor(nil, nil, contentRepo, collector, state, &service.BatchConfig{})
	pipeline := service.NewPipeline(loader, state, service.NewIdentityGenerator(nil, nil), orchestrator, batch, collector)

	router := SetupRouter(Dependencies{
		DB:       db,
		Pipeline: pipeline,
		Content:  contentRepo,
		Media:    mediaRepo,
	}, &config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowAllOrigins: true}})

	return &testServer{router: router, content: contentRepo, state: state}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Origin", "http://dashboard.test")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGenerationStatusAndPlan(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/v1/generation/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ready to generate", body["progress"])
	assert.Equal(t, false, body["running"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/generation/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plan, ok := body["plan"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2.0, plan["content_count"])
	assert.Equal(t, 1.0, plan["image_count"])
	assert.Equal(t, 1.0, plan["estimated_unique_images"])
	assert.InDelta(t, 0.024, body["total_cost_min"], 1e-9)
}

func TestGenerationPauseAndCancel(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.state.Transition(ctx, domain.StatusGeneratingContent, 2)
	require.NoError(t, err)

	rec, body := s.do(t, http.MethodPost, "/api/v1/generation/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := body["state"].(map[string]interface{})
	assert.Equal(t, string(domain.StatusPaused), state["status"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/generation/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	current, err := s.state.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, current.Status)
}

func TestGenerationStartRejectsBadBody(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodPost, "/api/v1/generation/start", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestContentEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id, err := s.content.Create(ctx, domain.ContentDraft{
		SpecID: "home",
		Kind:   domain.ContentKindPage,
		Title:  "Welcome",
		Body:   "<p>Hello</p>",
	})
	require.NoError(t, err)
	require.NoError(t, s.content.AttachMedia(ctx, id, "field_hero", "media-1"))

	rec, body := s.do(t, http.MethodGet, "/api/v1/content?limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["total"])
	assert.Equal(t, 20.0, body["limit"])
	assert.Len(t, body["results"], 1)

	rec, body = s.do(t, http.MethodGet, "/api/v1/content/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome", body["title"])
	assert.Equal(t, map[string]interface{}{"field_hero": "media-1"}, body["media"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/content/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/media/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResponsesAreCompressed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/generation/plan", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}
