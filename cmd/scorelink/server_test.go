package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"scorelink/internal/database"
	"scorelink/internal/metrics"
	"scorelink/internal/models"
	"scorelink/internal/service"
	"scorelink/internal/transport"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMesh struct {
	nodes []transport.Node
}

func (f *fakeMesh) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (f *fakeMesh) NodeID() string { return "node-a" }

func (f *fakeMesh) ConnectedNodes(ctx context.Context) ([]transport.Node, error) {
	return f.nodes, nil
}

type noopWaker struct{ wakes int }

func (w *noopWaker) Wake() { w.wakes++ }

type failingDB struct{}

func (failingDB) Ping(ctx context.Context) error { return assert.AnError }

type testServer struct {
	server  *Server
	db      *database.Database
	matches *database.MatchStore
	waker   *noopWaker
}

func newTestServer(t *testing.T, role models.Role) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	db, err := database.New(filepath.Join(t.TempDir(), "scorelink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &models.Config{Node: models.NodeConfig{ID: "node-a", Role: role}}
	ts := &testServer{db: db, waker: &noopWaker{}}

	var sender resultSender
	if cfg.RunsSender() {
		clk := clock.New()
		sender = service.NewSender(database.NewPendingStore(db), ts.waker, service.NewStatusBoard(clk), clk, nil, logger)
	}
	var matches matchStore
	if cfg.RunsPeer() {
		ts.matches = database.NewMatchStore(db)
		matches = ts.matches
	}

	mesh := &fakeMesh{nodes: []transport.Node{{ID: "node-b"}}}
	ts.server = NewServer(cfg, logger, metrics.New(), db, mesh, sender, matches, false)
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func TestServer_HandleHealth(t *testing.T) {
	ts := newTestServer(t, models.RoleBoth)

	w := ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "node-a", resp.NodeID)
	assert.Equal(t, []string{"node-b"}, resp.ConnectedNodes)
}

func TestServer_HealthDegradedWithoutDatabase(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	cfg := &models.Config{Node: models.NodeConfig{ID: "node-a", Role: models.RolePeer}}
	server := NewServer(cfg, logger, metrics.New(), failingDB{}, &fakeMesh{}, nil, nil, false)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, models.RoleBoth)
	ts.do(http.MethodGet, "/health", "")

	w := ts.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scorelink_http_requests_total")
}

func TestServer_FinishMatchFlow(t *testing.T) {
	ts := newTestServer(t, models.RoleSender)

	w := ts.do(http.MethodGet, "/api/pending", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodPost, "/api/results", `{"durationSeconds":3600,"finalScoreText":"2-0","setScoresText":"6-4 6-2"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var created pendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.IdempotencyKey)
	require.NotNil(t, created.Result)
	assert.Equal(t, "2-0", created.Result.FinalScoreText)
	assert.Equal(t, 1, ts.waker.wakes)

	w = ts.do(http.MethodGet, "/api/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	var pending pendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, created.IdempotencyKey, pending.IdempotencyKey)

	w = ts.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.StatusTextSaved)

	w = ts.do(http.MethodDelete, "/api/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"discarded":true}`, w.Body.String())

	w = ts.do(http.MethodGet, "/api/pending", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServer_FinishMatchRejectsInvalid(t *testing.T) {
	ts := newTestServer(t, models.RoleSender)

	tests := []struct {
		name string
		body string
	}{
		{"blank score", `{"finalScoreText":"  "}`},
		{"negative duration", `{"finalScoreText":"1-0","durationSeconds":-1}`},
		{"not json", `nope`},
		{"unknown field", `{"finalScoreText":"1-0","idempotencyKey":"mine"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/results", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := ts.do(http.MethodGet, "/api/pending", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServer_MatchEndpoints(t *testing.T) {
	ts := newTestServer(t, models.RolePeer)
	ctx := context.Background()

	id, inserted, err := ts.matches.InsertIfNotExists(ctx, models.MatchResult{
		CreatedAt:       1718000000000,
		DurationSeconds: 60,
		FinalScoreText:  "1-0",
		IdempotencyKey:  "k1",
	})
	require.NoError(t, err)
	require.True(t, inserted)

	w := ts.do(http.MethodGet, "/api/matches", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.MatchRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "k1", list[0].IdempotencyKey)

	w = ts.do(http.MethodGet, "/api/matches/"+itoa(id), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/matches/9999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPut, "/api/matches/"+itoa(id)+"/photo", `{"photoUri":"content://media/42"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec models.MatchRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.NotNil(t, rec.PhotoURI)
	assert.Equal(t, "content://media/42", *rec.PhotoURI)

	w = ts.do(http.MethodPut, "/api/matches/"+itoa(id)+"/photo", `{"photoUri":"relative.jpg"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPut, "/api/matches/9999/photo", `{"photoUri":"content://media/42"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/matches?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/matches?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_MatchesByKey(t *testing.T) {
	ts := newTestServer(t, models.RolePeer)

	_, _, err := ts.matches.InsertIfNotExists(context.Background(), models.MatchResult{
		CreatedAt:       1718000000000,
		DurationSeconds: 60,
		FinalScoreText:  "1-0",
		IdempotencyKey:  "k1",
	})
	require.NoError(t, err)

	w := ts.do(http.MethodGet, "/api/matches?key=k1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var found []models.MatchRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "k1", found[0].IdempotencyKey)

	w = ts.do(http.MethodGet, "/api/matches?key=missing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(http.MethodGet, "/api/matches?key=%01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_RoutesFollowRole(t *testing.T) {
	sender := newTestServer(t, models.RoleSender)
	assert.Equal(t, http.StatusNotFound, sender.do(http.MethodGet, "/api/matches", "").Code)

	peer := newTestServer(t, models.RolePeer)
	assert.Equal(t, http.StatusNotFound, peer.do(http.MethodGet, "/api/status", "").Code)
}

func TestServer_ErrorBodyCarriesRequestID(t *testing.T) {
	ts := newTestServer(t, models.RolePeer)

	req := httptest.NewRequest(http.MethodGet, "/api/matches/9999", bytes.NewReader(nil))
	req.Header.Set("X-Request-ID", "req-test")
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-test", body["request_id"])
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
