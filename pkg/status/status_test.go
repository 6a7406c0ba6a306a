package status

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"aria/pkg/bus"
	"aria/pkg/config"
	"aria/pkg/engine"
	"aria/pkg/skill"
	"aria/pkg/skills/greeting"
)

func newTestServer(t *testing.T, start bool) *Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(log)
	registry := skill.NewRegistry(b, log)
	require.True(t, registry.Load("greeting", greeting.New, config.SkillConfig{}))

	e := engine.New(b, registry, config.AssistantConfig{}, log)
	if start {
		e.Start()
	}
	t.Cleanup(b.Close)
	t.Cleanup(e.Stop)

	return NewServer(config.StatusConfig{}, e, registry, log)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, false)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestStatusRunning(t *testing.T) {
	server := newTestServer(t, true)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "running", body.Status)
	require.True(t, body.Running)
	require.Equal(t, engine.Version, body.Version)
	require.Len(t, body.Skills, 1)
	require.Equal(t, "greeting", body.Skills[0].Name)
}

func TestStatusStopped(t *testing.T) {
	server := newTestServer(t, false)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "stopped", body.Status)
	require.False(t, body.Running)
}
