// Package status serves the operator HTTP endpoint: a liveness probe and a
// JSON snapshot of what the assistant is doing.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aria/pkg/config"
	"aria/pkg/engine"
	"aria/pkg/skill"
)

const defaultHost = "127.0.0.1"
const defaultPort = 8765

type skillInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type statusResponse struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Running       bool        `json:"running"`
	Skills        []skillInfo `json:"skills"`
}

// Server exposes /healthz and /status over plain HTTP.
type Server struct {
	cfg       config.StatusConfig
	engine    *engine.Engine
	registry  *skill.Registry
	log       *slog.Logger
	startedAt time.Time
}

// NewServer builds the status server around a running engine.
func NewServer(cfg config.StatusConfig, e *engine.Engine, registry *skill.Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:       cfg,
		engine:    e,
		registry:  registry,
		log:       log.With("component", "status"),
		startedAt: time.Now(),
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start status server: %w", err)
	}

	return nil
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		s.log.Error("Failed to write health response", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	running := s.engine.Running()
	payload := statusResponse{
		Status:        "stopped",
		Version:       engine.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Running:       running,
		Skills:        s.skillList(),
	}
	if running {
		payload.Status = "running"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Server) skillList() []skillInfo {
	loaded := s.registry.Skills()
	skills := make([]skillInfo, 0, len(loaded))
	for _, instance := range loaded {
		skills = append(skills, skillInfo{
			Name:        instance.Name(),
			Description: instance.Description(),
			Version:     instance.Version(),
		})
	}

	return skills
}
