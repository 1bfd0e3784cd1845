package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
	"github.com/aretw0/weft/pkg/state"
)

// Engine is the surface the devtools server drives.
type Engine interface {
	weft.Tooling
	SendPluginEvent(ctx context.Context, name, event string, payload any) error
	NotifyPlugins(ctx context.Context, event string, payload any) int
	ClearCache()
	SubscribeState(fn state.Observer) (unsubscribe func())
	Document() *markup.Document
}

// Server serves the devtools API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics serves h on /metrics instead of the default prometheus registry.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the devtools HTTP handler for engine. State changes are
// forwarded to /events subscribers until ctx is done.
func NewHandler(ctx context.Context, engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		metrics: promhttp.Handler(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	unsubscribe := engine.SubscribeState(func(_ context.Context, c state.Change) {
		if b, err := json.Marshal(changeEvent(c)); err == nil {
			s.Streams.Broadcast(c.Name, string(b))
		}
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/state", s.GetState)
	r.Put("/state/{name}", s.PutVariable)
	r.Get("/controls", s.GetControls)
	r.Get("/handlers", s.GetHandlers)
	r.Post("/handlers/{name}/execute", s.ExecuteHandler)
	r.Get("/plugins", s.GetPlugins)
	r.Post("/plugins/{name}/events/{event}", s.SendEvent)
	r.Get("/cache/stats", s.GetCacheStats)
	r.Delete("/cache", s.ClearCache)
	r.Get("/bindings", s.GetBindings)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/graph", s.GetGraph)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "weft-devtools",
		"version": strings.TrimSpace(weft.Version),
	})
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.StateSnapshot())
}

type variableRequest struct {
	Value any `json:"value"`
}

// PutVariable handles PUT /state/{name}. The body is {"value": ...}.
func (s *Server) PutVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body variableRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PutVariable: invalid request body", "key", name, "err", err)
		return
	}
	s.Engine.SetVariable(r.Context(), name, convert.Normalize(body.Value))
	w.WriteHeader(http.StatusNoContent)
}

// GetControls handles GET /controls.
func (s *Server) GetControls(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.Engine.ControlIDs()))
}

// GetHandlers handles GET /handlers.
func (s *Server) GetHandlers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.Engine.HandlerNames()))
}

// ExecuteHandler handles POST /handlers/{name}/execute.
func (s *Server) ExecuteHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.Engine.ExecuteHandlerByName(r.Context(), name) {
		http.Error(w, fmt.Sprintf("%v: %s", domain.ErrHandlerNotFound, name), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"handler": name, "executed": true})
}

// GetPlugins handles GET /plugins.
func (s *Server) GetPlugins(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.PluginList())
}

// SendEvent handles POST /plugins/{name}/events/{event}. The name "*" fans the
// event out to every plugin. An optional JSON body is the payload.
func (s *Server) SendEvent(w http.ResponseWriter, r *http.Request) {
	name, event := chi.URLParam(r, "name"), chi.URLParam(r, "event")

	var payload any
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		payload = convert.Normalize(payload)
	}

	if name == "*" {
		failures := s.Engine.NotifyPlugins(r.Context(), event, payload)
		s.writeJSON(w, http.StatusOK, map[string]any{"event": event, "failures": failures})
		return
	}
	err := s.Engine.SendPluginEvent(r.Context(), name, event, payload)
	switch {
	case errors.Is(err, domain.ErrPluginNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		s.logger.Error("SendEvent failed", "plugin", name, "event", event, "err", err)
		http.Error(w, fmt.Sprintf("Plugin error: %v", err), http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{"event": event, "failures": 0})
	}
}

// GetCacheStats handles GET /cache/stats.
func (s *Server) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.CacheStats())
}

// ClearCache handles DELETE /cache.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	s.Engine.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// GetBindings handles GET /bindings.
func (s *Server) GetBindings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.Engine.BindingList()))
}

// GetGraph handles GET /graph. It returns a Mermaid flowchart of the document
// with current values; ?highlight=a,b marks handlers.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	doc := s.Engine.Document()
	if doc == nil {
		http.Error(w, "no document loaded", http.StatusNotFound)
		return
	}
	overlay := &graph.Overlay{State: s.Engine.StateSnapshot()}
	if h := r.URL.Query().Get("highlight"); h != "" {
		overlay.Active = strings.Split(h, ",")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, graph.GenerateMermaid(doc, overlay))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
