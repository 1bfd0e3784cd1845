package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/weft/pkg/state"
)

// ChangeEvent is the SSE payload for one state change.
type ChangeEvent struct {
	Name    string `json:"name"`
	Value   any    `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

func changeEvent(c state.Change) ChangeEvent {
	return ChangeEvent{Name: c.Name, Value: c.New, Deleted: c.Deleted}
}

type subscriber struct {
	ch    chan string
	watch map[string]bool
}

// StreamManager fans state changes out to SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a connection. An empty watch list receives every variable.
func (sm *StreamManager) Subscribe(watch []string) (<-chan string, func()) {
	sub := &subscriber{ch: make(chan string, 10)}
	if len(watch) > 0 {
		sub.watch = make(map[string]bool, len(watch))
		for _, name := range watch {
			if name = strings.TrimSpace(name); name != "" {
				sub.watch[name] = true
			}
		}
	}

	sm.mu.Lock()
	sm.subscribers[sub] = struct{}{}
	sm.mu.Unlock()

	return sub.ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[sub]; ok {
			delete(sm.subscribers, sub)
			close(sub.ch)
		}
	}
}

// Broadcast sends msg to every subscriber watching name. Slow clients lose messages.
func (sm *StreamManager) Broadcast(name, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for sub := range sm.subscribers {
		if sub.watch != nil && !sub.watch[name] {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			slog.Warn("SSE: client buffer full, dropping message", "key", name)
		}
	}
}

// Len returns the number of open subscriptions.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// SubscribeEvents handles GET /events (SSE). ?watch=a,b limits the stream to those variables.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var watch []string
	if q := r.URL.Query().Get("watch"); q != "" {
		watch = strings.Split(q, ",")
	}
	ch, cancel := s.Streams.Subscribe(watch)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
