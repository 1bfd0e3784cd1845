package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
)

// StateURI is the resource exposing the state snapshot.
const StateURI = "weft://state"

// ExecuteResponse is the structured result of execute_handler.
type ExecuteResponse struct {
	Handler  string         `json:"handler" jsonschema_description:"The handler that was requested"`
	Executed bool           `json:"executed" jsonschema_description:"False when no handler has that name"`
	State    map[string]any `json:"state" jsonschema_description:"State after the execution"`
}

// StateResponse wraps a state snapshot.
type StateResponse struct {
	State map[string]any `json:"state" jsonschema_description:"Every state variable"`
}

// ListResponse wraps a list of names.
type ListResponse struct {
	Items []string `json:"items" jsonschema_description:"Names, sorted"`
}

// BindingsResponse wraps the binding table.
type BindingsResponse struct {
	Bindings []domain.Binding `json:"bindings" jsonschema_description:"Every binding, grouped by state key"`
}

type executeArgs struct {
	Name string `json:"name"`
}

type setVariableArgs struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Server exposes the engine tooling surface as an MCP server.
type Server struct {
	engine    weft.Tooling
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates an MCP server for engine.
func NewServer(engine weft.Tooling, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("weft-mcp", strings.TrimSpace(weft.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Return every state variable."),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("set_variable",
		mcp.WithDescription("Set a state variable. Bound controls update."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Variable name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON value; text that is not valid JSON is stored as a string")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetVariable))

	s.mcpServer.AddTool(mcp.NewTool("execute_handler",
		mcp.WithDescription("Run a handler by name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Handler name")),
		mcp.WithOutputSchema[ExecuteResponse](),
	), mcp.NewStructuredToolHandler(s.handleExecute))

	s.mcpServer.AddTool(mcp.NewTool("list_handlers",
		mcp.WithDescription("List the handler names."),
		mcp.WithOutputSchema[ListResponse](),
	), mcp.NewStructuredToolHandler(s.handleListHandlers))

	s.mcpServer.AddTool(mcp.NewTool("list_bindings",
		mcp.WithDescription("List the bindings from state variables to control properties."),
		mcp.WithOutputSchema[BindingsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListBindings))

	s.mcpServer.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Report cache size, capacity and hits."),
		mcp.WithOutputSchema[cache.Stats](),
	), mcp.NewStructuredToolHandler(s.handleCacheStats))
}

func (s *Server) handleGetState(_ context.Context, _ mcp.CallToolRequest, _ map[string]any) (StateResponse, error) {
	return StateResponse{State: s.engine.StateSnapshot()}, nil
}

func (s *Server) handleSetVariable(ctx context.Context, _ mcp.CallToolRequest, args setVariableArgs) (StateResponse, error) {
	if strings.TrimSpace(args.Name) == "" {
		return StateResponse{}, fmt.Errorf("name is required")
	}
	s.engine.SetVariable(ctx, args.Name, convert.ParseJSON(args.Value))
	return StateResponse{State: s.engine.StateSnapshot()}, nil
}

func (s *Server) handleExecute(ctx context.Context, _ mcp.CallToolRequest, args executeArgs) (ExecuteResponse, error) {
	ok := s.engine.ExecuteHandlerByName(ctx, args.Name)
	if !ok {
		s.logger.Warn("MCP execute: handler not found", "handler", args.Name)
	}
	return ExecuteResponse{Handler: args.Name, Executed: ok, State: s.engine.StateSnapshot()}, nil
}

func (s *Server) handleListHandlers(_ context.Context, _ mcp.CallToolRequest, _ map[string]any) (ListResponse, error) {
	items := s.engine.HandlerNames()
	if items == nil {
		items = []string{}
	}
	return ListResponse{Items: items}, nil
}

func (s *Server) handleListBindings(_ context.Context, _ mcp.CallToolRequest, _ map[string]any) (BindingsResponse, error) {
	b := s.engine.BindingList()
	if b == nil {
		b = []domain.Binding{}
	}
	return BindingsResponse{Bindings: b}, nil
}

func (s *Server) handleCacheStats(_ context.Context, _ mcp.CallToolRequest, _ map[string]any) (cache.Stats, error) {
	return s.engine.CacheStats(), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StateURI, "Current State",
		mcp.WithMIMEType("application/json"),
	), s.readState)
}

func (s *Server) readState(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(s.engine.StateSnapshot())
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StateURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
