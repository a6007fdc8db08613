// Package mcp exposes read access to tasks over the Model Context Protocol
// so agents can inspect task details, timelines and attachments.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/TrackForge/internal/domain/attachment"
	"github.com/Strob0t/TrackForge/internal/domain/task"
	"github.com/Strob0t/TrackForge/internal/domain/timeline"
)

// TaskReader reads resolved tasks and their timelines.
type TaskReader interface {
	Get(ctx context.Context, tenantID, taskID string) (*task.Detail, error)
	Timeline(ctx context.Context, tenantID, taskID string) ([]timeline.Item, error)
}

// AttachmentLister lists the grouped attachments of a task.
type AttachmentLister interface {
	List(ctx context.Context, tenantID, taskID string) ([]attachment.Group, error)
}

// ServerDeps are the read paths the tools call. Nil deps make the
// corresponding tools report an error.
type ServerDeps struct {
	Tasks       TaskReader
	Attachments AttachmentLister
}

// ServerConfig configures the MCP endpoint. APIKey returns the current
// bearer token; nil or an empty value disables authentication.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  func() string
}

// Server serves the MCP tools over streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	http      *http.Server
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the authenticated streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return RequireKey(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
