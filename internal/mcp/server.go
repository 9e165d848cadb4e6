// Package mcp exposes the running compfx daemon to MCP clients as a set of
// read-mostly inspection tools.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/compfx/internal/effects"
	"github.com/1broseidon/compfx/internal/ipc"
	"github.com/1broseidon/compfx/internal/timerpool"
)

const (
	ServerName    = "compfx"
	ServerVersion = "0.1.0"
)

// DaemonClient is the daemon's IPC surface. *ipc.Client implements it.
type DaemonClient interface {
	GetStatus() (*ipc.StatusData, error)
	ListTimelines() ([]effects.TimelineInfo, error)
	ListTimers() ([]timerpool.EntryInfo, error)
	Reload() error
}

var _ DaemonClient = (*ipc.Client)(nil)

// Server is the MCP server for compfx inspection.
type Server struct {
	mcpServer *mcpsdk.Server
	client    DaemonClient
	logger    *slog.Logger
}

// NewServer creates a new MCP server that answers through client.
func NewServer(client DaemonClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		client: client,
		logger: logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scheduler_status",
		Description: "Report the compfx daemon's frame scheduler: uptime, default frame rate, active effects and timer pool counters (entries, ready entries, dispatches, resyncs).",
	}, s.handleSchedulerStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_timelines",
		Description: "List the animation timelines effects are currently running, one per animated window, with direction, state and frame position. Optionally filter by window or effect.",
	}, s.handleListTimelines)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_timers",
		Description: "List the timer pool entries in dispatch order with their period and delivered frame count.",
	}, s.handleListTimers)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reload_config",
		Description: "Ask the daemon to re-read its config file. Running fades keep their settings; new ones use the reloaded values.",
	}, s.handleReloadConfig)
}
