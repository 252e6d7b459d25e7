// Package mcp exposes the controls board as Model Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
)

// NewServer creates an MCP server exposing controldesk tools. journal may
// be nil, in which case the history tool is not registered.
func NewServer(b *board.State, journal *audit.Store, version string, logger *slog.Logger) *mcplib.Server {
	s := mcplib.NewServer(&mcplib.Implementation{
		Name:    "controldesk",
		Version: version,
	}, &mcplib.ServerOptions{
		Instructions: "controldesk tracks compliance controls through the workflow " +
			"Not Started, In Progress, Pending Review, Approved. Use these tools to list " +
			"and inspect controls, read dashboard counters and analytics, and advance a " +
			"control to its next status.",
	})

	h := &handlers{board: b, journal: journal, logger: logger}

	s.AddTool(listControlsTool(), h.handleListControls)
	s.AddTool(summaryTool(), h.handleSummary)
	s.AddTool(getControlTool(), h.handleGetControl)
	s.AddTool(advanceStatusTool(), h.handleAdvanceStatus)
	s.AddTool(setProgressTool(), h.handleSetProgress)
	s.AddTool(listEvidenceTool(), h.handleListEvidence)
	s.AddTool(analyticsTool(), h.handleAnalytics)
	s.AddTool(gapsTool(), h.handleGaps)
	if journal != nil {
		s.AddTool(historyTool(), h.handleHistory)
	}
	return s
}

// Serve runs the MCP server on stdio until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, s *mcplib.Server) error {
	return s.Run(ctx, &mcplib.StdioTransport{})
}
