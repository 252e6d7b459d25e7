package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
)

type handlers struct {
	board   *board.State
	journal *audit.Store
	logger  *slog.Logger
}

func readOnly() *mcplib.ToolAnnotations {
	f := false
	return &mcplib.ToolAnnotations{ReadOnlyHint: true, DestructiveHint: &f, OpenWorldHint: &f}
}

// --- Tool definitions ---

func listControlsTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "list_controls",
		Description: "List compliance controls as dashboard rows. Filters are optional and " +
			"combine with AND; they do not change the dashboard's own filter.",
		InputSchema: schema(map[string]string{
			"status":    "Filter by status: Not Started, In Progress, Pending Review, Approved",
			"risk":      "Filter by risk rating: High, Medium, Low",
			"type":      "Filter by control type: Automatic, Manual, Hybrid",
			"search":    "Case-insensitive text matched against id, area and description",
			"framework": "Exact framework name, e.g. SOC 2",
		}),
		Annotations: readOnly(),
	}
}

func summaryTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "summary",
		Description: "Dashboard counters over all loaded controls: total, high risk, completed, in progress, not started.",
		InputSchema: schema(nil),
		Annotations: readOnly(),
	}
}

func getControlTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "get_control",
		Description: "Full record of one control, including its test plans and custom testing steps.",
		InputSchema: schema(map[string]string{"id": "Control id, e.g. SOC2-3"}, "id"),
		Annotations: readOnly(),
	}
}

func advanceStatusTool() *mcplib.Tool {
	f := false
	return &mcplib.Tool{
		Name: "advance_status",
		Description: "Move a control to the next workflow status and persist it to the " +
			"Remote Control Service. Approved controls cannot be advanced.",
		InputSchema: schema(map[string]string{"id": "Control id to advance"}, "id"),
		Annotations: &mcplib.ToolAnnotations{DestructiveHint: &f, OpenWorldHint: &f},
	}
}

func setProgressTool() *mcplib.Tool {
	f := false
	return &mcplib.Tool{
		Name: "set_progress",
		Description: "Raise a control's completion percentage without changing its status. " +
			"Progress never goes down and only approved controls reach 100.",
		InputSchema: schema(map[string]string{
			"id":       "Control id",
			"progress": "New completion percentage, 0-100",
		}, "id", "progress"),
		Annotations: &mcplib.ToolAnnotations{DestructiveHint: &f, OpenWorldHint: &f},
	}
}

func listEvidenceTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "list_evidence",
		Description: "Evidence files attached to a control with their review status.",
		InputSchema: schema(map[string]string{"id": "Control id"}, "id"),
		Annotations: readOnly(),
	}
}

func analyticsTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "analytics",
		Description: "Compliance score, risk distribution, and approval rate per area and framework.",
		InputSchema: schema(nil),
		Annotations: readOnly(),
	}
}

func gapsTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "gaps",
		Description: "Open controls ordered by risk, highest first.",
		InputSchema: schema(map[string]string{"limit": "Maximum gaps to return (default 10)"}),
		Annotations: readOnly(),
	}
}

func historyTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "history",
		Description: "Recent activity journal entries, newest first.",
		InputSchema: schema(map[string]string{
			"control_id": "Only entries for this control",
			"type":       "Only entries of this event type, e.g. status_advanced",
			"limit":      "Maximum entries to return (default 20)",
		}),
		Annotations: readOnly(),
	}
}

// --- Handlers ---

type listControlsResult struct {
	Filter control.FilterState `json:"filter"`
	Total  int                 `json:"total"`
	Rows   []control.Row       `json:"rows"`
}

func (h *handlers) handleListControls(_ context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a := parseArgs(req)
	f, err := control.ParseFilter(a.str("status"), a.str("risk"), a.str("type"), a.str("search"))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	f.Framework = a.str("framework")
	rows := control.Project(control.Filter(h.board.Controls(), f))
	if rows == nil {
		rows = []control.Row{}
	}
	return jsonResult(listControlsResult{Filter: f, Total: len(rows), Rows: rows}), nil
}

func (h *handlers) handleSummary(context.Context, *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(h.board.SummaryCounts()), nil
}

func (h *handlers) handleGetControl(_ context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := parseArgs(req).str("id")
	if id == "" {
		return errorResult("id is required"), nil
	}
	c, ok := h.board.Control(id)
	if !ok {
		return errorResult(fmt.Sprintf("control %q not found", id)), nil
	}
	return jsonResult(c), nil
}

func (h *handlers) handleAdvanceStatus(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := parseArgs(req).str("id")
	if id == "" {
		return errorResult("id is required"), nil
	}
	res := h.board.AdvanceStatus(ctx, id)
	h.logger.Info("mcp advance_status", "control_id", id, "ok", res.OK, "kind", res.Kind.String())
	if !res.OK {
		return errorResult(res.Message), nil
	}
	return jsonResult(res), nil
}

func (h *handlers) handleSetProgress(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a := parseArgs(req)
	id := a.str("id")
	if id == "" {
		return errorResult("id is required"), nil
	}
	pct := a.integer("progress", -1)
	res := h.board.SetProgress(ctx, id, pct)
	h.logger.Info("mcp set_progress", "control_id", id, "progress", pct, "ok", res.OK, "kind", res.Kind.String())
	if !res.OK {
		return errorResult(res.Message), nil
	}
	return jsonResult(res), nil
}

func (h *handlers) handleListEvidence(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := parseArgs(req).str("id")
	if id == "" {
		return errorResult("id is required"), nil
	}
	list, res := h.board.Evidence(ctx, id)
	if !res.OK {
		return errorResult(res.Message), nil
	}
	if list == nil {
		list = []control.Evidence{}
	}
	return jsonResult(list), nil
}

func (h *handlers) handleAnalytics(context.Context, *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(h.board.Analytics()), nil
}

func (h *handlers) handleGaps(_ context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	gaps := h.board.Gaps(parseArgs(req).integer("limit", 0))
	if gaps == nil {
		gaps = []control.Gap{}
	}
	return jsonResult(gaps), nil
}

func (h *handlers) handleHistory(_ context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	a := parseArgs(req)
	limit := a.integer("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	entries, err := h.journal.Query(audit.QueryOpts{
		ControlID: a.str("control_id"),
		Type:      a.str("type"),
		Limit:     limit,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return jsonResult(entries), nil
}
