package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controldesk/controldesk/internal/audit"
	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

type stubService struct {
	saveErr error
}

func (s *stubService) FetchControls(context.Context) ([]control.Raw, error) {
	return []control.Raw{
		{"control_id": "HIPAA-1", "control_area": "Network Security", "control_description": "Firewall review", "risk_rating": "High", "control_type": "Automatic"},
		{"control_id": "HIPAA-2", "control_area": "Incident Response", "risk_rating": "Medium", "status": "Pending Review", "progress": 75},
		{"control_id": "HIPAA-3", "control_area": "Security Awareness", "risk_rating": "Low", "status": "Approved", "progress": 100},
	}, nil
}

func (s *stubService) SaveControl(context.Context, control.Control) error { return s.saveErr }

func (s *stubService) GeneratePlan(context.Context, remote.PlanRequest) (*remote.PlanResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubService) GenerateDocument(context.Context, remote.DocumentKind, remote.DocumentRequest) (string, error) {
	return "", errors.New("not used")
}

func (s *stubService) SaveDocument(context.Context, remote.SaveDocumentRequest) error { return nil }

func (s *stubService) UploadEvidence(context.Context, remote.UploadEvidenceRequest) (*control.Evidence, error) {
	return nil, errors.New("not used")
}

func (s *stubService) ListEvidence(_ context.Context, controlID string) ([]control.Evidence, error) {
	if controlID != "HIPAA-1" {
		return nil, nil
	}
	return []control.Evidence{{ID: "EV-1", ControlID: controlID, Filename: "firewall.txt", Status: control.EvidencePending}}, nil
}

func (s *stubService) ReviewEvidence(context.Context, remote.ReviewEvidenceRequest) (*control.Evidence, error) {
	return nil, errors.New("not used")
}

func (s *stubService) EvidenceStats(context.Context) (*control.EvidenceStats, error) {
	return &control.EvidenceStats{}, nil
}

type testEnv struct {
	session *mcplib.ClientSession
	board   *board.State
	svc     *stubService
	journal *audit.Store
}

func newTestEnv(t *testing.T, withJournal bool) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{svc: &stubService{}}
	var opts []board.Option
	if withJournal {
		j, err := audit.NewStore(filepath.Join(t.TempDir(), "journal.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = j.Close() })
		env.journal = j
		opts = append(opts, board.WithObserver(j))
	}
	env.board = board.New(env.svc, logger, opts...)
	require.True(t, env.board.Reload(ctx).OK)

	srv := NewServer(env.board, env.journal, "test", logger)
	serverT, clientT := mcplib.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcplib.NewClient(&mcplib.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	env.session = cs
	return env
}

func (e *testEnv) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := e.session.CallTool(context.Background(), &mcplib.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcplib.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text, res.IsError
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t, false)
	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_controls", "summary", "get_control", "advance_status", "set_progress", "list_evidence", "analytics", "gaps"}, names)
}

func TestListTools_WithJournal(t *testing.T) {
	env := newTestEnv(t, true)
	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 9)
}

func TestListControls(t *testing.T) {
	env := newTestEnv(t, false)

	text, isErr := env.call(t, "list_controls", nil)
	require.False(t, isErr, text)
	var all listControlsResult
	require.NoError(t, json.Unmarshal([]byte(text), &all))
	assert.Equal(t, 3, all.Total)

	text, isErr = env.call(t, "list_controls", map[string]any{"risk": "high", "search": "firewall"})
	require.False(t, isErr, text)
	var filtered listControlsResult
	require.NoError(t, json.Unmarshal([]byte(text), &filtered))
	require.Equal(t, 1, filtered.Total)
	assert.Equal(t, "HIPAA-1", filtered.Rows[0].ID)

	// The dashboard's own filter is untouched.
	assert.True(t, env.board.FilterState().Empty())
}

func TestListControls_BadFilter(t *testing.T) {
	env := newTestEnv(t, false)
	_, isErr := env.call(t, "list_controls", map[string]any{"status": "Done"})
	assert.True(t, isErr)
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, false)
	text, isErr := env.call(t, "summary", nil)
	require.False(t, isErr, text)

	var s control.Summary
	require.NoError(t, json.Unmarshal([]byte(text), &s))
	assert.Equal(t, control.Summary{Total: 3, HighRisk: 1, Completed: 1, InProgress: 1, NotStarted: 1}, s)
}

func TestGetControl(t *testing.T) {
	env := newTestEnv(t, false)

	text, isErr := env.call(t, "get_control", map[string]any{"id": "HIPAA-2"})
	require.False(t, isErr, text)
	var c control.Control
	require.NoError(t, json.Unmarshal([]byte(text), &c))
	assert.Equal(t, control.StatusPendingReview, c.Status)

	text, isErr = env.call(t, "get_control", map[string]any{"id": "NOPE"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")

	_, isErr = env.call(t, "get_control", nil)
	assert.True(t, isErr)
}

func TestAdvanceStatus(t *testing.T) {
	env := newTestEnv(t, true)

	text, isErr := env.call(t, "advance_status", map[string]any{"id": "HIPAA-2"})
	require.False(t, isErr, text)
	c, _ := env.board.Control("HIPAA-2")
	assert.Equal(t, control.StatusApproved, c.Status)

	text, isErr = env.call(t, "advance_status", map[string]any{"id": "HIPAA-3"})
	assert.True(t, isErr, "approved control should not advance: %s", text)

	env.journal.Flush()
	text, isErr = env.call(t, "history", map[string]any{"control_id": "HIPAA-2", "type": "status_advanced"})
	require.False(t, isErr, text)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal([]byte(text), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Approved", entries[0].ToStatus)
}

func TestAdvanceStatus_PersistFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.svc.saveErr = remote.ErrUnavailable

	text, isErr := env.call(t, "advance_status", map[string]any{"id": "HIPAA-1"})
	assert.True(t, isErr)
	assert.NotEmpty(t, text)
}

func TestSetProgress(t *testing.T) {
	env := newTestEnv(t, false)

	text, isErr := env.call(t, "set_progress", map[string]any{"id": "HIPAA-2", "progress": 90})
	require.False(t, isErr, text)
	c, _ := env.board.Control("HIPAA-2")
	assert.Equal(t, 90, c.Progress)
	assert.Equal(t, control.StatusPendingReview, c.Status)

	text, isErr = env.call(t, "set_progress", map[string]any{"id": "HIPAA-2", "progress": 10})
	assert.True(t, isErr)
	assert.Contains(t, text, "below current")
}

func TestListEvidence(t *testing.T) {
	env := newTestEnv(t, false)

	text, isErr := env.call(t, "list_evidence", map[string]any{"id": "HIPAA-1"})
	require.False(t, isErr, text)
	var list []control.Evidence
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "firewall.txt", list[0].Filename)

	text, isErr = env.call(t, "list_evidence", map[string]any{"id": "HIPAA-3"})
	require.False(t, isErr, text)
	assert.JSONEq(t, "[]", text)

	_, isErr = env.call(t, "list_evidence", map[string]any{"id": "nope"})
	assert.True(t, isErr)
}

func TestAnalyticsAndGaps(t *testing.T) {
	env := newTestEnv(t, false)

	text, isErr := env.call(t, "analytics", nil)
	require.False(t, isErr, text)
	var a control.Analytics
	require.NoError(t, json.Unmarshal([]byte(text), &a))
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 1, a.Approved)

	text, isErr = env.call(t, "gaps", map[string]any{"limit": 1})
	require.False(t, isErr, text)
	var gaps []control.Gap
	require.NoError(t, json.Unmarshal([]byte(text), &gaps))
	require.Len(t, gaps, 1)
	assert.Equal(t, "HIPAA-1", gaps[0].ID)
}
