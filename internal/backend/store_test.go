package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/controldesk/controldesk/internal/control"
	"github.com/controldesk/controldesk/internal/remote"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "backend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, soc2 := GenerateControls(remote.PlanRequest{Framework: "SOC 2", TechStack: []string{"AWS"}}, fixedNow)
	require.NoError(t, s.ReplaceFramework(ctx, "SOC 2", soc2))
	_, hipaa := GenerateControls(remote.PlanRequest{Framework: "HIPAA"}, fixedNow)
	require.NoError(t, s.ReplaceFramework(ctx, "HIPAA", hipaa))

	all, err := s.Controls(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(soc2)+len(hipaa))
	assert.Equal(t, "SOC2-1", all[0].ID, "insertion order")
	assert.Equal(t, soc2[0].CustomTestingSteps, all[0].CustomTestingSteps)

	// Regenerating a framework replaces only that framework.
	_, smaller := GenerateControls(remote.PlanRequest{Framework: "SOC 2"}, fixedNow)
	require.NoError(t, s.ReplaceFramework(ctx, "SOC 2", smaller))
	all, err = s.Controls(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(smaller)+len(hipaa))

	updated := smaller[0]
	updated.Status = control.StatusInProgress
	updated.Progress = 25
	require.NoError(t, s.SaveControl(ctx, updated))
	all, err = s.Controls(ctx)
	require.NoError(t, err)
	var found bool
	for _, c := range all {
		if c.ID == updated.ID {
			found = true
			assert.Equal(t, control.StatusInProgress, c.Status)
			assert.Equal(t, 25, c.Progress)
		}
	}
	assert.True(t, found)

	id, err := s.SaveDocument(ctx, Document{ControlID: updated.ID, Type: remote.KindProcedure, Title: "Procedure", Content: "# Steps"})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.SaveDocument(ctx, Document{ControlID: "MISSING-1", Type: remote.KindPolicy, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := s.Documents(ctx, updated.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, remote.KindProcedure, docs[0].Type)
	assert.Equal(t, "# Steps", docs[0].Content)
	assert.False(t, docs[0].CreatedAt.IsZero())

	evidenceContract(t, s, updated.ID)
}

func evidenceContract(t *testing.T, s Store, controlID string) {
	ctx := context.Background()

	first := control.Evidence{
		ID: "EV-1", ControlID: controlID, Filename: "firewall.txt", FileType: "text/plain",
		Size: 5, SHA256: "abc", Status: control.EvidencePending, UploadDate: fixedNow,
	}
	require.NoError(t, s.AddEvidence(ctx, first, []byte("rules")))
	second := first
	second.ID, second.Filename = "EV-2", "export.csv"
	require.NoError(t, s.AddEvidence(ctx, second, []byte("a,b")))

	missing := first
	missing.ID, missing.ControlID = "EV-3", "MISSING-1"
	assert.ErrorIs(t, s.AddEvidence(ctx, missing, []byte("x")), ErrNotFound)

	records, err := s.Evidence(ctx, controlID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "EV-1", records[0].ID, "upload order")
	assert.Equal(t, control.EvidencePending, records[0].Status)
	assert.True(t, records[0].UploadDate.Equal(fixedNow))
	assert.Nil(t, records[0].ReviewDate)

	reviewedAt := fixedNow.Add(time.Hour)
	e, err := s.ReviewEvidence(ctx, controlID, "EV-1", control.EvidenceApproved, reviewedAt)
	require.NoError(t, err)
	assert.Equal(t, control.EvidenceApproved, e.Status)
	require.NotNil(t, e.ReviewDate)
	assert.True(t, e.ReviewDate.Equal(reviewedAt))

	_, err = s.ReviewEvidence(ctx, "OTHER-1", "EV-2", control.EvidenceApproved, reviewedAt)
	assert.ErrorIs(t, err, ErrNotFound, "evidence belongs to another control")

	got, content, err := s.EvidenceContent(ctx, "EV-1")
	require.NoError(t, err)
	assert.Equal(t, "firewall.txt", got.Filename)
	assert.Equal(t, []byte("rules"), content)
	_, _, err = s.EvidenceContent(ctx, "EV-404")
	assert.ErrorIs(t, err, ErrNotFound)

	counts, err := s.EvidenceCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[control.EvidenceStatus]int{control.EvidenceApproved: 1, control.EvidencePending: 1}, counts)
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, newSQLiteStore(t))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveControl(context.Background(), control.Control{ID: "A-1", Status: control.StatusApproved, Progress: 100}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	all, err := s.Controls(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, control.StatusApproved, all[0].Status)
}

// TestPostgresStore runs against a real server when
// CONTROLDESK_TEST_POSTGRES holds a DSN for a throwaway database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CONTROLDESK_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("CONTROLDESK_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	s, err := OpenStore(ctx, dsn)
	require.NoError(t, err)
	pg, ok := s.(*PostgresStore)
	require.True(t, ok)
	t.Cleanup(func() { _ = pg.Close() })
	_, err = pg.pool.Exec(ctx, "TRUNCATE controls, documents, evidence")
	require.NoError(t, err)

	storeContract(t, pg)
}

func TestOpenStore_SQLiteByDefault(t *testing.T) {
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, ok := s.(*SQLiteStore)
	assert.True(t, ok)
}
