package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}

func TestControls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/dashboard/api/controls" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"filter":{"risk":"High"},"total":3,"visible":1,
			"rows":[{"id":"SOC2-1","description":"MFA","area":"Access","type":"Manual","risk":"High","status":"In Progress","progress":40,"type_class":"manual"}]}`))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL).Controls(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || page.Visible != 1 || page.Filter.Risk != "High" {
		t.Errorf("page = %+v", page)
	}
	if len(page.Rows) != 1 || page.Rows[0].Progress != 40 {
		t.Errorf("rows = %+v", page.Rows)
	}
}

func TestAdvance_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/dashboard/api/controls/SOC2-1/advance" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ok":true,"kind":"none","message":"SOC2-1 moved to In Progress",
			"control":{"control_id":"SOC2-1","status":"In Progress","progress":0,"risk_rating":"High",
			"test_of_design":{"steps":[],"evidence":[]},"test_of_effectiveness":{"steps":[],"evidence":[]}}}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Advance(context.Background(), "SOC2-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Control == nil || res.Control.Status != "In Progress" {
		t.Errorf("result = %+v", res)
	}
}

func TestAdvance_PersistFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"ok":false,"kind":"network_failure","message":"could not save SOC2-1"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Advance(context.Background(), "SOC2-1")
	var resErr *ResultError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResultError, got %T: %v", err, err)
	}
	if resErr.StatusCode != http.StatusBadGateway || resErr.Result.Kind != "network_failure" {
		t.Errorf("error = %+v", resErr)
	}
	if res == nil || res.OK {
		t.Errorf("result should be returned with the error: %+v", res)
	}
}

func TestControl_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"control \"X-9\" not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Control(context.Background(), "X-9")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != `control "X-9" not found` {
		t.Errorf("message = %q", apiErr.Message)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound should be true")
	}
}

func TestSetFilter_SendsOnlySetFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body) != 2 || body["risk"] != "High" || body["search"] != "" {
			t.Errorf("body = %v", body)
		}
		_, _ = w.Write([]byte(`{"risk":"High"}`))
	}))
	defer srv.Close()

	risk, search := "High", ""
	f, err := NewClient(srv.URL).SetFilter(context.Background(), FilterPatch{Risk: &risk, Search: &search})
	if err != nil {
		t.Fatal(err)
	}
	if f.Risk != "High" || f.Search != "" {
		t.Errorf("filter = %+v", f)
	}
}

func TestSaveDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/dashboard/api/controls/SOC2-1/documents/policy" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Content != "# Policy" {
			t.Errorf("content = %q", body.Content)
		}
		_, _ = w.Write([]byte(`{"ok":true,"kind":"none","message":"policy saved"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).SaveDocument(context.Background(), "SOC2-1", "policy", "# Policy")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "policy saved" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestDeletePreset_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/dashboard/api/presets/High risk" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).DeletePreset(context.Background(), "High risk"); err != nil {
		t.Fatal(err)
	}
}

func TestHistory_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("control") != "SOC2-1" || q.Get("limit") != "5" || q.Has("type") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"e1","timestamp":"2025-06-01T12:00:00.000000Z","type":"status_advanced","control_id":"SOC2-1","ok":true}]`))
	}))
	defer srv.Close()

	entries, err := NewClient(srv.URL).History(context.Background(), HistoryQuery{ControlID: "SOC2-1", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Type != "status_advanced" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok","version":"0.3.0","controls":12,"remote":"http://127.0.0.1:5000"}`))
	}))
	defer srv.Close()

	h, err := NewClient(srv.URL).Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Controls != 12 {
		t.Errorf("health = %+v", h)
	}
}

func TestResult_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Reload(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
}

func TestSetProgress_Invalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/dashboard/api/controls/SOC2-2/progress" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]int
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["progress"] != 20 {
			t.Errorf("progress = %d", body["progress"])
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"kind":"invalid","message":"Cannot set SOC2-2 progress to 20%: 20 is below current 50"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).SetProgress(context.Background(), "SOC2-2", 20)
	var re *ResultError
	if !errors.As(err, &re) || re.Result.Kind != "invalid" {
		t.Fatalf("err = %v", err)
	}
	if res == nil || res.OK {
		t.Errorf("result = %+v", res)
	}
}

func TestUploadEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/dashboard/api/controls/SOC2-1/evidence" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "export.csv" || string(data) != "a,b" || r.FormValue("uploaded_by") != "dana" {
			t.Errorf("upload = %q %q %q", hdr.Filename, data, r.FormValue("uploaded_by"))
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true,"kind":"none","message":"export.csv attached to SOC2-1",
			"evidence":{"id":"EV-1","control_id":"SOC2-1","filename":"export.csv","size":3,"status":"pending_review","upload_date":"2026-03-01T09:30:00Z"}}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).UploadEvidence(context.Background(), "SOC2-1", EvidenceUpload{
		Filename:   "export.csv",
		UploadedBy: "dana",
		Content:    strings.NewReader("a,b"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Evidence == nil || res.Evidence.ID != "EV-1" || res.Evidence.Status != "pending_review" {
		t.Errorf("result = %+v", res)
	}
}

func TestEvidence_NotFoundUsesResultMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"kind":"not_found","message":"Control NOPE not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Evidence(context.Background(), "NOPE")
	if !IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Control NOPE not found" {
		t.Errorf("err = %#v", err)
	}
}

func TestEvidenceStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dashboard/api/evidence/stats" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"total_evidence":4,"approved_evidence":1,"pending_evidence":3,"rejected_evidence":0,"approval_rate":25}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).EvidenceStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 4 || st.ApprovalRate != 25 {
		t.Errorf("stats = %+v", st)
	}
}
