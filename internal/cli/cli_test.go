package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	method      string
	path        string
	query       string
	contentType string
	body        string
}

// fakeAPI отвечает заранее заданными конвертами и запоминает запросы.
func fakeAPI(t *testing.T, routes map[string]any) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})

		resp, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "import not found"},
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": resp})
	}))
	t.Cleanup(srv.Close)

	return srv, &reqs
}

func sampleImport() ImportResponse {
	return ImportResponse{
		ID:        "6f1c",
		Status:    "RUNNING",
		Total:     1200,
		Processed: 300,
		Success:   290,
		Error:     10,
		Pending:   900,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func TestClient_ListImports(t *testing.T) {
	srv, reqs := fakeAPI(t, map[string]any{
		"GET /api/v1/imports": []ImportResponse{sampleImport()},
	})

	runs, err := NewClient(srv.URL+"/").ListImports(ListImportsOpts{Status: "RUNNING", Limit: 5})
	if err != nil {
		t.Fatalf("ListImports: %v", err)
	}
	if len(runs) != 1 || runs[0].Total != 1200 {
		t.Errorf("unexpected runs: %+v", runs)
	}
	if q := (*reqs)[0].query; !strings.Contains(q, "status=RUNNING") || !strings.Contains(q, "limit=5") {
		t.Errorf("unexpected query: %q", q)
	}
}

func TestClient_CreateImport(t *testing.T) {
	srv, reqs := fakeAPI(t, map[string]any{
		"POST /api/v1/imports": sampleImport(),
	})
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "subs.csv")
	os.WriteFile(csvPath, []byte("Channel Id\nUCaaaaaaaaaaaaaaaaaaaaaa\n"), 0o644)
	jsonPath := filepath.Join(dir, "subs.JSON")
	os.WriteFile(jsonPath, []byte(`{"entries":[{"channel_id":"UCaaaaaaaaaaaaaaaaaaaaaa"}]}`), 0o644)

	client := NewClient(srv.URL)
	if _, err := client.CreateImport(csvPath); err != nil {
		t.Fatalf("csv upload: %v", err)
	}
	if _, err := client.CreateImport(jsonPath); err != nil {
		t.Fatalf("json upload: %v", err)
	}

	csvReq, jsonReq := (*reqs)[0], (*reqs)[1]
	if !strings.HasPrefix(csvReq.contentType, "multipart/form-data") || !strings.Contains(csvReq.body, `name="file"`) {
		t.Errorf("csv upload must be multipart with a file field: %q", csvReq.contentType)
	}
	if jsonReq.contentType != "application/json" || !strings.Contains(jsonReq.body, "entries") {
		t.Errorf("json upload sent as %q: %s", jsonReq.contentType, jsonReq.body)
	}

	if _, err := client.CreateImport(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestClient_Controls(t *testing.T) {
	id := "6f1c"
	srv, reqs := fakeAPI(t, map[string]any{
		"POST /api/v1/imports/" + id + "/start":              sampleImport(),
		"POST /api/v1/imports/" + id + "/pause":              map[string]bool{"paused": true},
		"POST /api/v1/imports/" + id + "/retry-quota-errors": map[string]int{"reset": 4},
		"POST /api/v1/imports/" + id + "/auto-resume":        map[string]bool{"resumed": true},
	})
	client := NewClient(srv.URL)

	if _, err := client.StartImport(id, 5000); err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	if body := (*reqs)[0].body; !strings.Contains(body, `"delay_ms":5000`) {
		t.Errorf("unexpected start body: %s", body)
	}
	if _, err := client.StartImport(id, 0); err != nil {
		t.Fatalf("StartImport without delay: %v", err)
	}
	if body := (*reqs)[1].body; body != "" {
		t.Errorf("expected empty start body, got %s", body)
	}

	if paused, err := client.TogglePause(id); err != nil || !paused {
		t.Errorf("TogglePause = %v, %v", paused, err)
	}
	if n, err := client.RetryQuotaErrors(id); err != nil || n != 4 {
		t.Errorf("RetryQuotaErrors = %d, %v", n, err)
	}
	if ok, err := client.AutoResume(id); err != nil || !ok {
		t.Errorf("AutoResume = %v, %v", ok, err)
	}
}

func TestClient_APIError(t *testing.T) {
	srv, _ := fakeAPI(t, nil)

	_, err := NewClient(srv.URL).GetImport("missing")
	if err == nil || err.Error() != "NOT_FOUND: import not found" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestImportShowCmd(t *testing.T) {
	tag := "QUOTA"
	srv, _ := fakeAPI(t, map[string]any{
		"GET /api/v1/imports/6f1c": StatusResponse{
			Run:    sampleImport(),
			Recent: []ItemResponse{{ChannelID: "UCaaaaaaaaaaaaaaaaaaaaaa", Status: "ERROR", ErrorTag: tag, Attempts: 1, UpdatedAt: time.Now()}},
			Retry:  RetrySummary{QuotaErrors: 10, PendingCount: 900, Paused: true, WorkerState: "PAUSED"},
			Quota:  &QuotaEstimate{Used: 14500, Remaining: 0, Exhausted: true, ResetsAt: time.Now().Add(3 * time.Hour)},
		},
	})

	var stdout, stderr bytes.Buffer
	cmd := NewImportCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return newOutput(false, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"show", "6f1c"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("show: %v", err)
	}

	got := stdout.String()
	for _, want := range []string{"300/1,200 (25%)", "PAUSED", "14,500", "from now", "QUOTA"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestImportListCmd_JSON(t *testing.T) {
	srv, _ := fakeAPI(t, map[string]any{
		"GET /api/v1/imports": []ImportResponse{sampleImport()},
	})

	var stdout bytes.Buffer
	cmd := NewImportCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return newOutput(true, &stdout, io.Discard) },
	)
	cmd.SetArgs([]string{"list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}

	var runs []ImportResponse
	if err := json.Unmarshal(stdout.Bytes(), &runs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(runs) != 1 || runs[0].ID != "6f1c" {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestFormatting(t *testing.T) {
	if got := Progress(1234, 5000); got != "1,234/5,000 (24%)" {
		t.Errorf("Progress = %q", got)
	}
	if got := Progress(0, 0); got != "0/0 (0%)" {
		t.Errorf("Progress(0, 0) = %q", got)
	}
	if got := Ago(nil); got != "-" {
		t.Errorf("Ago(nil) = %q", got)
	}
	past := time.Now().Add(-2 * time.Hour)
	if got := Ago(&past); got != "2 hours ago" {
		t.Errorf("Ago = %q", got)
	}
}
