package e2e

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// ensureCompletedRun queues a scoring run when the service has none yet and
// waits for it. Report and vendor mix tests need at least one completed pass.
func ensureCompletedRun(t *testing.T, client *HTTPClient) {
	t.Helper()

	resp, err := client.Get("/api/v1/runs?page=1&page_size=1")
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	list, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse run list: %v", err)
	}
	if items, _ := list["items"].([]any); len(items) > 0 {
		if run, ok := items[0].(map[string]any); ok && run["status"] == "completed" {
			return
		}
	}

	t.Log("No completed run yet, queueing one...")
	startedAfter := time.Now().Add(-2 * time.Second)

	resp, err = client.Post("/api/v1/runs", map[string]any{"requested_by": "e2e-report-test"})
	if err != nil {
		t.Fatalf("Failed to queue run: %v", err)
	}
	if resp.StatusCode != 202 {
		body, _ := ReadBody(resp)
		t.Fatalf("Expected 202 queueing run, got %d - %s", resp.StatusCode, body)
	}
	resp.Body.Close()

	waitForCompletedRun(t, client, startedAfter, 2*time.Minute)
}

// TestReportEndpoints renders every report format from the latest completed run
func TestReportEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	RequireService(t, cfg.ChurnURL)

	client := NewHTTPClient(cfg.ChurnURL)
	ensureCompletedRun(t, client)

	t.Log("Rendering POS reports...")

	resp, err := client.Get("/api/v1/reports/markdown")
	if err != nil {
		t.Fatalf("Failed to get markdown report: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for markdown report, got %d", resp.StatusCode)
	}
	markdown, err := ReadBody(resp)
	if err != nil {
		t.Fatalf("Failed to read markdown report: %v", err)
	}
	if !strings.Contains(markdown, "Alertas de comportamiento riesgoso") {
		t.Error("Markdown report is missing its title")
	}

	resp, err = client.Get("/api/v1/reports/html")
	if err != nil {
		t.Fatalf("Failed to get HTML report: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for HTML report, got %d", resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); !strings.Contains(contentType, "text/html") {
		t.Errorf("Expected HTML content type, got %s", contentType)
	}
	html, err := ReadBody(resp)
	if err != nil {
		t.Fatalf("Failed to read HTML report: %v", err)
	}
	if !strings.Contains(html, "<html") {
		t.Error("HTML report is not an HTML document")
	}

	resp, err = client.Get("/api/v1/reports/ascii")
	if err != nil {
		t.Fatalf("Failed to get ASCII chart: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for ASCII chart, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	t.Log("Rendering owner reports...")

	resp, err = client.Get("/api/v1/reports/markdown?view=owners")
	if err != nil {
		t.Fatalf("Failed to get owner markdown report: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for owner markdown report, got %d", resp.StatusCode)
	}
	ownerMarkdown, err := ReadBody(resp)
	if err != nil {
		t.Fatalf("Failed to read owner markdown report: %v", err)
	}
	if !strings.Contains(ownerMarkdown, "Reporte de Riesgo Comportamental por Owner") {
		t.Error("Owner markdown report is missing its title")
	}

	resp, err = client.Get("/api/v1/reports/html?view=owners")
	if err != nil {
		t.Fatalf("Failed to get owner HTML report: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for owner HTML report, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Invalid combinations are rejected
	resp, err = client.Get("/api/v1/reports/pdf")
	if err != nil {
		t.Fatalf("Failed to request bad report kind: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for unknown report kind, got %d", resp.StatusCode)
	}

	resp, err = client.Get("/api/v1/reports/ascii?view=owners")
	if err != nil {
		t.Fatalf("Failed to request owner ascii report: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for owner ascii report, got %d", resp.StatusCode)
	}

	resp, err = client.Get("/api/v1/reports/markdown?view=everything")
	if err != nil {
		t.Fatalf("Failed to request bad report view: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for unknown report view, got %d", resp.StatusCode)
	}
}

// TestVendorMixEndpoints verifies the vendor mix lookups against the CSV export
func TestVendorMixEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	RequireService(t, cfg.ChurnURL)

	client := NewHTTPClient(cfg.ChurnURL)
	ensureCompletedRun(t, client)

	resp, err := client.Get("/api/v1/vendor-mix/totals")
	if err != nil {
		t.Fatalf("Failed to get vendor totals: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for vendor totals, got %d", resp.StatusCode)
	}
	totals, err := ParseResponse[[]map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse vendor totals: %v", err)
	}
	t.Logf("Vendor totals cover %d vendors", len(totals))

	// Per-POS lookups use a POS id from the latest assessments
	resp, err = client.Get("/api/v1/assessments/latest?page=1&page_size=1")
	if err != nil {
		t.Fatalf("Failed to get latest assessments: %v", err)
	}
	latest, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse latest assessments: %v", err)
	}
	items, _ := latest["items"].([]any)
	if len(items) == 0 {
		t.Fatal("Expected at least one assessment in the latest run")
	}
	first, _ := items[0].(map[string]any)
	posID, _ := first["pos_id"].(string)
	if posID == "" {
		t.Fatal("Latest assessment has no pos_id")
	}

	resp, err = client.Get(fmt.Sprintf("/api/v1/pos/%s/vendor-mix", posID))
	if err != nil {
		t.Fatalf("Failed to get vendor mix for POS %s: %v", posID, err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for POS vendor mix, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = client.Get(fmt.Sprintf("/api/v1/pos/%s/vendor-mix/weekly", posID))
	if err != nil {
		t.Fatalf("Failed to get weekly vendor mix for POS %s: %v", posID, err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 for weekly POS vendor mix, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// TestRunHistoryPagination verifies run history paging parameters
func TestRunHistoryPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig()
	RequireService(t, cfg.ChurnURL)

	client := NewHTTPClient(cfg.ChurnURL)
	ensureCompletedRun(t, client)

	resp, err := client.Get("/api/v1/runs?page=1&page_size=1")
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 listing runs, got %d", resp.StatusCode)
	}
	list, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse run list: %v", err)
	}

	items, _ := list["items"].([]any)
	if len(items) > 1 {
		t.Errorf("Expected at most 1 run with page_size=1, got %d", len(items))
	}
	if pageSize, _ := list["page_size"].(float64); pageSize != 1 {
		t.Errorf("Expected page_size 1, got %v", pageSize)
	}
	if totalCount, _ := list["total_count"].(float64); totalCount < 1 {
		t.Errorf("Expected total_count >= 1, got %v", totalCount)
	}

	// A run fetched by id matches the list entry
	first, _ := items[0].(map[string]any)
	runID, _ := first["id"].(string)

	resp, err = client.Get(fmt.Sprintf("/api/v1/runs/%s", runID))
	if err != nil {
		t.Fatalf("Failed to get run %s: %v", runID, err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 getting run, got %d", resp.StatusCode)
	}
	run, err := ParseResponse[map[string]any](resp)
	if err != nil {
		t.Fatalf("Failed to parse run: %v", err)
	}
	if run["id"] != runID {
		t.Errorf("Expected run %s, got %v", runID, run["id"])
	}

	// Unknown runs come back 404
	resp, err = client.Get("/api/v1/runs/00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("Failed to get unknown run: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("Expected 404 for unknown run, got %d", resp.StatusCode)
	}
}
