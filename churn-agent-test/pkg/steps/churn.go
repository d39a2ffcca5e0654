package steps

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// queuedAtVar is where QueueRun records when the request went out so
// WaitForRun can tell this pass apart from earlier ones
const queuedAtVar = "_run_queued_at"

// QueueRun implements the queue_run step. It queues a manual scoring pass and
// saves the returned request id.
func QueueRun(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		paramsMap = map[string]interface{}{}
	}

	requestedBy := "churn-test"
	if rb, ok := paramsMap["requested_by"].(string); ok {
		requestedBy = ctx.Interpolate(rb).(string)
	}

	ctx.Log("Queueing scoring run (requested_by: %s)", requestedBy)

	// Record when the request went out, with a small buffer for clock skew
	ctx.Set(queuedAtVar, time.Now().Add(-2*time.Second).Format(time.RFC3339))

	body := map[string]interface{}{
		"requested_by": requestedBy,
	}

	resp, err := ctx.HTTPRequest("POST", "churn", "/api/v1/runs", nil, body)
	if err != nil {
		return fmt.Errorf("failed to queue run: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != 202 {
		return fmt.Errorf("queue run failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	requestID, _ := result["request_id"].(string)
	if requestID == "" {
		return fmt.Errorf("queue run response has no request_id: %s", string(respBody))
	}

	if saveAs, ok := paramsMap["save_as"].(string); ok {
		ctx.Set(saveAs, requestID)
		ctx.Log("Request ID saved as: %s = %s", saveAs, requestID)
	}

	return nil
}

// WaitForRun implements the wait_for_run step. It polls run history until a
// run queued by the preceding queue_run step completes, then saves the run.
func WaitForRun(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		paramsMap = map[string]interface{}{}
	}

	timeout := 2 * time.Minute
	if t, ok := paramsMap["timeout"].(string); ok {
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid timeout duration: %w", err)
		}
		timeout = parsed
	}

	saveAs := "run"
	if s, ok := paramsMap["save_as"].(string); ok {
		saveAs = s
	}

	queuedAt := time.Now().Add(-30 * time.Second)
	if raw, ok := ctx.Get(queuedAtVar); ok {
		if str, ok := raw.(string); ok {
			if parsed, err := time.Parse(time.RFC3339, str); err == nil {
				queuedAt = parsed
			}
		}
	}

	ctx.Log("Waiting for scoring run to complete (timeout: %s)", timeout)

	deadline := time.Now().Add(timeout)
	attempts := 0

	for time.Now().Before(deadline) {
		attempts++

		run, err := findRunAfter(ctx, queuedAt)
		if err != nil {
			if attempts%5 == 0 {
				ctx.Log("Poll attempt %d: %v", attempts, err)
			}
			time.Sleep(1 * time.Second)
			continue
		}

		if run != nil {
			switch run["status"] {
			case "completed":
				ctx.Set(saveAs, run)
				ctx.Log("Run %v completed: %v POS scored", run["id"], run["pos_count"])
				return nil
			case "failed":
				return fmt.Errorf("scoring run %v failed: %v", run["id"], run["error"])
			}
		}

		time.Sleep(1 * time.Second)
	}

	return fmt.Errorf("no scoring run completed within %s (%d attempts)", timeout, attempts)
}

// findRunAfter returns the newest run that started after the given time, or
// nil when none exists yet
func findRunAfter(ctx TestContext, after time.Time) (map[string]interface{}, error) {
	resp, err := ctx.HTTPRequest("GET", "churn", "/api/v1/runs?page=1&page_size=10", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read run list: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("run list returned status %d", resp.StatusCode)
	}

	var list struct {
		Items []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("failed to parse run list: %w", err)
	}

	for _, run := range list.Items {
		startedAt, _ := run["started_at"].(string)
		started, err := time.Parse(time.RFC3339, startedAt)
		if err != nil || started.Before(after) {
			continue
		}
		return run, nil
	}

	return nil, nil
}
