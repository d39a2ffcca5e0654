package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config holds test configuration
type Config struct {
	ChurnURL     string
	KafkaBrokers []string
	AlertsTopic  string
}

// DefaultConfig returns default test configuration
func DefaultConfig() Config {
	return Config{
		ChurnURL:     getEnv("CHURN_URL", "http://localhost:3003"),
		KafkaBrokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
		AlertsTopic:  getEnv("ALERTS_TOPIC", "churn-alerts"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// HTTPClient wraps http.Client with helper methods
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a new HTTP client for the service
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(path string) (*http.Response, error) {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// ParseResponse parses a JSON response into the given type
func ParseResponse[T any](resp *http.Response) (T, error) {
	var result T
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	return result, nil
}

// ReadBody drains a response body as a string
func ReadBody(resp *http.Response) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return string(body), nil
}

// KafkaHelper provides Kafka testing utilities
type KafkaHelper struct {
	brokers []string
}

// NewKafkaHelper creates a new Kafka helper
func NewKafkaHelper(brokers []string) *KafkaHelper {
	return &KafkaHelper{brokers: brokers}
}

// ConsumeMessagesAfter consumes messages from a topic, filtering for messages after a specific time
// to keep alert events from previous runs out of the result
func (k *KafkaHelper) ConsumeMessagesAfter(ctx context.Context, topic, groupID string, timeout time.Duration, maxMessages int, afterTime time.Time) ([]kafka.Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer reader.Close()

	messages := make([]kafka.Message, 0, maxMessages)
	deadline := time.Now().Add(timeout)

	for len(messages) < maxMessages && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				continue // Timeout, try again
			}
			return messages, err
		}

		// Commit all messages to advance offset, but only keep recent ones
		reader.CommitMessages(context.Background(), msg)

		// Filter: only keep messages after the specified time
		if !afterTime.IsZero() && msg.Time.Before(afterTime) {
			continue // Skip old messages
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

// HeaderValue returns the value of a Kafka message header, or "" when absent
func HeaderValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// RequireService skips the test if the service is not available
// Waits up to 10 seconds for service to become ready (handles 503 during startup)
func RequireService(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/api/v1/health")
		if err != nil {
			// Service not running at all
			t.Skipf("Skipping: service at %s is not available. Start churnd before running e2e tests", url)
			return
		}

		status := resp.StatusCode
		resp.Body.Close()

		if status == http.StatusOK {
			return // Service is ready
		}

		if status == http.StatusServiceUnavailable {
			// Service is starting up, wait and retry
			t.Logf("Service at %s is starting (503), waiting...", url)
			time.Sleep(1 * time.Second)
			continue
		}

		// Other error status
		t.Skipf("Skipping: service at %s returned status %d", url, status)
		return
	}

	t.Skipf("Skipping: service at %s did not become ready within 10s", url)
}

// waitForCompletedRun polls run history until a run that started after 'after'
// reaches the completed state. Fails the test when the timeout expires or a
// matching run ends up failed.
func waitForCompletedRun(t *testing.T, client *HTTPClient, after time.Time, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get("/api/v1/runs?page=1&page_size=10")
		if err != nil {
			t.Logf("Warning: failed to list runs: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			time.Sleep(1 * time.Second)
			continue
		}

		list, err := ParseResponse[map[string]any](resp)
		if err != nil {
			t.Logf("Warning: failed to parse run list: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		items, _ := list["items"].([]any)
		for _, raw := range items {
			run, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			startedAt, _ := run["started_at"].(string)
			started, err := time.Parse(time.RFC3339, startedAt)
			if err != nil || started.Before(after) {
				continue
			}
			switch run["status"] {
			case "completed":
				return run
			case "failed":
				t.Fatalf("Scoring run %v failed: %v", run["id"], run["error"])
			}
		}

		time.Sleep(1 * time.Second)
	}

	t.Fatalf("No scoring run completed within %s", timeout)
	return nil
}
