package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a consumed alert event with its headers and parsed body
type Message struct {
	Offset  int64
	Time    time.Time
	Headers map[string]string
	Body    map[string]interface{}
	Raw     []byte
}

// AlertConsumer continuously buffers messages from the alerts topic so
// scenario steps can match against events published at any earlier point.
type AlertConsumer struct {
	reader   *kafka.Reader
	messages []Message
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAlertConsumer creates and starts a consumer reading the topic from the
// earliest offset
func NewAlertConsumer(brokers []string, topic string) (*AlertConsumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})

	if err := reader.SetOffset(kafka.FirstOffset); err != nil {
		reader.Close()
		cancel()
		return nil, fmt.Errorf("failed to set offset: %w", err)
	}

	ac := &AlertConsumer{
		reader:   reader,
		messages: make([]Message, 0),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go ac.consume()

	return ac, nil
}

// consume runs in a goroutine and continuously reads messages
func (ac *AlertConsumer) consume() {
	defer close(ac.done)

	for {
		select {
		case <-ac.ctx.Done():
			return
		default:
		}

		// Read with a short timeout to allow checking cancellation
		readCtx, cancel := context.WithTimeout(ac.ctx, 1*time.Second)
		msg, err := ac.reader.ReadMessage(readCtx)
		cancel()

		if err != nil {
			if ac.ctx.Err() != nil {
				return
			}
			// Timeout is expected, just continue
			continue
		}

		headers := make(map[string]string)
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}

		var body map[string]interface{}
		if err := json.Unmarshal(msg.Value, &body); err != nil {
			// If JSON parse fails, store raw value
			body = map[string]interface{}{
				"_raw":         string(msg.Value),
				"_parse_error": err.Error(),
			}
		}

		ac.mu.Lock()
		ac.messages = append(ac.messages, Message{
			Offset:  msg.Offset,
			Time:    msg.Time,
			Headers: headers,
			Body:    body,
			Raw:     msg.Value,
		})
		ac.mu.Unlock()
	}
}

// FindMessage looks for a buffered message matching the header filters and,
// when fieldPath is set, a body field that exists and (when fieldContains is
// set) contains the given substring. Returns nil if nothing matches yet.
func (ac *AlertConsumer) FindMessage(headerFilters map[string]string, fieldPath, fieldContains string) *Message {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	for i := range ac.messages {
		msg := &ac.messages[i]

		allMatch := true
		for key, expectedValue := range headerFilters {
			actualValue, found := msg.Headers[key]
			if !found || actualValue != expectedValue {
				allMatch = false
				break
			}
		}

		if !allMatch {
			continue
		}

		if fieldPath != "" {
			fieldValue := nestedField(msg.Body, fieldPath)
			if fieldValue == nil {
				continue
			}
			if fieldContains != "" && !strings.Contains(fmt.Sprintf("%v", fieldValue), fieldContains) {
				continue
			}
		}

		return msg
	}

	return nil
}

// WaitForMessage polls the buffer until a matching message arrives or the
// timeout expires
func (ac *AlertConsumer) WaitForMessage(headerFilters map[string]string, fieldPath, fieldContains string, timeout time.Duration) (*Message, error) {
	deadline := time.Now().Add(timeout)
	attempts := 0

	for time.Now().Before(deadline) {
		attempts++

		if msg := ac.FindMessage(headerFilters, fieldPath, fieldContains); msg != nil {
			return msg, nil
		}

		time.Sleep(100 * time.Millisecond)
	}

	ac.mu.RLock()
	msgCount := len(ac.messages)
	ac.mu.RUnlock()

	return nil, fmt.Errorf("no message found matching filters after %d attempts (scanned %d messages, timeout %s)", attempts, msgCount, timeout)
}

// nestedField extracts a nested field from the message body using dot notation
func nestedField(body map[string]interface{}, path string) interface{} {
	var current interface{} = body

	for _, part := range strings.Split(path, ".") {
		if m, ok := current.(map[string]interface{}); ok {
			current = m[part]
		} else {
			return nil
		}
	}

	return current
}

// MessageCount returns the number of messages consumed so far
func (ac *AlertConsumer) MessageCount() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return len(ac.messages)
}

// Close stops the consumer and releases resources
func (ac *AlertConsumer) Close() error {
	ac.cancel()

	// Wait for the consume goroutine to exit (with timeout)
	select {
	case <-ac.done:
	case <-time.After(5 * time.Second):
	}

	return ac.reader.Close()
}
