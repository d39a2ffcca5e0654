package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertEvent is the envelope every published event rides in. EntityID is the
// POS id or owner id the event concerns and doubles as the partition key so
// events for one entity stay ordered.
type AlertEvent struct {
	Type       string          `json:"type"`
	RunID      string          `json:"run_id"`
	EntityID   string          `json:"entity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// NewAlertEvent wraps a payload in an AlertEvent envelope
func NewAlertEvent(eventType, runID, entityID string, payload any) (*AlertEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &AlertEvent{
		Type:       eventType,
		RunID:      runID,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}

// ToJSON serializes the AlertEvent to JSON bytes
func (e *AlertEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseAlertEvent parses a raw Kafka message into an AlertEvent
func ParseAlertEvent(data []byte) (*AlertEvent, error) {
	var event AlertEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// MessageHeaders contains Kafka message headers for efficient filtering
type MessageHeaders struct {
	EventType   string
	RunID       string
	EntityID    string
	TraceParent string
	TraceState  string
}

// ToKafkaHeaders converts MessageHeaders to a slice of header key-value pairs
func (h *MessageHeaders) ToKafkaHeaders() []Header {
	headers := make([]Header, 0, 5)

	if h.EventType != "" {
		headers = append(headers, Header{Key: "event_type", Value: []byte(h.EventType)})
	}
	if h.RunID != "" {
		headers = append(headers, Header{Key: "run_id", Value: []byte(h.RunID)})
	}
	if h.EntityID != "" {
		headers = append(headers, Header{Key: "entity_id", Value: []byte(h.EntityID)})
	}
	if h.TraceParent != "" {
		headers = append(headers, Header{Key: "traceparent", Value: []byte(h.TraceParent)})
	}
	if h.TraceState != "" {
		headers = append(headers, Header{Key: "tracestate", Value: []byte(h.TraceState)})
	}

	return headers
}

// Header represents a Kafka message header
type Header struct {
	Key   string
	Value []byte
}

// ExtractHeaders extracts MessageHeaders from Kafka headers
func ExtractHeaders(headers []Header) MessageHeaders {
	var mh MessageHeaders
	for _, h := range headers {
		switch h.Key {
		case "event_type":
			mh.EventType = string(h.Value)
		case "run_id":
			mh.RunID = string(h.Value)
		case "entity_id":
			mh.EntityID = string(h.Value)
		case "traceparent":
			mh.TraceParent = string(h.Value)
		case "tracestate":
			mh.TraceState = string(h.Value)
		}
	}
	return mh
}
