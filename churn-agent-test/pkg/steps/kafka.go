package steps

import (
	"fmt"
	"time"
)

// ExpectAlert implements the expect_alert step. It waits for an event on the
// alerts topic matching the given filters and saves its body.
//
// Params:
//
//	type:      event type header to match ("risk.assessment" or "owner.digest")
//	run_id:    run id header to match (usually "{{run.id}}")
//	entity_id: entity id header to match (optional)
//	field:     body field that must exist, dot notation (optional)
//	contains:  substring the field value must contain (optional)
//	timeout:   how long to wait (default 30s)
//	save_as:   variable to store the event body in (optional)
func ExpectAlert(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		return fmt.Errorf("expect_alert params must be a map")
	}

	timeout := 30 * time.Second
	if t, ok := paramsMap["timeout"].(string); ok {
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = parsed
	}

	headerFilters := make(map[string]string)
	if eventType, ok := paramsMap["type"].(string); ok {
		headerFilters["event_type"] = ctx.Interpolate(eventType).(string)
	}
	if runID, ok := paramsMap["run_id"].(string); ok {
		headerFilters["run_id"] = ctx.Interpolate(runID).(string)
	}
	if entityID, ok := paramsMap["entity_id"].(string); ok {
		headerFilters["entity_id"] = ctx.Interpolate(entityID).(string)
	}

	fieldPath := ""
	if f, ok := paramsMap["field"].(string); ok {
		fieldPath = f
	}

	fieldContains := ""
	if c, ok := paramsMap["contains"].(string); ok {
		fieldContains = ctx.Interpolate(c).(string)
	}

	consumer, err := ctx.AlertConsumer()
	if err != nil {
		return err
	}

	ctx.Log("Waiting for alert event (filters: %v, timeout: %s)", headerFilters, timeout)

	msg, err := consumer.WaitForMessage(headerFilters, fieldPath, fieldContains, timeout)
	if err != nil {
		return fmt.Errorf("expect_alert failed: %w", err)
	}

	ctx.Log("Matched alert event at offset %d", msg.Offset)

	if saveAs, ok := paramsMap["save_as"].(string); ok {
		ctx.Set(saveAs, msg.Body)
	}

	return nil
}
