package steps

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/r2flows/churn-agent-test/pkg/kafka"
)

// TestContext is the execution context steps run against
type TestContext interface {
	Set(key string, value interface{})
	Get(key string) (interface{}, bool)
	Interpolate(input interface{}) interface{}
	HTTPRequest(method, serviceOrURL, path string, headers map[string]string, body interface{}) (*http.Response, error)
	Log(format string, args ...interface{})
	Error(format string, args ...interface{})
	AlertConsumer() (*kafka.AlertConsumer, error)
}

// toFloat converts common numeric types (and numeric strings) to float64 for comparisons
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Wait implements the wait step
func Wait(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		return fmt.Errorf("wait params must be a map")
	}

	durationStr, ok := paramsMap["duration"].(string)
	if !ok {
		return fmt.Errorf("wait duration must be a string")
	}

	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	reason := ""
	if r, ok := paramsMap["reason"].(string); ok {
		reason = r
	}

	if reason != "" {
		ctx.Log("Waiting %s (%s)", duration, reason)
	} else {
		ctx.Log("Waiting %s", duration)
	}

	time.Sleep(duration)
	return nil
}

// Assert implements the assert step. It checks a stored variable (nested paths
// and array indexes supported) against equals, not_equals, is_greater_than,
// is_less_than, not_empty, and contains.
func Assert(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		return fmt.Errorf("assert params must be a map")
	}

	message := "Assertion failed"
	if msg, ok := paramsMap["message"].(string); ok {
		message = ctx.Interpolate(msg).(string)
	}

	variable, ok := paramsMap["variable"].(string)
	if !ok {
		return fmt.Errorf("assert requires a 'variable' parameter")
	}

	val := resolveNestedVariable(ctx, variable)

	if equals, ok := paramsMap["equals"]; ok {
		expectedVal := ctx.Interpolate(equals)
		if !compareValues(val, expectedVal) {
			return fmt.Errorf("%s: %s = %v (type %T), expected %v (type %T)", message, variable, val, val, expectedVal, expectedVal)
		}
	}

	if notEquals, ok := paramsMap["not_equals"]; ok {
		unexpectedVal := ctx.Interpolate(notEquals)
		if compareValues(val, unexpectedVal) {
			return fmt.Errorf("%s: %s = %v, expected not equal to %v", message, variable, val, unexpectedVal)
		}
	}

	if gt, ok := paramsMap["is_greater_than"]; ok {
		expectedVal := ctx.Interpolate(gt)
		actualNum, okA := toFloat(val)
		expectedNum, okE := toFloat(expectedVal)
		if !okA || !okE {
			return fmt.Errorf("%s: %s = %v (type %T), expected numeric > %v (type %T)", message, variable, val, val, expectedVal, expectedVal)
		}
		if !(actualNum > expectedNum) {
			return fmt.Errorf("%s: %s = %v is not > %v", message, variable, actualNum, expectedNum)
		}
	}

	if lt, ok := paramsMap["is_less_than"]; ok {
		expectedVal := ctx.Interpolate(lt)
		actualNum, okA := toFloat(val)
		expectedNum, okE := toFloat(expectedVal)
		if !okA || !okE {
			return fmt.Errorf("%s: %s = %v (type %T), expected numeric < %v (type %T)", message, variable, val, val, expectedVal, expectedVal)
		}
		if !(actualNum < expectedNum) {
			return fmt.Errorf("%s: %s = %v is not < %v", message, variable, actualNum, expectedNum)
		}
	}

	if notEmpty, ok := paramsMap["not_empty"].(bool); ok && notEmpty {
		if val == nil {
			return fmt.Errorf("%s: %s is nil", message, variable)
		}
		if str, ok := val.(string); ok && str == "" {
			return fmt.Errorf("%s: %s is empty string", message, variable)
		}
		if reflect.ValueOf(val).Kind() == reflect.Slice && reflect.ValueOf(val).Len() == 0 {
			return fmt.Errorf("%s: %s is empty array", message, variable)
		}
	}

	if contains, ok := paramsMap["contains"]; ok {
		containsStr := ctx.Interpolate(contains).(string)
		if val == nil {
			return fmt.Errorf("%s: %s is nil, cannot check contains", message, variable)
		}
		valStr := fmt.Sprintf("%v", val)
		if !strings.Contains(valStr, containsStr) {
			return fmt.Errorf("%s: %s = %q does not contain %q", message, variable, valStr, containsStr)
		}
	}

	return nil
}

// resolveNestedVariable resolves a variable path like "response.id",
// "response.data.name", or "runs[0].status"
func resolveNestedVariable(ctx TestContext, path string) interface{} {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return nil
	}

	val, found := resolvePart(ctx, parts[0])
	if !found {
		return nil
	}

	for i := 1; i < len(parts); i++ {
		if val == nil {
			return nil
		}
		val = navigatePart(val, parts[i])
	}

	return val
}

// resolvePart looks up a root variable, handling an optional array index like
// "runs[0]"
func resolvePart(ctx TestContext, part string) (interface{}, bool) {
	name, index, hasIndex := splitIndex(part)

	val, found := ctx.Get(name)
	if !found {
		return nil, false
	}

	if hasIndex {
		val = indexInto(val, index)
	}
	return val, true
}

// navigatePart descends one path segment into a map, handling an optional
// array index like "items[2]"
func navigatePart(val interface{}, part string) interface{} {
	name, index, hasIndex := splitIndex(part)

	m, ok := val.(map[string]interface{})
	if !ok {
		return nil
	}
	val = m[name]

	if hasIndex {
		val = indexInto(val, index)
	}
	return val
}

func splitIndex(part string) (string, int, bool) {
	bracketIdx := strings.Index(part, "[")
	if bracketIdx < 0 || !strings.HasSuffix(part, "]") {
		return part, 0, false
	}

	index, err := strconv.Atoi(part[bracketIdx+1 : len(part)-1])
	if err != nil {
		return part, 0, false
	}
	return part[:bracketIdx], index, true
}

func indexInto(val interface{}, index int) interface{} {
	rv := reflect.ValueOf(val)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil
	}
	if index < 0 || index >= rv.Len() {
		return nil
	}
	return rv.Index(index).Interface()
}

// compareValues compares two values, handling numeric type differences
// (YAML parses numbers as int, JSON as float64)
func compareValues(actual, expected interface{}) bool {
	actualNum, actualIsNum := toFloat(actual)
	expectedNum, expectedIsNum := toFloat(expected)

	if actualIsNum && expectedIsNum {
		return actualNum == expectedNum
	}

	if actualBool, ok := actual.(bool); ok {
		if expectedBool, ok := expected.(bool); ok {
			return actualBool == expectedBool
		}
	}

	// Fall back to string comparison for mixed types
	if actualIsNum != expectedIsNum {
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
	}

	return reflect.DeepEqual(actual, expected)
}

// PollUntil implements the poll_until step - repeatedly runs a check until it
// passes or the timeout expires
func PollUntil(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		return fmt.Errorf("poll_until params must be a map")
	}

	timeoutStr := "30s"
	if t, ok := paramsMap["timeout"].(string); ok {
		timeoutStr = t
	}
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("invalid timeout duration: %w", err)
	}

	intervalStr := "1s"
	if i, ok := paramsMap["interval"].(string); ok {
		intervalStr = i
	}
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return fmt.Errorf("invalid interval duration: %w", err)
	}

	check, ok := paramsMap["check"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("poll_until requires 'check' parameter with http_request and/or assert")
	}

	reason := ""
	if r, ok := paramsMap["reason"].(string); ok {
		reason = r
	}

	if reason != "" {
		ctx.Log("Polling until condition met: %s (timeout=%s, interval=%s)", reason, timeout, interval)
	} else {
		ctx.Log("Polling until condition met (timeout=%s, interval=%s)", timeout, interval)
	}

	startTime := time.Now()
	attempts := 0

	for {
		attempts++
		elapsed := time.Since(startTime)

		if elapsed >= timeout {
			return fmt.Errorf("poll_until timed out after %s (%d attempts)", timeout, attempts)
		}

		var checkErr error

		if httpReq, hasHTTP := check["http_request"]; hasHTTP {
			checkErr = HTTPRequest(ctx, httpReq)
			if checkErr == nil {
				if assertCheck, hasAssert := check["assert"]; hasAssert {
					checkErr = Assert(ctx, assertCheck)
				}
			}
		} else if assertCheck, hasAssert := check["assert"]; hasAssert {
			checkErr = Assert(ctx, assertCheck)
		} else {
			return fmt.Errorf("poll_until check must contain 'http_request' and/or 'assert'")
		}

		if checkErr == nil {
			ctx.Log("Poll condition met after %d attempts (%s)", attempts, elapsed.Round(time.Millisecond))
			return nil
		}

		// Log failure every 5 attempts to avoid spam
		if attempts%5 == 0 {
			ctx.Log("Poll attempt %d: condition not met (will retry): %v", attempts, checkErr)
		}

		time.Sleep(interval)
	}
}

// HTTPRequest implements the http_request step
func HTTPRequest(ctx TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		return fmt.Errorf("http_request params must be a map")
	}

	service, ok := paramsMap["service"].(string)
	if !ok {
		if url, ok := paramsMap["url"].(string); ok {
			service = url
		} else {
			return fmt.Errorf("http_request requires 'service' or 'url'")
		}
	}

	method := "GET"
	if m, ok := paramsMap["method"].(string); ok {
		method = strings.ToUpper(m)
	}

	path := ""
	if p, ok := paramsMap["path"].(string); ok {
		path = p
	}

	headers := make(map[string]string)
	if h, ok := paramsMap["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			if str, ok := v.(string); ok {
				headers[k] = str
			}
		}
	}

	var body interface{}
	if b, ok := paramsMap["body"]; ok {
		body = b
	}

	resp, err := ctx.HTTPRequest(method, service, path, headers, body)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Save response if requested
	if saveAs, ok := paramsMap["save_as"].(string); ok {
		var responseData interface{}
		if err := json.Unmarshal(respBody, &responseData); err == nil {
			ctx.Set(saveAs, responseData)
		} else {
			// Not JSON, save as string
			ctx.Set(saveAs, string(respBody))
		}
	}

	// Check expectations
	if expect, ok := paramsMap["expect"].(map[string]interface{}); ok {
		// Check status code (YAML may parse as int or float64)
		if status, ok := expect["status"]; ok {
			expectedStatus, ok := toInt(status)
			if !ok {
				return fmt.Errorf("invalid status type: %T", status)
			}
			if resp.StatusCode != expectedStatus {
				return fmt.Errorf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(respBody))
			}
		}

		// Check response body
		if expectedBody, ok := expect["body"]; ok {
			var actualBody interface{}
			if err := json.Unmarshal(respBody, &actualBody); err != nil {
				return fmt.Errorf("failed to parse response as JSON: %w", err)
			}

			if err := compareJSON(expectedBody, actualBody, ctx); err != nil {
				return fmt.Errorf("response body mismatch: %w", err)
			}
		}

		// Check body substring (for non-JSON responses like reports)
		if bodyContains, ok := expect["body_contains"].(string); ok {
			expected := ctx.Interpolate(bodyContains).(string)
			if !strings.Contains(string(respBody), expected) {
				return fmt.Errorf("expected response body to contain %q", expected)
			}
		}
	}

	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// compareJSON compares expected and actual JSON values. Expected maps only
// need to match the fields they name.
func compareJSON(expected, actual interface{}, ctx TestContext) error {
	// Interpolate expected values
	expected = ctx.Interpolate(expected)

	switch exp := expected.(type) {
	case map[string]interface{}:
		actMap, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected map, got %T", actual)
		}

		for key, expectedVal := range exp {
			actualVal, ok := actMap[key]
			if !ok {
				return fmt.Errorf("missing field: %s", key)
			}

			if err := compareJSON(expectedVal, actualVal, ctx); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
		}
		return nil

	case []interface{}:
		actArr, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("expected array, got %T", actual)
		}

		if len(exp) != len(actArr) {
			return fmt.Errorf("expected array length %d, got %d", len(exp), len(actArr))
		}

		for i, expectedVal := range exp {
			if err := compareJSON(expectedVal, actArr[i], ctx); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil

	default:
		if !compareValues(actual, expected) {
			return fmt.Errorf("expected %v, got %v", expected, actual)
		}
		return nil
	}
}
