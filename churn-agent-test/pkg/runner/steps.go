package runner

import (
	"fmt"

	"github.com/r2flows/churn-agent-test/pkg/steps"
)

// executeStep executes a single scenario step
func executeStep(testCtx *TestContext, step map[string]interface{}, stepLabel string) error {
	// Each step is a map with a single key (the step type)
	if len(step) == 0 {
		return fmt.Errorf("empty step")
	}

	if len(step) > 1 {
		return fmt.Errorf("step has multiple keys (expected one): %v", step)
	}

	// Get the step type and parameters
	var stepType string
	var params interface{}
	for k, v := range step {
		stepType = k
		params = v
	}

	if testCtx.Verbose {
		fmt.Printf("  [%s] %s\n", stepLabel, stepType)
	}

	switch stepType {
	case "wait":
		return steps.Wait(testCtx, params)

	case "assert":
		return steps.Assert(testCtx, params)

	case "poll_until":
		return steps.PollUntil(testCtx, params)

	case "http_request":
		return steps.HTTPRequest(testCtx, params)

	case "queue_run":
		return steps.QueueRun(testCtx, params)

	case "wait_for_run":
		return steps.WaitForRun(testCtx, params)

	case "expect_alert":
		return steps.ExpectAlert(testCtx, params)

	case "use_template":
		return executeTemplate(testCtx, params)

	default:
		return fmt.Errorf("unknown step type: %s", stepType)
	}
}

// executeTemplate expands and executes a template
func executeTemplate(testCtx *TestContext, params interface{}) error {
	paramsMap, ok := params.(map[string]interface{})
	if !ok {
		return fmt.Errorf("use_template params must be a map")
	}

	var templateName string
	var templateParams map[string]interface{}

	if name, ok := paramsMap["name"].(string); ok {
		templateName = name
		if with, ok := paramsMap["with"].(map[string]interface{}); ok {
			templateParams = with
		}
	}

	if templateName == "" {
		return fmt.Errorf("template name not specified")
	}

	tmpl, ok := testCtx.GetTemplate(templateName)
	if !ok {
		return fmt.Errorf("template not found: %s", templateName)
	}

	// Template parameters become variables for the template's steps
	for k, v := range templateParams {
		testCtx.Set(k, v)
	}

	templateSteps, ok := tmpl["steps"].([]interface{})
	if !ok {
		return fmt.Errorf("template %s has no steps", templateName)
	}

	for i, stepInterface := range templateSteps {
		stepMap, ok := stepInterface.(map[string]interface{})
		if !ok {
			return fmt.Errorf("template %s step %d is not a map", templateName, i)
		}

		if err := executeStep(testCtx, stepMap, fmt.Sprintf("template:%s[%d]", templateName, i)); err != nil {
			return fmt.Errorf("template %s step %d failed: %w", templateName, i, err)
		}
	}

	return nil
}
