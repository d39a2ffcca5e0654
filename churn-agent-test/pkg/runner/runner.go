package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ScenarioDefinition represents a YAML scenario file
type ScenarioDefinition struct {
	Name        string                   `yaml:"name"`
	Description string                   `yaml:"description"`
	Setup       []map[string]interface{} `yaml:"setup"`
	Steps       []map[string]interface{} `yaml:"steps"`
	Cleanup     []map[string]interface{} `yaml:"cleanup"`
}

// Config holds the configuration for running scenarios
type Config struct {
	TestFiles    []string
	DryRun       bool
	Verbose      bool
	ShowFailures bool // Show failure details without verbose step output
	Parallel     int  // Number of parallel workers (0 = sequential)

	// Service configuration
	ChurnURL     string
	KafkaBrokers []string
	AlertsTopic  string
}

// Result holds the scenario execution results
type Result struct {
	Total  int
	Passed int
	Failed int
	Tests  []TestResult
}

// TestResult holds results for a single scenario
type TestResult struct {
	Name     string
	FilePath string
	Passed   bool
	Error    string
}

// Run executes the scenario suite
func Run(config Config) (*Result, error) {
	result := &Result{
		Tests: make([]TestResult, 0),
		Total: len(config.TestFiles),
	}

	if config.Parallel > 1 {
		return runParallel(config, result)
	}

	return runSequential(config, result)
}

// runSequential executes scenarios one at a time
func runSequential(config Config, result *Result) (*Result, error) {
	for _, file := range config.TestFiles {
		testResult := runSingleTest(config, file)
		if testResult.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Tests = append(result.Tests, testResult)
	}

	return result, nil
}

// runParallel executes scenarios concurrently with a worker pool
func runParallel(config Config, result *Result) (*Result, error) {
	numWorkers := config.Parallel
	if numWorkers > len(config.TestFiles) {
		numWorkers = len(config.TestFiles)
	}

	jobs := make(chan string, len(config.TestFiles))
	results := make(chan TestResult, len(config.TestFiles))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				results <- runSingleTest(config, file)
			}
		}()
	}

	for _, file := range config.TestFiles {
		jobs <- file
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for testResult := range results {
		if testResult.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Tests = append(result.Tests, testResult)
	}

	return result, nil
}

// runSingleTest executes a single scenario file
func runSingleTest(config Config, file string) TestResult {
	ctx := context.Background()
	testCtx := NewTestContext(ctx, config)
	defer testCtx.Close()

	testResult := TestResult{
		FilePath: file,
	}

	if err := loadHelpers(testCtx); err != nil {
		testResult.Passed = false
		testResult.Error = fmt.Sprintf("Failed to load helpers: %v", err)
		fmt.Printf("✗ FAILED: %s\n", file)
		return testResult
	}

	scenario, err := loadScenario(file)
	if err != nil {
		testResult.Passed = false
		testResult.Error = fmt.Sprintf("Failed to load scenario: %v", err)
		fmt.Printf("✗ FAILED: %s\n", file)
		if config.Verbose || config.ShowFailures {
			fmt.Printf("  Error: %v\n\n", err)
		}
		return testResult
	}

	testResult.Name = scenario.Name

	if config.DryRun {
		fmt.Printf("✓ [DRY-RUN] %s (%s)\n", scenario.Name, file)
		testResult.Passed = true
		return testResult
	}

	fmt.Printf("▶ Running: %s\n", scenario.Name)
	if scenario.Description != "" && config.Verbose {
		fmt.Printf("  Description: %s\n", scenario.Description)
	}

	if err := runScenario(testCtx, scenario); err != nil {
		fmt.Printf("✗ FAILED: %s\n", scenario.Name)
		if config.Verbose || config.ShowFailures {
			fmt.Printf("  Error: %v\n\n", err)
		}
		testResult.Passed = false
		testResult.Error = err.Error()
	} else {
		fmt.Printf("✓ PASSED: %s\n", scenario.Name)
		testResult.Passed = true
	}

	return testResult
}

// loadScenario loads a scenario definition from a YAML file
func loadScenario(filePath string) (*ScenarioDefinition, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var scenario ScenarioDefinition
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &scenario, nil
}

// loadHelpers loads fixtures and templates from the helpers directory
func loadHelpers(testCtx *TestContext) error {
	helpersDir := "tests/helpers"

	if _, err := os.Stat(helpersDir); os.IsNotExist(err) {
		// No helpers directory, that's OK
		return nil
	}

	fixturesPath := filepath.Join(helpersDir, "fixtures.yaml")
	if _, err := os.Stat(fixturesPath); err == nil {
		data, err := os.ReadFile(fixturesPath)
		if err != nil {
			return fmt.Errorf("failed to read fixtures: %w", err)
		}

		var fixturesFile struct {
			Fixtures map[string]interface{} `yaml:"fixtures"`
		}
		if err := yaml.Unmarshal(data, &fixturesFile); err != nil {
			return fmt.Errorf("failed to parse fixtures: %w", err)
		}

		testCtx.LoadFixtures(fixturesFile.Fixtures)
	}

	templatesPath := filepath.Join(helpersDir, "templates.yaml")
	if _, err := os.Stat(templatesPath); err == nil {
		data, err := os.ReadFile(templatesPath)
		if err != nil {
			return fmt.Errorf("failed to read templates: %w", err)
		}

		var templatesFile struct {
			Templates map[string]interface{} `yaml:"templates"`
		}
		if err := yaml.Unmarshal(data, &templatesFile); err != nil {
			return fmt.Errorf("failed to parse templates: %w", err)
		}

		testCtx.LoadTemplates(templatesFile.Templates)
	}

	return nil
}

// runScenario executes a single scenario
func runScenario(testCtx *TestContext, scenario *ScenarioDefinition) error {
	for i, step := range scenario.Setup {
		if err := executeStep(testCtx, step, fmt.Sprintf("setup[%d]", i)); err != nil {
			return fmt.Errorf("setup failed at step %d: %w", i, err)
		}
	}

	for i, step := range scenario.Steps {
		if err := executeStep(testCtx, step, fmt.Sprintf("step[%d]", i)); err != nil {
			// Run cleanup even on failure
			runCleanup(testCtx, scenario.Cleanup)
			return fmt.Errorf("scenario failed at step %d: %w", i, err)
		}
	}

	if err := runCleanup(testCtx, scenario.Cleanup); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	return nil
}

// runCleanup runs cleanup steps (always runs all, even if one fails)
func runCleanup(testCtx *TestContext, cleanup []map[string]interface{}) error {
	var firstErr error
	for i, step := range cleanup {
		if err := executeStep(testCtx, step, fmt.Sprintf("cleanup[%d]", i)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			testCtx.Error("Cleanup step %d failed: %v", i, err)
		}
	}
	return firstErr
}
