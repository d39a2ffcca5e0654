package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/r2flows/churn-agent-test/pkg/runner"
	"github.com/r2flows/churn-agent-test/pkg/testcontainers"
)

var (
	churnURL     string
	kafkaBrokers string
	alertsTopic  string
	verbose      bool
	dryRun       bool
	showFailures bool
	parallel     int
)

var rootCmd = &cobra.Command{
	Use:          "churn-test",
	Short:        "Scenario test harness for the churn agent",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [scenario files...]",
	Short: "Run YAML scenarios against a running churnd",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			matches, err := filepath.Glob("tests/scenarios/*.yaml")
			if err != nil {
				return err
			}
			files = matches
		}
		if len(files) == 0 {
			return fmt.Errorf("no scenario files found (default glob: tests/scenarios/*.yaml)")
		}

		config := runner.Config{
			TestFiles:    files,
			DryRun:       dryRun,
			Verbose:      verbose,
			ShowFailures: showFailures,
			Parallel:     parallel,
			ChurnURL:     churnURL,
			KafkaBrokers: strings.Split(kafkaBrokers, ","),
			AlertsTopic:  alertsTopic,
		}

		result, err := runner.Run(config)
		if err != nil {
			return err
		}

		fmt.Printf("\n%d scenarios: %d passed, %d failed\n", result.Total, result.Passed, result.Failed)
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d scenarios failed", result.Failed, result.Total)
		}
		return nil
	},
}

var infraCmd = &cobra.Command{
	Use:   "infra",
	Short: "Start PostgreSQL, Kafka, and Redis containers and wait for Ctrl+C",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		manager := testcontainers.NewInfraManager(ctx)

		fmt.Println("Starting infrastructure containers...")
		if err := manager.Start(); err != nil {
			manager.Cleanup()
			return err
		}

		fmt.Println("\nInfrastructure is up:")
		fmt.Printf("  PostgreSQL: %s\n", manager.PostgresURL)
		fmt.Printf("  Kafka:      %s\n", strings.Join(manager.KafkaBrokers, ","))
		fmt.Printf("  Redis:      %s\n", manager.RedisURL)

		fmt.Println("\nEnvironment for churnd:")
		fmt.Printf("  export DB_HOST=%s\n", manager.PostgresHost)
		fmt.Printf("  export DB_PORT=%s\n", manager.PostgresPort)
		fmt.Println("  export DB_USER_NAME=user")
		fmt.Println("  export DB_PASSWORD=password")
		fmt.Println("  export DB_NAME=churn")
		fmt.Println("  export DB_SQL_MODE=disable")
		fmt.Printf("  export REDIS_HOST=%s\n", manager.RedisHost)
		fmt.Printf("  export REDIS_PORT=%s\n", manager.RedisPort)
		fmt.Printf("  export KAFKA_BROKERS=%s\n", strings.Join(manager.KafkaBrokers, ","))

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("\nPress Ctrl+C to stop")
		<-sigCtx.Done()

		fmt.Println("Stopping containers...")
		return manager.Cleanup()
	},
}

func init() {
	runCmd.Flags().StringVar(&churnURL, "churn-url", envOr("CHURN_URL", "http://localhost:3003"), "Base URL of the running churnd")
	runCmd.Flags().StringVar(&kafkaBrokers, "kafka-brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "Comma-separated Kafka brokers")
	runCmd.Flags().StringVar(&alertsTopic, "alerts-topic", envOr("ALERTS_TOPIC", "churn-alerts"), "Topic churnd publishes alert events to")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every step as it runs")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse scenarios without executing them")
	runCmd.Flags().BoolVar(&showFailures, "show-failures", false, "Show failure details without verbose output")
	runCmd.Flags().IntVar(&parallel, "parallel", 0, "Number of parallel workers (0 = sequential)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(infraCmd)
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
