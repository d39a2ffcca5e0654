package testcontainers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// InfraManager manages the containers churnd needs: PostgreSQL for run
// history, Kafka for the alerts topic, and Redis for the run queue and lock.
// The service itself runs as a local process pointed at these containers.
type InfraManager struct {
	ctx context.Context

	postgres  testcontainers.Container
	kafka     testcontainers.Container
	redis     testcontainers.Container
	zookeeper testcontainers.Container

	network testcontainers.Network

	// URLs for the started infrastructure
	PostgresURL  string
	KafkaBrokers []string
	RedisURL     string

	// Split host/port pairs, matching how churnd is configured
	PostgresHost string
	PostgresPort string
	RedisHost    string
	RedisPort    string
}

// NewInfraManager creates a new infrastructure manager
func NewInfraManager(ctx context.Context) *InfraManager {
	return &InfraManager{
		ctx: ctx,
	}
}

// Start starts PostgreSQL, Kafka, and Redis
func (im *InfraManager) Start() error {
	network, err := testcontainers.GenericNetwork(im.ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           "churn-test-network",
			CheckDuplicate: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}
	im.network = network

	// Zookeeper first, Kafka needs it
	if err := im.startZookeeper(); err != nil {
		return fmt.Errorf("failed to start Zookeeper: %w", err)
	}

	if err := im.startKafka(); err != nil {
		return fmt.Errorf("failed to start Kafka: %w", err)
	}

	if err := im.startPostgres(); err != nil {
		return fmt.Errorf("failed to start PostgreSQL: %w", err)
	}

	if err := im.startRedis(); err != nil {
		return fmt.Errorf("failed to start Redis: %w", err)
	}

	return nil
}

// startZookeeper starts Zookeeper container
func (im *InfraManager) startZookeeper() error {
	req := testcontainers.ContainerRequest{
		Image:        "confluentinc/cp-zookeeper:7.5.0",
		ExposedPorts: []string{"2181/tcp"},
		Env: map[string]string{
			"ZOOKEEPER_CLIENT_PORT": "2181",
			"ZOOKEEPER_TICK_TIME":   "2000",
		},
		Networks: []string{"churn-test-network"},
		WaitingFor: wait.ForLog("binding to port").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(im.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}

	im.zookeeper = container
	return nil
}

// startKafka starts Kafka container
func (im *InfraManager) startKafka() error {
	req := testcontainers.ContainerRequest{
		Image:        "confluentinc/cp-kafka:7.5.0",
		ExposedPorts: []string{"9092/tcp", "9093/tcp"},
		Env: map[string]string{
			"KAFKA_BROKER_ID":                        "1",
			"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
			"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,PLAINTEXT_INTERNAL://kafka:9093",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,PLAINTEXT_INTERNAL:PLAINTEXT",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":    "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
		},
		Networks: []string{"churn-test-network"},
		WaitingFor: wait.ForLog("started (kafka.server.KafkaServer)").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(im.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}

	im.kafka = container

	host, err := container.Host(im.ctx)
	if err != nil {
		return err
	}

	port, err := container.MappedPort(im.ctx, "9092")
	if err != nil {
		return err
	}

	im.KafkaBrokers = []string{fmt.Sprintf("%s:%s", host, port.Port())}
	return nil
}

// startPostgres starts PostgreSQL container
func (im *InfraManager) startPostgres() error {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "churn",
		},
		Networks: []string{"churn-test-network"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(im.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}

	im.postgres = container

	host, err := container.Host(im.ctx)
	if err != nil {
		return err
	}

	port, err := container.MappedPort(im.ctx, "5432")
	if err != nil {
		return err
	}

	im.PostgresHost = host
	im.PostgresPort = port.Port()
	im.PostgresURL = fmt.Sprintf("postgres://user:password@%s:%s/churn?sslmode=disable", host, port.Port())
	return nil
}

// startRedis starts Redis container
func (im *InfraManager) startRedis() error {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		Networks:     []string{"churn-test-network"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(im.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}

	im.redis = container

	host, err := container.Host(im.ctx)
	if err != nil {
		return err
	}

	port, err := container.MappedPort(im.ctx, "6379")
	if err != nil {
		return err
	}

	im.RedisHost = host
	im.RedisPort = port.Port()
	im.RedisURL = fmt.Sprintf("%s:%s", host, port.Port())
	return nil
}

// Cleanup stops and removes all containers
func (im *InfraManager) Cleanup() error {
	containers := []testcontainers.Container{
		im.redis,
		im.postgres,
		im.kafka,
		im.zookeeper,
	}

	for _, container := range containers {
		if container != nil {
			if err := container.Terminate(im.ctx); err != nil {
				// Log but don't fail on cleanup errors
				fmt.Printf("Warning: failed to terminate container: %v\n", err)
			}
		}
	}

	if im.network != nil {
		if err := im.network.Remove(im.ctx); err != nil {
			fmt.Printf("Warning: failed to remove network: %v\n", err)
		}
	}

	return nil
}

// IsReady checks if all infrastructure containers are up
func (im *InfraManager) IsReady() bool {
	return im.postgres != nil && im.kafka != nil && im.redis != nil
}
