package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"churn-agent"`
	Port                          int      `env:"PORT" env-default:"3003"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"churn"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Reconnect Retry Count
	DatabaseReconnectRetryCount int `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Enable/disable Redis (without it manual runs and the run lock are unavailable)
	RedisEnabled bool `env:"REDIS_ENABLED" env-default:"true"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for churn alert events
	KafkaAlertsTopic string `env:"KAFKA_ALERTS_TOPIC" env-default:"churn-alerts"`
	// Kafka producer batch size
	KafkaBatchSize int `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	// Kafka producer batch timeout in milliseconds
	KafkaBatchTimeout int `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	// Kafka required acks: 0 = none, 1 = leader, -1 = all replicas
	KafkaRequiredAcks int `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	// Kafka compression algorithm
	KafkaCompression string `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	// Enable/disable alert publishing (disabled runs are log-only)
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"true"`

	// Scheduler settings
	// Enable/disable the scheduler
	SchedulerEnabled bool `env:"SCHEDULER_ENABLED" env-default:"true"`
	// Time between scheduled scoring passes
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" env-default:"24h"`
	// TTL of the distributed run lock
	SchedulerLockTTL time.Duration `env:"SCHEDULER_LOCK_TTL" env-default:"15m"`
	// How long a manual run request waits for the run lock
	SchedulerRunWaitTimeout time.Duration `env:"SCHEDULER_RUN_WAIT_TIMEOUT" env-default:"2m"`

	// Redis Streams settings
	// Run request stream name
	RedisStreamsRunQueue string `env:"REDIS_STREAMS_RUN_QUEUE" env-default:"churn:runs"`
	// Consumer group name
	RedisStreamsConsumerGroup string `env:"REDIS_STREAMS_CONSUMER_GROUP" env-default:"churn-scheduler"`
	// Consumer name (defaults to a generated id if empty)
	RedisStreamsConsumerName string `env:"REDIS_STREAMS_CONSUMER_NAME" env-default:""`

	// Source exports
	// Trial/platform usage export
	DataTrialPath string `env:"DATA_TRIAL_PATH" env-default:"data/trial_data.json"`
	// Delivered orders export
	DataOrdersPath string `env:"DATA_ORDERS_PATH" env-default:"data/orders_delivered.json"`
	// Purchase trend export
	DataTrendPath string `env:"DATA_TREND_PATH" env-default:"data/purchase_trend.json"`
	// Zombie POS export
	DataZombiesPath string `env:"DATA_ZOMBIES_PATH" env-default:"data/zombies.json"`
	// POS to owner mapping export
	DataPosOwnerPath string `env:"DATA_POS_OWNER_PATH" env-default:"data/pos_owner.csv"`
	// Per-vendor purchase export for the vendor mix breakdown
	DataVendorMixPath string `env:"DATA_VENDOR_MIX_PATH" env-default:"data/orders_delivered_pos_vendor_geozone.csv"`

	// Reports
	// Directory report files are written into (empty disables file output)
	ReportOutputDir string `env:"REPORT_OUTPUT_DIR" env-default:"reports"`
}
