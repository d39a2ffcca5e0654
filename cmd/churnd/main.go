package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/r2flows/churn-agent/config"
	assessmentrepo "github.com/r2flows/churn-agent/internal/repositories/assessment"
	ownersummaryrepo "github.com/r2flows/churn-agent/internal/repositories/ownersummary"
	runrepo "github.com/r2flows/churn-agent/internal/repositories/run"
	"github.com/r2flows/churn-agent/pkg/aggregation"
	"github.com/r2flows/churn-agent/pkg/database"
	"github.com/r2flows/churn-agent/pkg/extractor"
	"github.com/r2flows/churn-agent/pkg/kafka"
	"github.com/r2flows/churn-agent/pkg/middleware"
	"github.com/r2flows/churn-agent/pkg/notify"
	"github.com/r2flows/churn-agent/pkg/pipeline"
	"github.com/r2flows/churn-agent/pkg/redis"
	"github.com/r2flows/churn-agent/pkg/reports"
	assessmentroutes "github.com/r2flows/churn-agent/pkg/routes/assessment"
	"github.com/r2flows/churn-agent/pkg/routes/health"
	ownerroutes "github.com/r2flows/churn-agent/pkg/routes/owner"
	reportroutes "github.com/r2flows/churn-agent/pkg/routes/report"
	runroutes "github.com/r2flows/churn-agent/pkg/routes/run"
	vendormixroutes "github.com/r2flows/churn-agent/pkg/routes/vendormix"
	"github.com/r2flows/churn-agent/pkg/scheduler"
	"github.com/r2flows/churn-agent/pkg/scoring"
	"github.com/r2flows/churn-agent/pkg/signals"
	"github.com/r2flows/churn-agent/pkg/startup"
	"github.com/r2flows/churn-agent/pkg/tracing"
	"github.com/r2flows/churn-agent/pkg/vendormix"
)

// version is set at build time
var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	// Spans stay in-process but give every request and run a trace id
	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	if err := run(&cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger ectologger.Logger) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}

	// Postgres
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)

	// Redis
	var redisClient *redis.Client
	var locker *redis.Locker
	var streams *redis.Streams
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = redis.NewLocker(redisClient, "")
		streams = redis.NewStreams(redisClient)
	} else {
		logger.Warn("Redis is disabled; manual runs and the run lock are unavailable")
	}

	// Kafka
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producerConfig := kafka.DefaultProducerConfig()
		producerConfig.Brokers = strings.Split(cfg.KafkaBrokers, ",")
		producerConfig.Topic = cfg.KafkaAlertsTopic
		producerConfig.BatchSize = cfg.KafkaBatchSize
		producerConfig.BatchTimeout = time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond
		producerConfig.RequiredAcks = cfg.KafkaRequiredAcks
		producerConfig.Compression = cfg.KafkaCompression
		producer, err = kafka.NewProducer(producerConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
	} else {
		logger.Warn("Kafka is disabled; alert events are log-only")
	}

	// Repositories
	runRepository := runrepo.NewRepository(db, logger)
	assessmentRepository := assessmentrepo.NewRepository(db, logger)
	summaryRepository := ownersummaryrepo.NewRepository(db, logger)

	// Scoring pipeline
	loader := extractor.NewLoader(extractor.Config{
		TrialPath:    cfg.DataTrialPath,
		OrdersPath:   cfg.DataOrdersPath,
		TrendPath:    cfg.DataTrendPath,
		ZombiesPath:  cfg.DataZombiesPath,
		PosOwnerPath: cfg.DataPosOwnerPath,
	}, logger)
	merger := signals.NewMerger(logger)
	portfolio := scoring.NewPortfolio(logger)
	aggregator := aggregation.NewAggregator(logger)
	generator := reports.NewGenerator(logger)
	vendorMix := vendormix.NewService(cfg.DataVendorMixPath, logger)

	var publisher notify.EventPublisher
	if producer != nil {
		publisher = producer
	}
	notifier := notify.NewNotifier(publisher, logger)

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Loader:      loader,
		Merger:      merger,
		Portfolio:   portfolio,
		Aggregator:  aggregator,
		Runs:        runRepository,
		Assessments: assessmentRepository,
		Owners:      summaryRepository,
		Reports:     generator,
		Notifier:    notifier,
		ReportDir:   cfg.ReportOutputDir,
	}, logger)

	runScheduler := scheduler.NewScheduler(runner, streams, locker, scheduler.Config{
		Interval:       cfg.SchedulerInterval,
		LockTTL:        cfg.SchedulerLockTTL,
		RunWaitTimeout: cfg.SchedulerRunWaitTimeout,
		RunStream:      cfg.RedisStreamsRunQueue,
		ConsumerGroup:  cfg.RedisStreamsConsumerGroup,
		ConsumerName:   cfg.RedisStreamsConsumerName,
	}, logger)

	// Dependency injection for route handlers
	if err := registerDependencies(container, cfg, logger, runRepository, assessmentRepository, summaryRepository, generator, vendorMix, streams); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(sqlxDB, redisPinger(redisClient), version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	runroutes.Register(api.Group("/runs"))
	assessmentroutes.Register(api)
	ownerroutes.Register(api)
	reportroutes.Register(api.Group("/reports"))
	vendormixroutes.Register(api)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Startup graph
	services := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	services.AddDependency(&dependency{
		name: "postgres",
		stop: func(ctx context.Context) error { return sqlxDB.Close() },
	})
	if redisClient != nil {
		services.AddDependency(&dependency{
			name: "redis",
			stop: func(ctx context.Context) error { return redisClient.Close() },
		})
	}
	if producer != nil {
		services.AddDependency(&dependency{
			name: "kafka",
			stop: func(ctx context.Context) error { return producer.Close() },
		})
	}
	services.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"postgres"},
		start: func(ctx context.Context) error {
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				logger.Infof("HTTP server listening on %s", addr)
				if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error { return e.Shutdown(ctx) },
	})
	if cfg.SchedulerEnabled {
		services.AddDependency(&dependency{
			name:      "scheduler",
			dependsOn: []string{"postgres"},
			start:     runScheduler.Start,
			stop:      runScheduler.Stop,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)
	logger.Infof("%s %s started", cfg.AppName, version)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return services.Stop(shutdownCtx)
}

func registerDependencies(
	container ectocontainer.DIContainer,
	cfg *config.Config,
	logger ectologger.Logger,
	runRepository *runrepo.Repository,
	assessmentRepository *assessmentrepo.Repository,
	summaryRepository *ownersummaryrepo.Repository,
	generator *reports.Generator,
	vendorMix *vendormix.Service,
	streams *redis.Streams,
) error {
	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*runrepo.Repository](container, runRepository); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*assessmentrepo.Repository](container, assessmentRepository); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*ownersummaryrepo.Repository](container, summaryRepository); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*reports.Generator](container, generator); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*vendormix.Service](container, vendorMix); err != nil {
		return err
	}
	if streams != nil {
		if err := ectoinject.RegisterInstance[*redis.Streams](container, streams); err != nil {
			return err
		}
	}
	return nil
}

// redisPinger keeps the health checker's Pinger nil when redis is disabled
// instead of handing it a typed nil
func redisPinger(client *redis.Client) health.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func buildLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// dependency adapts a start/stop pair to the startup graph
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string { return d.name }

func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
