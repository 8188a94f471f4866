package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	sweeper "github.com/kamal-github/outbox-sweeper"
	"github.com/kamal-github/outbox-sweeper/backend"
	"github.com/kamal-github/outbox-sweeper/datastore"
	"github.com/kamal-github/outbox-sweeper/internal/config"
	"github.com/kamal-github/outbox-sweeper/internal/health"
	"go.uber.org/zap"
)

func main() {
	// Setup log
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Process()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Connect to the outbox database
	dsn := cfg.DatabaseURL
	if cfg.DBDriver == "mysql" {
		dsn, err = datastore.MySQLDSN(dsn)
		if err != nil {
			logger.Fatal("invalid database URL", zap.Error(err))
		}
	}

	db, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	store, err := newStore(cfg, db, logger)
	if err != nil {
		logger.Fatal("failed to set up outbox store", zap.Error(err))
	}
	defer store.Close()

	// One shared AWS session; both clients are safe for concurrent use
	// by overlapping sweeps.
	awsSession := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	}))

	sqsDispatcher, err := backend.NewSimpleQueueService(sqs.New(awsSession), logger)
	if err != nil {
		logger.Fatal("failed to set up SQS dispatcher", zap.Error(err))
	}

	snsDispatcher, err := backend.NewSimpleNotificationService(sns.New(awsSession), logger)
	if err != nil {
		logger.Fatal("failed to set up SNS dispatcher", zap.Error(err))
	}

	dispatchers := map[string]backend.Dispatcher{
		backend.SQS: sqsDispatcher,
		backend.SNS: snsDispatcher,
	}

	if cfg.AMQPURL != "" {
		rabbitDispatcher, err := backend.NewRabbitMQ(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal("failed to set up RabbitMQ dispatcher", zap.Error(err))
		}
		defer rabbitDispatcher.Close()

		dispatchers[backend.RABBITMQ] = rabbitDispatcher
	}

	healthSrv := health.NewServer(cfg.HealthAddr)
	go func() {
		logger.Info("health endpoint listening", zap.String("addr", cfg.HealthAddr))
		if err := healthSrv.Start(); err != nil {
			logger.Error("health server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerDone := make(chan struct{})

	logger.Info("starting outbox sweeper",
		zap.Duration("sweepInterval", cfg.SweepInterval()),
		zap.Int("batchSize", cfg.BatchSize),
	)

	go sweeper.Worker{
		Engine: sweeper.Engine{
			Store:       store,
			Dispatchers: dispatchers,
			BatchSize:   cfg.BatchSize,
			Logger:      logger,
		},
		SweepInterval: cfg.SweepInterval(),
		Logger:        logger,
	}.Start(ctx, workerDone)

	<-sig
	logger.Info("shutdown signal received, draining in-flight sweeps")
	cancel()

	<-workerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown failed", zap.Error(err))
	}
}

func newStore(cfg config.ENV, db *sql.DB, logger *zap.Logger) (datastore.Store, error) {
	if cfg.DBDriver == "mysql" {
		return datastore.NewMySQL(db, cfg.OutboxTable, logger)
	}

	return datastore.NewPostgres(db, cfg.OutboxTable, logger)
}
