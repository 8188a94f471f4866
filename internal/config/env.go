package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// maxBatchEntries is the hard cap both SQS SendMessageBatch and SNS
// PublishBatch put on entries per call.
const maxBatchEntries = 10

// ENV maps the Env vars.
type ENV struct {
	DatabaseURL     string `envconfig:"DATABASE_URL" required:"true"`
	DBDriver        string `envconfig:"DB_DRIVER" default:"postgres"`
	OutboxTable     string `envconfig:"OUTBOX_TABLE" default:"core.outbox"`
	AWSRegion       string `envconfig:"AWS_REGION" required:"true"`
	SweepIntervalMS int    `envconfig:"SWEEP_INTERVAL_MS" default:"5000"`
	BatchSize       int    `envconfig:"BATCH_SIZE" default:"10"`
	AMQPURL         string `envconfig:"AMQP_URL"`
	HealthAddr      string `envconfig:"HEALTH_ADDR" default:":8080"`
}

// Process loads Environment vars into ENV, reading a .env file first when
// one is present.
func Process() (ENV, error) {
	_ = godotenv.Load()

	var e ENV
	if err := envconfig.Process("", &e); err != nil {
		return ENV{}, err
	}

	if e.BatchSize < 1 || e.BatchSize > maxBatchEntries {
		e.BatchSize = maxBatchEntries
	}

	return e, nil
}

// SweepInterval returns the scheduler period.
func (e ENV) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalMS) * time.Millisecond
}
