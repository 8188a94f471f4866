package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess(t *testing.T) {
	t.Run("it applies defaults around the required settings", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/outbox")
		t.Setenv("AWS_REGION", "eu-west-1")

		e, err := Process()
		require.NoError(t, err)

		assert.Equal(t, "postgres://localhost:5432/outbox", e.DatabaseURL)
		assert.Equal(t, "eu-west-1", e.AWSRegion)
		assert.Equal(t, "postgres", e.DBDriver)
		assert.Equal(t, "core.outbox", e.OutboxTable)
		assert.Equal(t, 5000, e.SweepIntervalMS)
		assert.Equal(t, 5*time.Second, e.SweepInterval())
		assert.Equal(t, 10, e.BatchSize)
		assert.Equal(t, ":8080", e.HealthAddr)
	})

	t.Run("it fails fast when DATABASE_URL is missing", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		os.Unsetenv("DATABASE_URL")
		t.Setenv("AWS_REGION", "eu-west-1")

		_, err := Process()
		assert.Error(t, err)
	})

	t.Run("it fails fast when AWS_REGION is missing", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/outbox")
		t.Setenv("AWS_REGION", "")
		os.Unsetenv("AWS_REGION")

		_, err := Process()
		assert.Error(t, err)
	})

	t.Run("it clamps the batch size to the transport batch cap", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/outbox")
		t.Setenv("AWS_REGION", "eu-west-1")
		t.Setenv("BATCH_SIZE", "50")

		e, err := Process()
		require.NoError(t, err)
		assert.Equal(t, 10, e.BatchSize)
	})

	t.Run("it honours an explicit sweep interval", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/outbox")
		t.Setenv("AWS_REGION", "eu-west-1")
		t.Setenv("SWEEP_INTERVAL_MS", "250")

		e, err := Process()
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, e.SweepInterval())
	})
}
