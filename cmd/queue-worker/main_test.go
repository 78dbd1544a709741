package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/dep-queue-worker/internal/config"
	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		want      *cliArgs
		errString string
	}{
		{
			name: "run mode",
			args: []string{"0", "8"},
			want: &cliArgs{scenario: 0, threads: 8, mode: domain.ModeRun},
		},
		{
			name: "drain mode with any third argument",
			args: []string{"12", "2", "x"},
			want: &cliArgs{scenario: 12, threads: 2, mode: domain.ModeDrain},
		},
		{
			name:      "missing threads",
			args:      []string{"0"},
			errString: "USAGE",
		},
		{
			name:      "too many arguments",
			args:      []string{"0", "1", "drain", "extra"},
			errString: "USAGE",
		},
		{
			name:      "zero threads",
			args:      []string{"0", "0"},
			errString: "invalid threads",
		},
		{
			name:      "non-numeric threads",
			args:      []string{"0", "many"},
			errString: "invalid threads",
		},
		{
			name:      "negative scenario",
			args:      []string{"-1", "4"},
			errString: "invalid scenario",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentBrokerConfig(t *testing.T) {
	t.Setenv("RABBITMQ_PASSWORD", "")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	startup := &config.RabbitMQConfig{Host: "mq.startup", User: "dep", Password: "startup"}
	path := filepath.Join(t.TempDir(), "config.yaml")

	t.Run("rotated credentials are picked up", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("rabbitmq:\n  host: mq.local\n  user: dep\n  password: rotated\n"), 0o600))

		got := currentBrokerConfig(path, startup, logger)

		assert.Equal(t, "mq.local", got.Host)
		assert.Equal(t, "rotated", got.Password)
		assert.Equal(t, "dep", sessionConfig(got).QueueName)
		assert.True(t, sessionConfig(got).QueueDurable)
	})

	t.Run("unreadable file keeps startup settings", func(t *testing.T) {
		got := currentBrokerConfig(filepath.Join(t.TempDir(), "missing.yaml"), startup, logger)
		assert.Same(t, startup, got)
	})

	t.Run("file without host keeps startup settings", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("worker:\n  binary: wepp\n"), 0o600))
		got := currentBrokerConfig(path, startup, logger)
		assert.Same(t, startup, got)
	})
}
