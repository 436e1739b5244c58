package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/edad/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	return cmd
}

func TestConfigureLogger_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		flags    map[string]string
		fallback string
		expected logrus.Level
	}{
		{"config level", nil, "warn", logrus.WarnLevel},
		{"unparsable config level", nil, "chatty", logrus.InfoLevel},
		{"verbose over config", map[string]string{"verbose": "true"}, "error", logrus.DebugLevel},
		{"log-level over verbose", map[string]string{"verbose": "true", "log-level": "trace"}, "info", logrus.TraceLevel},
		{"log-level over config", map[string]string{"log-level": "error"}, "debug", logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFlagCmd()
			for k, v := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, v))
			}

			logger, err := configureLogger(cmd, "verbose", &config.Config{LogLevel: tt.fallback})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestConfigureLogger_InvalidLevel(t *testing.T) {
	cmd := newFlagCmd()
	require.NoError(t, cmd.Flags().Set("log-level", "loud"))

	_, err := configureLogger(cmd, "verbose", config.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level: loud")
}
