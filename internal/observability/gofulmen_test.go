package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		observability.InitCLILogger("forgeiq-test", true)
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("cli debug line", zap.String("test", "value"))
	})

	t.Run("Server logger", func(t *testing.T) {
		logger, err := observability.NewServerLogger(observability.ServerLoggerOptions{
			Service:     "forgeiq-test",
			Level:       "debug",
			Environment: "test",
			Namespace:   "forgeiq",
		})
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("structured line", zap.String("component", "test"), zap.Int("attempt", 1))
	})

	t.Run("Logger prefers server", func(t *testing.T) {
		prev := observability.ServerLogger
		t.Cleanup(func() { observability.ServerLogger = prev })

		observability.InitCLILogger("forgeiq-test", false)
		observability.ServerLogger = nil
		assert.Same(t, observability.CLILogger, observability.Logger())

		observability.InitServerLogger(observability.ServerLoggerOptions{Service: "forgeiq-test"})
		assert.Same(t, observability.ServerLogger, observability.Logger())
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", observability.ParseLogLevel("Debug"))
	assert.Equal(t, "WARN", observability.ParseLogLevel("warning"))
	assert.Equal(t, "TRACE", observability.ParseLogLevel(" trace "))
	assert.Equal(t, "INFO", observability.ParseLogLevel("chatty"))
}

func TestEmbeddedCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}
