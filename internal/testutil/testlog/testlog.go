package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/hipsterbrown/servopid/internal/logging"
)

// Start configures test logging and returns a logger that writes through
// t.Log, so output is shown only for failing tests.
func Start(t *testing.T) *zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()

	logger := zerolog.New(zerolog.NewTestWriter(t)).
		Level(zerolog.DebugLevel).
		With().
		Str("test", t.Name()).
		Logger()
	return &logger
}
