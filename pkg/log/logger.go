package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const serviceName = "connector-sync"

//nolint:gochecknoglobals
var Logger zerolog.Logger

func Init(appID string, levelStr string) {
	zerolog.SetGlobalLevel(ParseLevel(levelStr))

	Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Str("app_id", appID).Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

//nolint:gochecknoinits
func init() {
	if isTestSilentMode() {
		Logger = zerolog.New(io.Discard)
		zerolog.SetGlobalLevel(zerolog.Disabled)
	} else {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		Logger = Logger.With().Str("service", serviceName).Logger()
	}
}

func isTestSilentMode() bool {
	if isTestMode() &&
		(os.Getenv("TEST_SILENT") == "1" || os.Getenv("TEST_SILENT") == "true") {
		return true
	}

	return false
}

func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.Contains(arg, "test") || strings.HasSuffix(arg, ".test") {
			return true
		}
	}
	return false
}
