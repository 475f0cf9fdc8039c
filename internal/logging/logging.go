// Package logging builds the zap logger and the field helpers that keep
// patient identifiers out of log output.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to stderr, keeping stdout free for reports.
// level: debug, info, warn, error (default info); format: json or console.
func New(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "json" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" && format == "json" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

// Patient logs a patient id as a short stable hash
func Patient(id string) zap.Field {
	return zap.String("patient", Hash(id))
}

// Hash returns a short sha256 prefix of an identifier
func Hash(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

// sensitive keys never reach the log sink in clear text
var sensitive = map[string]bool{
	"patient_id": true,
	"name":       true,
	"birth_date": true,
	"notes":      true,
}

// Field returns a string field, redacting keys that can identify a patient
func Field(key, value string) zap.Field {
	if sensitive[key] {
		if key == "patient_id" {
			return zap.String(key, Hash(value))
		}
		return zap.String(key, "[redacted]")
	}
	return zap.String(key, value)
}
