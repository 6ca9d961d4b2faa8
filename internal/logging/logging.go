// Package logging configures the process-wide zap logger.
//
// The MCP transport owns stdout and stderr, so every component logs to a
// file; writing anything else to stdio corrupts the JSON-RPC stream.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogFileName is created in ~/.mcplucene when no path is given.
const DefaultLogFileName = "mcplucene.log"

// New opens (or creates) the log file and returns a production-encoded
// logger writing only to it. An empty path selects
// ~/.mcplucene/mcplucene.log.
func New(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".mcplucene", DefaultLogFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)
	return zap.New(core), nil
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
