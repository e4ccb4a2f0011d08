// Package logging builds the zap loggers used by the ingest service.
// Pipeline components take a named child of the root logger (fetch,
// media, worker, api) so their output can be filtered per stage.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger. Development mode emits colored console
// output; production emits JSON with stacktraces at error level. Both
// stamp entries under the "ts" key so log shippers agree on the field.
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
