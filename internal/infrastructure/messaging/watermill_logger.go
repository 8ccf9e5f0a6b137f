package messaging

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/collegeconnect/collegeconnect-hub/pkg/logger"
)

// zapAdapter routes watermill logs into the application logger.
type zapAdapter struct {
	log *logger.Logger
}

// NewLoggerAdapter wraps log as a watermill.LoggerAdapter.
func NewLoggerAdapter(log *logger.Logger) watermill.LoggerAdapter {
	if log == nil {
		log = logger.Nop()
	}
	return &zapAdapter{log: log.With(logger.Component("watermill"))}
}

func fields(f watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(f))
	for k, v := range f {
		out = append(out, logger.Any(k, v))
	}
	return out
}

func (a *zapAdapter) Error(msg string, err error, f watermill.LogFields) {
	a.log.Error(msg, append(fields(f), logger.Err(err))...)
}

func (a *zapAdapter) Info(msg string, f watermill.LogFields) {
	a.log.Info(msg, fields(f)...)
}

func (a *zapAdapter) Debug(msg string, f watermill.LogFields) {
	a.log.Debug(msg, fields(f)...)
}

// Trace is mapped to debug; zap has no trace level.
func (a *zapAdapter) Trace(msg string, f watermill.LogFields) {
	a.log.Debug(msg, fields(f)...)
}

func (a *zapAdapter) With(f watermill.LogFields) watermill.LoggerAdapter {
	return &zapAdapter{log: a.log.With(fields(f)...)}
}
