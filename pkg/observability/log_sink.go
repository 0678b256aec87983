package observability

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogSink creates a sink logging at level.
func NewLogSink(logger *zap.Logger, level zapcore.Level) *LogSink {
	return &LogSink{logger: logger.Named("events"), level: level}
}

// Emit implements Sink. Events carrying an error field are logged at warn or above.
func (s *LogSink) Emit(e Event) {
	level := s.level
	if e.String(FieldError) != "" && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}
	ce := s.logger.Check(level, e.Name())
	if ce == nil {
		return
	}
	ce.Write(eventFields(e)...)
}

func eventFields(e Event) []zap.Field {
	keys := make([]string, 0, len(e))
	for k := range e {
		if k != FieldEvent {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e[k]))
	}
	return fields
}
