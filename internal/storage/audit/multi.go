package audit

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/rebalancer/internal/domain"
	"go.uber.org/zap"
)

// Sink receives audit records.
type Sink interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}

// Multi fans a record out to several sinks. Every sink is attempted; the
// first error is returned.
type Multi struct {
	l     *zap.Logger
	sinks []Sink
}

// NewMulti combines sinks, skipping nil ones.
func NewMulti(l *zap.Logger, sinks ...Sink) *Multi {
	if l == nil {
		l = zap.NewNop()
	}
	m := &Multi{l: l}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record writes rec to every sink.
func (m *Multi) Record(ctx context.Context, rec domain.AuditRecord) error {
	var first error
	for i, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			m.l.Warn("audit sink failed", zap.Int("sink", i), zap.String("id", rec.ID), zap.Error(err))
			if first == nil {
				first = errors.Wrapf(err, "audit sink %d", i)
			}
		}
	}
	return first
}

// LogSink writes records to the logger.
type LogSink struct {
	l *zap.Logger
}

// NewLogSink returns a sink logging at info level.
func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{l: l}
}

// Record logs rec.
func (s *LogSink) Record(_ context.Context, rec domain.AuditRecord) error {
	s.l.Info("audit",
		zap.String("id", rec.ID),
		zap.Time("ts", rec.Timestamp),
		zap.String("stage", string(rec.Stage)),
		zap.String("kind", rec.Kind),
		zap.Strings("symbols", rec.Symbols),
		zap.String("amount", rec.Amount.String()),
		zap.String("reason", rec.Reason),
		zap.Bool("success", rec.Success))
	return nil
}
