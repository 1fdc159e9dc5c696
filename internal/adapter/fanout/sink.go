package fanout

import (
	"errors"

	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"

	"go.uber.org/zap"
)

type namedSink struct {
	name string
	sink port.TelemetrySink
}

// Sink forwards every call to all registered sinks. A failing sink does not prevent delivery to the others.
type Sink struct {
	sinks  []namedSink
	logger *zap.Logger
}

func NewSink(logger *zap.Logger) *Sink {
	return &Sink{
		logger: logger.With(zap.String("component", "fanout")),
	}
}

func (s *Sink) Add(name string, sink port.TelemetrySink) *Sink {
	s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
	return s
}

func (s *Sink) Len() int {
	return len(s.sinks)
}

func (s *Sink) StartPeriod(period domain.Period) error {
	return s.each("start period", func(sink port.TelemetrySink) error {
		return sink.StartPeriod(period)
	})
}

func (s *Sink) Publish(sample domain.SampleSet) error {
	return s.each("publish", func(sink port.TelemetrySink) error {
		return sink.Publish(sample)
	})
}

func (s *Sink) Idle() error {
	return s.each("idle", func(sink port.TelemetrySink) error {
		return sink.Idle()
	})
}

func (s *Sink) Close() error {
	return s.each("close", func(sink port.TelemetrySink) error {
		return sink.Close()
	})
}

func (s *Sink) each(op string, f func(port.TelemetrySink) error) error {
	var errs []error
	for _, ns := range s.sinks {
		if err := f(ns.sink); err != nil {
			s.logger.Warn("sink failed", zap.String("sink", ns.name), zap.String("op", op), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensure interface compliance
var _ port.TelemetrySink = (*Sink)(nil)
