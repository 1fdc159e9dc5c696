package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"
	"github.com/berfenger/iglogger/internal/core/service"
	"github.com/berfenger/iglogger/pkg/fronius_ig"

	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const DefaultInterval = 60 * time.Second

var ErrInvalidInterval = errors.New("poller: interval must be positive")

// Engine drives the polling cycle against a single interface card.
// It is not safe for concurrent use: session, transport and aggregation state belong to the goroutine running it.
type Engine struct {
	session    port.InverterSession
	sink       port.TelemetrySink
	aggregator port.PowerAggregator
	observers  []port.CycleObserver
	trigger    *quartz.SimpleTrigger

	state        domain.EngineState
	period       *domain.Period
	firstPowerAt time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSleeper replaces the wait between cycles, used by tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

func WithObserver(observer port.CycleObserver) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, observer)
	}
}

func WithAggregator(aggregator port.PowerAggregator) Option {
	return func(e *Engine) {
		e.aggregator = aggregator
	}
}

func NewEngine(session port.InverterSession, sink port.TelemetrySink, interval time.Duration, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		session: session,
		sink:    sink,
		trigger: quartz.NewSimpleTrigger(interval),
		state:   domain.EngineStateIdle,
		now:     time.Now,
		sleep:   sleepContext,
		logger:  logger.With(zap.String("component", "poller")),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.aggregator == nil {
		e.aggregator = service.NewPowerAggregator(e.logger)
	}
	return e, nil
}

func (e *Engine) State() domain.EngineState {
	return e.state
}

// Run polls until ctx is cancelled or a fatal transport error occurs.
// Ticks are scheduled from the previous scheduled tick, not from the end of the previous cycle,
// so cycle duration does not accumulate drift. A late tick runs immediately; if several ticks were
// missed they collapse into that single cycle.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("polling started", zap.String("schedule", e.trigger.Description()))
	next := e.now()
	for {
		if ctx.Err() != nil {
			e.logger.Info("polling stopped")
			return nil
		}

		if _, err := e.RunCycle(ctx, e.now()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				e.logger.Info("polling stopped")
				return nil
			}
			e.logger.Error("polling aborted", zap.Error(err))
			return err
		}

		now := e.now()
		tick, skipped, err := e.nextTick(next, now)
		if err != nil {
			return err
		}
		next = tick

		if wait := next.Sub(now); wait > 0 {
			if err := e.sleep(ctx, wait); err != nil {
				e.logger.Info("polling stopped")
				return nil
			}
		} else {
			e.logger.Warn("cycle overran its interval, polling immediately",
				zap.Duration("late", -wait),
				zap.Int("skipped", skipped))
		}
	}
}

// nextTick returns the tick following prev on the schedule grid. When several ticks already passed,
// only the latest of them is returned and the others are counted as skipped.
func (e *Engine) nextTick(prev, now time.Time) (time.Time, int, error) {
	nextNano, err := e.trigger.NextFireTime(prev.UnixNano())
	if err != nil {
		return time.Time{}, 0, err
	}
	skipped := 0
	for {
		after, err := e.trigger.NextFireTime(nextNano)
		if err != nil {
			return time.Time{}, 0, err
		}
		if after > now.UnixNano() {
			break
		}
		nextNano = after
		skipped++
	}
	return time.Unix(0, nextNano), skipped, nil
}

// RunCycle performs one polling cycle at timestamp now.
// Only fatal transport errors and context cancellation are returned; everything else degrades the sample.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (domain.CycleReport, error) {
	e.state = domain.EngineStatePolling
	report := domain.CycleReport{Timestamp: now}

	// identity
	version, err := e.session.GetVersion()
	if fronius_ig.IsFatal(err) {
		return report, err
	}
	if err != nil {
		e.logger.Warn("could not get interface card version", zap.Error(err))
	} else {
		report.Identity.Version = version.String()
	}

	index, active, err := e.session.GetActiveDevice()
	if fronius_ig.IsFatal(err) {
		return report, err
	}
	if err != nil {
		e.logger.Warn("could not get active inverter", zap.Error(err))
	}
	if err != nil || !active {
		return e.idle(report), nil
	}
	report.Identity.ActiveIndex = index

	deviceType, err := e.session.GetDeviceType(index)
	if fronius_ig.IsFatal(err) {
		return report, err
	}
	if err != nil {
		e.logger.Warn("could not get device type", zap.Uint8("index", index), zap.Error(err))
	} else {
		report.Identity.DeviceType = uint8(deviceType)
		report.Identity.ModelName = deviceType.ModelName()
	}

	if e.period == nil || !sameDay(e.period.Start, now) {
		e.startPeriod(now, report.Identity)
		report.NewPeriod = true
	}

	// telemetry
	readings := make([]domain.Reading, 0, len(fronius_ig.TelemetryCommands))
	for _, t := range fronius_ig.TelemetryCommands {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		reading := domain.Reading{Command: t.Command, Name: t.Name, Unit: t.Unit}
		value, err := e.session.GetNumericParameter(index, t.Command)
		if fronius_ig.IsFatal(err) {
			return report, err
		}
		if err != nil {
			e.logger.Debug("reading absent", zap.String("name", t.Name), zap.Error(err))
			report.Absent++
		} else {
			reading.Value = value.Float64()
			reading.Present = true
		}
		readings = append(readings, reading)
	}

	e.state = domain.EngineStateAggregating
	sample := e.aggregate(now, report.Identity, readings)
	report.Sample = &sample
	report.State = e.state

	if err := e.sink.Publish(sample); err != nil {
		e.logger.Error("could not publish sample", zap.Error(err))
	}
	e.notify(report)
	return report, nil
}

func (e *Engine) idle(report domain.CycleReport) domain.CycleReport {
	if e.state != domain.EngineStateIdle {
		e.logger.Info("no active inverter")
	}
	e.state = domain.EngineStateIdle
	report.State = e.state
	if err := e.sink.Idle(); err != nil {
		e.logger.Error("could not close output", zap.Error(err))
	}
	e.notify(report)
	return report
}

func (e *Engine) startPeriod(now time.Time, identity domain.DeviceIdentity) {
	e.aggregator.Reset()
	e.firstPowerAt = time.Time{}
	e.period = &domain.Period{Start: now, Identity: identity}
	e.logger.Info("new output period",
		zap.Time("start", now),
		zap.String("version", identity.Version),
		zap.String("model", identity.ModelName))
	if err := e.sink.StartPeriod(*e.period); err != nil {
		e.logger.Error("could not start output period", zap.Error(err))
	}
}

func (e *Engine) aggregate(now time.Time, identity domain.DeviceIdentity, readings []domain.Reading) domain.SampleSet {
	sample := domain.SampleSet{
		Timestamp:   now,
		Identity:    identity,
		Readings:    readings,
		PeriodStart: e.period.Start,
	}
	for _, r := range readings {
		if !r.Present {
			continue
		}
		switch r.Command {
		case fronius_ig.CommandPowerNow:
			if e.firstPowerAt.IsZero() {
				e.firstPowerAt = now
			}
			e.aggregator.AddPowerSample(r.Value)
			e.aggregator.MaybeAppendAverage(now.Hour()*60 + now.Minute())
			sample.PowerNow = r.Value
			sample.PowerPresent = true
		case fronius_ig.CommandEnergyDay:
			e.aggregator.AddEnergyDay(r.Value)
		}
	}
	sample.EnergyDay = e.aggregator.EnergyDay()
	sample.PowerHistory = e.aggregator.History()
	sample.FirstPowerAt = e.firstPowerAt
	return sample
}

func (e *Engine) notify(report domain.CycleReport) {
	for _, o := range e.observers {
		o.CycleCompleted(report)
	}
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
