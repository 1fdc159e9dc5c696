package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"
	"github.com/berfenger/iglogger/pkg/fronius_ig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	periods    []domain.Period
	samples    []domain.SampleSet
	idles      int
	closed     bool
	publishErr error
	onPublish  func()
}

func (s *recordingSink) StartPeriod(period domain.Period) error {
	s.periods = append(s.periods, period)
	return nil
}

func (s *recordingSink) Publish(sample domain.SampleSet) error {
	s.samples = append(s.samples, sample)
	if s.onPublish != nil {
		s.onPublish()
	}
	return s.publishErr
}

func (s *recordingSink) Idle() error {
	s.idles++
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

var _ port.TelemetrySink = (*recordingSink)(nil)

type recordingObserver struct {
	reports []domain.CycleReport
}

func (o *recordingObserver) CycleCompleted(report domain.CycleReport) {
	o.reports = append(o.reports, report)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fronius_ig.SimulatedInverter, *recordingSink) {
	sim := fronius_ig.NewSimulatedInverter()
	session := fronius_ig.NewSession(fronius_ig.NewTransport(sim, nil), nil)
	sink := &recordingSink{}
	engine, err := NewEngine(session, sink, DefaultInterval, zap.NewNop(), opts...)
	require.NoError(t, err)
	return engine, sim, sink
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.June, 21, hour, minute, 0, 0, time.Local)
}

func TestRunCycle(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	engine, sim, sink := newTestEngine(t)

	report, err := engine.RunCycle(context.Background(), at(10, 7))
	require.NoError(err)

	assert.Equal(domain.EngineStateAggregating, report.State)
	assert.True(report.NewPeriod)
	assert.Equal(0, report.Absent)
	assert.Equal("2.3.4", report.Identity.Version)
	assert.Equal("FRONIUS IG 30", report.Identity.ModelName)
	assert.EqualValues(1, report.Identity.ActiveIndex)
	assert.Equal(len(fronius_ig.TelemetryCommands), sim.NumericRequests())

	require.Len(sink.periods, 1)
	assert.Equal(at(10, 7), sink.periods[0].Start)
	assert.Equal(report.Identity, sink.periods[0].Identity)

	require.Len(sink.samples, 1)
	sample := sink.samples[0]
	assert.Len(sample.Readings, len(fronius_ig.TelemetryCommands))
	assert.Equal(1500.0, sample.PowerNow)
	assert.True(sample.PowerPresent)
	assert.Equal(12000.0, sample.EnergyDay)
	assert.Equal(at(10, 7), sample.FirstPowerAt)
	assert.Empty(sample.PowerHistory, "10:07 is not on a quarter hour")

	freq, ok := sample.Reading(fronius_ig.CommandACFrequencyNow)
	assert.True(ok)
	assert.InDelta(50.01, freq.Value, 1e-9)
	assert.Equal("Hz", freq.Unit)
}

func TestRunCycleIdle(t *testing.T) {

	assert := assert.New(t)

	observer := &recordingObserver{}
	engine, sim, sink := newTestEngine(t, WithObserver(observer))
	sim.SetActive(false)

	report, err := engine.RunCycle(context.Background(), at(22, 0))
	assert.NoError(err)
	assert.Equal(domain.EngineStateIdle, report.State)
	assert.Equal(domain.EngineStateIdle, engine.State())
	assert.Equal(0, sim.NumericRequests(), "no telemetry reads while idle")
	assert.Equal(1, sink.idles)
	assert.Empty(sink.samples)
	assert.Empty(sink.periods)
	assert.Len(observer.reports, 1)
}

func TestRunCycleNoAnswerToActiveQueryIsIdle(t *testing.T) {

	engine, sim, sink := newTestEngine(t)
	sim.Silent = true

	report, err := engine.RunCycle(context.Background(), at(12, 0))
	assert.NoError(t, err)
	assert.Equal(t, domain.EngineStateIdle, report.State)
	assert.Equal(t, 1, sink.idles)
}

func TestRunCycleAbsentReadings(t *testing.T) {

	assert := assert.New(t)

	engine, sim, sink := newTestEngine(t)
	delete(sim.Readings, fronius_ig.CommandPhase3Voltage)
	sim.Corrupt[fronius_ig.CommandPowerNow] = true
	sim.SetReading(fronius_ig.CommandAmbientTemperature, fronius_ig.NumericReading{Mantissa: 25, Exponent: 11})

	report, err := engine.RunCycle(context.Background(), at(9, 30))
	assert.NoError(err)
	assert.Equal(3, report.Absent)

	sample := sink.samples[0]
	for _, cmd := range []byte{fronius_ig.CommandPhase3Voltage, fronius_ig.CommandPowerNow, fronius_ig.CommandAmbientTemperature} {
		r, ok := sample.Reading(cmd)
		assert.True(ok)
		assert.False(r.Present, "command 0x%02X", cmd)
	}
	assert.False(sample.PowerPresent)
	assert.True(sample.FirstPowerAt.IsZero())
	assert.Empty(sample.PowerHistory, "no power sample, no average")
}

func TestRunCycleIdentityFailuresAreRecoverable(t *testing.T) {

	assert := assert.New(t)

	engine, sim, sink := newTestEngine(t)
	sim.VersionLost = true
	sim.Type = 0x01

	report, err := engine.RunCycle(context.Background(), at(9, 0))
	assert.NoError(err)
	assert.Empty(report.Identity.Version)
	assert.Equal(fronius_ig.DeviceTypeUnknownStr, report.Identity.ModelName)
	assert.Len(sink.samples, 1)
}

func TestRunCycleFatalWrite(t *testing.T) {

	engine, sim, sink := newTestEngine(t)
	sim.WriteErr = errors.New("device unplugged")

	_, err := engine.RunCycle(context.Background(), at(9, 0))
	assert.True(t, fronius_ig.IsFatal(err))
	assert.Empty(t, sink.samples)
}

func TestRunCycleSinkErrorDoesNotAbort(t *testing.T) {

	engine, _, sink := newTestEngine(t)
	sink.publishErr = errors.New("disk full")

	_, err := engine.RunCycle(context.Background(), at(9, 0))
	assert.NoError(t, err)
	_, err = engine.RunCycle(context.Background(), at(9, 1))
	assert.NoError(t, err)
	assert.Len(t, sink.samples, 2)
}

func TestDayRollover(t *testing.T) {

	assert := assert.New(t)

	engine, sim, sink := newTestEngine(t)

	_, err := engine.RunCycle(context.Background(), at(23, 45))
	assert.NoError(err)
	assert.Len(sink.samples[0].PowerHistory, 1)

	sim.SetReading(fronius_ig.CommandEnergyDay, fronius_ig.NumericReading{Mantissa: 0})
	report, err := engine.RunCycle(context.Background(), at(23, 59))
	assert.NoError(err)
	assert.False(report.NewPeriod)
	assert.Equal(12000.0, report.Sample.EnergyDay, "day energy retained within the day")

	nextDay := at(23, 59).Add(2 * time.Minute)
	report, err = engine.RunCycle(context.Background(), nextDay)
	assert.NoError(err)
	assert.True(report.NewPeriod)
	assert.Len(sink.periods, 2)
	assert.Equal(nextDay, sink.periods[1].Start)
	assert.Equal(0.0, report.Sample.EnergyDay, "fresh period")
	assert.Empty(report.Sample.PowerHistory)
	assert.Equal(nextDay, report.Sample.PeriodStart)
}

func TestIdleKeepsPeriod(t *testing.T) {

	assert := assert.New(t)

	engine, sim, sink := newTestEngine(t)

	_, err := engine.RunCycle(context.Background(), at(12, 0))
	assert.NoError(err)
	sim.SetActive(false)
	_, err = engine.RunCycle(context.Background(), at(12, 1))
	assert.NoError(err)
	sim.SetActive(true)
	report, err := engine.RunCycle(context.Background(), at(12, 2))
	assert.NoError(err)

	assert.False(report.NewPeriod, "same day resumes the open period")
	assert.Len(sink.periods, 1)
	assert.Equal(1, sink.idles)
	assert.Len(report.Sample.PowerHistory, 1)
}

func TestAveragesAppendedOnQuarterHours(t *testing.T) {

	engine, _, sink := newTestEngine(t)

	start := at(10, 0)
	for i := 0; i < 31; i++ {
		_, err := engine.RunCycle(context.Background(), start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	// 10:00 has one sample of 1500 W, 10:15 and 10:30 a full buffer
	last := sink.samples[len(sink.samples)-1]
	assert.Equal(t, []float64{100, 1500, 1500}, last.PowerHistory)
}

func TestRunDriftCorrected(t *testing.T) {

	assert := assert.New(t)

	clock := at(8, 0)
	var sleeps []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, _, sink := newTestEngine(t,
		WithClock(func() time.Time { return clock }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			clock = clock.Add(d)
			if len(sleeps) == 3 {
				cancel()
				return ctx.Err()
			}
			return nil
		}))
	// every cycle takes two seconds
	sink.onPublish = func() { clock = clock.Add(2 * time.Second) }

	err := engine.Run(ctx)
	assert.NoError(err)
	assert.Equal([]time.Duration{58 * time.Second, 58 * time.Second, 58 * time.Second}, sleeps)
	assert.Len(sink.samples, 3)
	assert.Equal(at(8, 1), sink.samples[1].Timestamp)
	assert.Equal(at(8, 2), sink.samples[2].Timestamp)
}

func TestRunLateTickRunsImmediately(t *testing.T) {

	assert := assert.New(t)

	clock := at(8, 0)
	var sleeps []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, _, sink := newTestEngine(t,
		WithClock(func() time.Time { return clock }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			clock = clock.Add(d)
			return ctx.Err()
		}))
	sink.onPublish = func() {
		if len(sink.samples) == 1 {
			clock = clock.Add(70 * time.Second)
		}
		if len(sink.samples) == 3 {
			cancel()
		}
	}

	err := engine.Run(ctx)
	assert.NoError(err)
	assert.Len(sink.samples, 3)
	assert.Equal(at(8, 1).Add(10*time.Second), sink.samples[1].Timestamp, "late tick runs without waiting")
	assert.Equal([]time.Duration{50 * time.Second, 60 * time.Second}, sleeps, "schedule keeps its grid")
}

func TestRunLongOverrunSkipsMissedTicks(t *testing.T) {

	assert := assert.New(t)

	clock := at(8, 0)
	var sleeps []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, _, sink := newTestEngine(t,
		WithClock(func() time.Time { return clock }),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			clock = clock.Add(d)
			return ctx.Err()
		}))
	sink.onPublish = func() {
		if len(sink.samples) == 1 {
			// host suspended for five intervals
			clock = clock.Add(5 * time.Minute)
		}
		if len(sink.samples) == 3 {
			cancel()
		}
	}

	err := engine.Run(ctx)
	assert.NoError(err)

	var stamps []time.Time
	for _, s := range sink.samples {
		stamps = append(stamps, s.Timestamp)
	}
	assert.Equal([]time.Time{at(8, 0), at(8, 5), at(8, 6)}, stamps, "missed ticks are not replayed")
	assert.Equal([]time.Duration{60 * time.Second, 60 * time.Second}, sleeps)
}

func TestRunStopsOnFatalError(t *testing.T) {

	engine, sim, _ := newTestEngine(t, WithSleeper(func(context.Context, time.Duration) error { return nil }))
	sim.ShortWrite = true

	err := engine.Run(context.Background())
	assert.ErrorIs(t, err, fronius_ig.ErrWriteFailed)
}

func TestNewEngineRejectsInvalidInterval(t *testing.T) {

	_, err := NewEngine(nil, nil, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
