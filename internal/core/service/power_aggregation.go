package service

import (
	"github.com/berfenger/iglogger/internal/core/port"

	"go.uber.org/zap"
)

const (
	// PowerBufferSize is the number of per-minute power samples averaged together.
	PowerBufferSize = 15
	// AverageEveryMinutes is the spacing of the average history, in minutes of the hour.
	AverageEveryMinutes = 15
)

// DefaultPowerAggregator keeps the power samples of the current output period.
// The circular buffer holds the last PowerBufferSize samples, unfilled slots count as 0 W.
type DefaultPowerAggregator struct {
	buffer     [PowerBufferSize]float64
	next       int
	history    []float64
	energyDay  float64
	lastMinute int
	Logger     *zap.Logger
}

func NewPowerAggregator(logger *zap.Logger) *DefaultPowerAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	agg := &DefaultPowerAggregator{Logger: logger}
	agg.Reset()
	return agg
}

// Reset clears all state at the start of a new period.
func (a *DefaultPowerAggregator) Reset() {
	a.buffer = [PowerBufferSize]float64{}
	a.next = 0
	a.history = nil
	a.energyDay = 0
	a.lastMinute = -1
}

// AddPowerSample stores a POWER_NOW sample in slot n mod PowerBufferSize.
func (a *DefaultPowerAggregator) AddPowerSample(watts float64) {
	a.buffer[a.next] = watts
	a.next = (a.next + 1) % PowerBufferSize
}

// AddEnergyDay retains the maximum ENERGY_DAY seen in the period.
// The inverter resets its counter to 0 while shutting down, which must not erase the day total.
func (a *DefaultPowerAggregator) AddEnergyDay(wattHours float64) float64 {
	if wattHours >= a.energyDay {
		a.energyDay = wattHours
	}
	return a.energyDay
}

// MaybeAppendAverage appends the buffer mean to the history when the minute is on a 15 minute boundary.
// minuteOfDay is used to append at most once per wall-clock minute.
func (a *DefaultPowerAggregator) MaybeAppendAverage(minuteOfDay int) bool {
	if (minuteOfDay%60)%AverageEveryMinutes != 0 || minuteOfDay == a.lastMinute {
		return false
	}
	a.lastMinute = minuteOfDay

	var sum float64
	for _, w := range a.buffer {
		sum += w
	}
	avg := sum / PowerBufferSize
	a.history = append(a.history, avg)
	a.Logger.Debug("power average stored", zap.Float64("average", avg), zap.Int("count", len(a.history)))
	return true
}

// History returns a copy of the average history.
func (a *DefaultPowerAggregator) History() []float64 {
	history := make([]float64, len(a.history))
	copy(history, a.history)
	return history
}

func (a *DefaultPowerAggregator) EnergyDay() float64 {
	return a.energyDay
}

// Buffer returns the circular buffer in slot order.
func (a *DefaultPowerAggregator) Buffer() [PowerBufferSize]float64 {
	return a.buffer
}

// ensure interface compliance
var _ port.PowerAggregator = (*DefaultPowerAggregator)(nil)
