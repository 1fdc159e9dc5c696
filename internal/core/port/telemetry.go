package port

import (
	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/pkg/fronius_ig"
)

// TelemetrySink receives the output of the polling engine.
type TelemetrySink interface {
	// StartPeriod opens a new output period, closing the previous one.
	StartPeriod(period domain.Period) error
	Publish(sample domain.SampleSet) error
	// Idle is signalled when no inverter is active. Open output targets should be closed.
	Idle() error
	Close() error
}

// InverterSession is the request vocabulary of the interface card. *fronius_ig.Session implements it.
type InverterSession interface {
	GetVersion() (fronius_ig.Version, error)
	GetActiveDevice() (index byte, active bool, err error)
	GetDeviceType(index byte) (fronius_ig.DeviceType, error)
	GetNumericParameter(index byte, command byte) (fronius_ig.NumericReading, error)
}

// PowerAggregator keeps the per-period power and energy aggregation.
type PowerAggregator interface {
	Reset()
	AddPowerSample(watts float64)
	AddEnergyDay(wattHours float64) float64
	MaybeAppendAverage(minuteOfDay int) bool
	History() []float64
	EnergyDay() float64
}

var _ InverterSession = (*fronius_ig.Session)(nil)

// CycleObserver is notified after every polling cycle, idle cycles included.
type CycleObserver interface {
	CycleCompleted(report domain.CycleReport)
}
