package domain

import (
	"time"
)

// EngineState is the polling engine state machine.
type EngineState int

const (
	EngineStateIdle EngineState = iota
	EngineStatePolling
	EngineStateAggregating
)

func (s EngineState) String() string {
	switch s {
	case EngineStateIdle:
		return "idle"
	case EngineStatePolling:
		return "polling"
	case EngineStateAggregating:
		return "aggregating"
	default:
		return "unknown"
	}
}

func (s EngineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeviceIdentity is what the interface card reports about itself and the active inverter.
// Empty Version or ModelName means the query failed during this cycle.
type DeviceIdentity struct {
	Version     string `json:"version,omitempty"`
	ActiveIndex uint8  `json:"active_index"`
	DeviceType  uint8  `json:"device_type"`
	ModelName   string `json:"model_name,omitempty"`
}

// Reading is one telemetry value of a cycle. Present is false when the inverter did not answer.
type Reading struct {
	Command uint8   `json:"command"`
	Name    string  `json:"name"`
	Unit    string  `json:"unit,omitempty"`
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Period is one output period, a calendar day of operation.
type Period struct {
	Start    time.Time
	Identity DeviceIdentity
}

// Day returns the calendar day the period covers, in the location of Start.
func (p Period) Day() time.Time {
	y, m, d := p.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.Start.Location())
}

// SampleSet is the result of one successful polling cycle.
type SampleSet struct {
	Timestamp time.Time      `json:"timestamp"`
	Identity  DeviceIdentity `json:"identity"`
	Readings  []Reading      `json:"readings"`

	PowerNow     float64   `json:"power_now"`
	PowerPresent bool      `json:"power_present"`
	EnergyDay    float64   `json:"energy_day"` // retained day maximum, Wh
	PowerHistory []float64 `json:"power_history"`
	PeriodStart  time.Time `json:"period_start"`
	FirstPowerAt time.Time `json:"first_power_at,omitempty"`
}

// Reading returns the reading for a command.
func (s SampleSet) Reading(command uint8) (Reading, bool) {
	for _, r := range s.Readings {
		if r.Command == command {
			return r, true
		}
	}
	return Reading{}, false
}

// CycleReport summarizes one polling cycle.
type CycleReport struct {
	Timestamp time.Time      `json:"timestamp"`
	State     EngineState    `json:"state"`
	Identity  DeviceIdentity `json:"identity"`
	NewPeriod bool           `json:"new_period"`
	Absent    int            `json:"absent"` // telemetry commands without a valid answer
	Sample    *SampleSet     `json:"sample,omitempty"`
}
