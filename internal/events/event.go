package events

import (
	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/pkg/fronius_ig"
)

func SampleSetToUpdateEvents(sample domain.SampleSet) []any {
	var events []any

	// Inverter State
	events = append(events, TextSensorUpdateEvent{
		GenericSensorUpdateEvent: GenericSensorUpdateEvent{
			Id: SENSOR_ID_INVERTER_STATE,
		},
		Value: INVERTER_STATE_RUNNING,
	})
	// Interface card version
	if sample.Identity.Version != "" {
		events = append(events, TextSensorUpdateEvent{
			GenericSensorUpdateEvent: GenericSensorUpdateEvent{
				Id: SENSOR_ID_INTERFACE_VERSION,
			},
			Value: sample.Identity.Version,
		})
	}
	// Retained day energy
	events = append(events, SensorUpdateEvent{
		GenericSensorUpdateEvent: GenericSensorUpdateEvent{
			Id: SENSOR_ID_ENERGY_DAY_RETAINED,
		},
		Value:    sample.EnergyDay,
		Decimals: 0,
	})
	// Last 15 minute average
	if n := len(sample.PowerHistory); n > 0 {
		events = append(events, SensorUpdateEvent{
			GenericSensorUpdateEvent: GenericSensorUpdateEvent{
				Id: SENSOR_ID_POWER_AVERAGE,
			},
			Value:    sample.PowerHistory[n-1],
			Decimals: 1,
		})
	}

	// Telemetry, absent readings are not published
	for _, r := range sample.Readings {
		if !r.Present {
			continue
		}
		t, ok := fronius_ig.TelemetryByCommand(r.Command)
		if !ok {
			continue
		}
		events = append(events, SensorUpdateEvent{
			GenericSensorUpdateEvent: GenericSensorUpdateEvent{
				Id: TelemetrySensorId(t),
			},
			Value:    r.Value,
			Decimals: 3,
		})
	}

	return events
}

func IdleUpdateEvents() []any {
	return []any{
		TextSensorUpdateEvent{
			GenericSensorUpdateEvent: GenericSensorUpdateEvent{
				Id: SENSOR_ID_INVERTER_STATE,
			},
			Value: INVERTER_STATE_IDLE,
		},
	}
}
