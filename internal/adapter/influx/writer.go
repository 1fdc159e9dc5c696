package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/berfenger/iglogger/internal/config"
	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"
	"github.com/berfenger/iglogger/internal/events"
	"github.com/berfenger/iglogger/pkg/fronius_ig"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	DefaultMeasurement = "inverter"
	defaultTimeout     = 5 * time.Second
)

// PointWriter is the subset of the blocking write API used by Writer.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Writer stores one point per sample set in an InfluxDB bucket.
type Writer struct {
	writer      PointWriter
	closer      func()
	measurement string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewWriter(cfg config.InfluxConfig, logger *zap.Logger) *Writer {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	w := NewWriterWithAPI(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg, logger)
	w.closer = client.Close
	return w
}

func NewWriterWithAPI(api PointWriter, cfg config.InfluxConfig, logger *zap.Logger) *Writer {
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Writer{
		writer:      api,
		measurement: measurement,
		timeout:     timeout,
		logger:      logger.With(zap.String("component", "influx")),
	}
}

func (w *Writer) StartPeriod(period domain.Period) error {
	w.logger.Debug("new period", zap.Time("start", period.Start))
	return nil
}

func (w *Writer) Publish(sample domain.SampleSet) error {
	point := Point(w.measurement, sample)
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.writer.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx: write point: %w", err)
	}
	return nil
}

func (w *Writer) Idle() error {
	return nil
}

func (w *Writer) Close() error {
	if w.closer != nil {
		w.closer()
	}
	return nil
}

// Point builds the point of a sample set. Absent readings have no field.
func Point(measurement string, sample domain.SampleSet) *write.Point {
	model := sample.Identity.ModelName
	if model == "" {
		model = fronius_ig.DeviceTypeUnknownStr
	}
	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("model", model).
		AddTag("index", strconv.Itoa(int(sample.Identity.ActiveIndex))).
		AddField(events.SENSOR_ID_ENERGY_DAY_RETAINED, sample.EnergyDay).
		SetTime(sample.Timestamp)
	if n := len(sample.PowerHistory); n > 0 {
		p.AddField(events.SENSOR_ID_POWER_AVERAGE, sample.PowerHistory[n-1])
	}
	for _, r := range sample.Readings {
		if !r.Present {
			continue
		}
		if t, ok := fronius_ig.TelemetryByCommand(r.Command); ok {
			p.AddField(events.TelemetrySensorId(t), r.Value)
		}
	}
	return p
}

// ensure interface compliance
var _ port.TelemetrySink = (*Writer)(nil)
