package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"
	"github.com/berfenger/iglogger/pkg/fronius_ig"

	"go.uber.org/zap"
)

const (
	FileName        = "data.csv"
	TimestampLayout = "2006-01-02 15:04:05"
	TimestampColumn = "TIMESTAMP"
)

// DayDir returns <dir>/YYYY/MM/DD for the calendar day of t.
func DayDir(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006"), t.Format("01"), t.Format("02"))
}

// Writer appends one CSV row per sample to <dir>/YYYY/MM/DD/data.csv.
// A new file starts with the interface card version, the inverter model and the column header row.
type Writer struct {
	dir    string
	period *domain.Period
	file   *os.File
	csv    *csv.Writer
	logger *zap.Logger
}

func NewWriter(dir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		dir:    dir,
		logger: logger.With(zap.String("component", "csvlog")),
	}
}

// Path of the file for the current period, empty when no period started yet.
func (w *Writer) Path() string {
	if w.period == nil {
		return ""
	}
	return filepath.Join(DayDir(w.dir, w.period.Day()), FileName)
}

func (w *Writer) StartPeriod(period domain.Period) error {
	if err := w.closeFile(); err != nil {
		w.logger.Warn("could not close previous file", zap.Error(err))
	}
	w.period = &period
	return w.open()
}

func (w *Writer) Publish(sample domain.SampleSet) error {
	if w.period == nil {
		w.period = &domain.Period{Start: sample.PeriodStart, Identity: sample.Identity}
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	if err := w.csv.Write(Row(sample)); err != nil {
		return fmt.Errorf("csvlog: write row: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Idle closes the file. The next sample reopens it in append mode.
func (w *Writer) Idle() error {
	return w.closeFile()
}

func (w *Writer) Close() error {
	return w.closeFile()
}

func (w *Writer) open() error {
	path := w.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("csvlog: %w", err)
	}
	newFile := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		newFile = true
	} else if err != nil {
		return fmt.Errorf("csvlog: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csvlog: %w", err)
	}
	w.file = f
	w.csv = csv.NewWriter(f)

	if newFile {
		w.logger.Info("created data file", zap.String("path", path))
		if err := w.writePreamble(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePreamble() error {
	identity := w.period.Identity
	model := identity.ModelName
	if model == "" {
		model = fronius_ig.DeviceTypeUnknownStr
	}
	if _, err := fmt.Fprintf(w.file, "Software version: %s\nInverter model: %s\n", identity.Version, model); err != nil {
		return fmt.Errorf("csvlog: write preamble: %w", err)
	}
	if err := w.csv.Write(Header()); err != nil {
		return fmt.Errorf("csvlog: write header: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	err := w.file.Close()
	w.file = nil
	w.csv = nil
	return err
}

// Header is the column header row: timestamp followed by every telemetry name.
func Header() []string {
	header := make([]string, 0, len(fronius_ig.TelemetryCommands)+1)
	header = append(header, TimestampColumn)
	for _, t := range fronius_ig.TelemetryCommands {
		header = append(header, t.Name)
	}
	return header
}

// Row formats a sample. Absent readings are empty cells.
func Row(sample domain.SampleSet) []string {
	row := make([]string, 0, len(fronius_ig.TelemetryCommands)+1)
	row = append(row, sample.Timestamp.Format(TimestampLayout))
	for _, t := range fronius_ig.TelemetryCommands {
		r, ok := sample.Reading(t.Command)
		if !ok || !r.Present {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(r.Value, 'f', -1, 64))
	}
	return row
}

// ensure interface compliance
var _ port.TelemetrySink = (*Writer)(nil)
