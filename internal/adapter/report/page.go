package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/berfenger/iglogger/internal/adapter/csvlog"
	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"

	"go.uber.org/zap"
)

const (
	FileName = "index.html"

	chartWidth  = 800
	chartHeight = 370
	chartMargin = 40
	// the chart spans 15 hours from the first power sample of the day
	chartHours = 15.0
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Inverter {{.Day}}</title></head>
<body>
Current Power:      {{.PowerNow}} W<br>
Today's Power:      {{.EnergyKWh}} kWh<br>
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Chart.Width}}" height="{{.Chart.Height}}" viewBox="0 0 {{.Chart.Width}} {{.Chart.Height}}">
<text x="{{.Chart.Margin}}" y="20">Power (watts)</text>
<line x1="{{.Chart.Margin}}" y1="{{.Chart.Bottom}}" x2="{{.Chart.Right}}" y2="{{.Chart.Bottom}}" stroke="black"/>
<line x1="{{.Chart.Margin}}" y1="{{.Chart.Margin}}" x2="{{.Chart.Margin}}" y2="{{.Chart.Bottom}}" stroke="black"/>
<text x="2" y="{{.Chart.Margin}}">{{.Chart.MaxWatts}}</text>
<text x="{{.Chart.Margin}}" y="{{.Chart.LabelY}}">{{.Chart.StartLabel}}</text>
<text x="{{.Chart.Right}}" y="{{.Chart.LabelY}}" text-anchor="end">{{.Chart.StopLabel}}</text>
{{if .Chart.Points}}<polyline fill="none" stroke="steelblue" stroke-width="2" points="{{.Chart.Points}}"/>{{end}}
</svg><br>
Raw data:           <a href="{{.DataFile}}">{{.DataFile}}</a><br>
Last update: {{.LastUpdate}}<br>
</body>
</html>
`))

type chart struct {
	Width, Height, Margin int
	Bottom, Right, LabelY int
	MaxWatts              int
	StartLabel, StopLabel string
	Points                string
}

type page struct {
	Day        string
	PowerNow   int
	EnergyKWh  string
	Chart      chart
	DataFile   string
	LastUpdate string
}

// Page writes <dir>/YYYY/MM/DD/index.html after every sample.
type Page struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

func NewPage(dir string, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{
		dir:    dir,
		now:    time.Now,
		logger: logger.With(zap.String("component", "report")),
	}
}

func (p *Page) StartPeriod(domain.Period) error {
	return nil
}

func (p *Page) Publish(sample domain.SampleSet) error {
	day := sample.PeriodStart
	if day.IsZero() {
		day = sample.Timestamp
	}
	path := filepath.Join(csvlog.DayDir(p.dir, day), FileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	var buf bytes.Buffer
	if err := Render(&buf, sample, p.now()); err != nil {
		return err
	}
	// write to a temporary file first so readers never see a partial page
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	p.logger.Debug("page updated", zap.String("path", path))
	return nil
}

func (p *Page) Idle() error {
	return nil
}

func (p *Page) Close() error {
	return nil
}

// Render writes the status page of a sample.
func Render(w io.Writer, sample domain.SampleSet, now time.Time) error {
	data := page{
		Day:        sample.Timestamp.Format("2006-01-02"),
		PowerNow:   int(sample.PowerNow),
		EnergyKWh:  fmt.Sprintf("%.2f", sample.EnergyDay/1000),
		Chart:      buildChart(sample.PowerHistory, sample.FirstPowerAt),
		DataFile:   csvlog.FileName,
		LastUpdate: now.Format("15:04 2006-01-02"),
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

// ChartMax rounds the largest average up to the next multiple of 50 W.
func ChartMax(history []float64) int {
	max := 0
	for _, w := range history {
		if int(w) > max {
			max = int(w)
		}
	}
	return max + (50 - max%50)
}

func buildChart(history []float64, firstPower time.Time) chart {
	c := chart{
		Width:    chartWidth,
		Height:   chartHeight,
		Margin:   chartMargin,
		Bottom:   chartHeight - chartMargin,
		Right:    chartWidth - chartMargin,
		LabelY:   chartHeight - chartMargin/2,
		MaxWatts: ChartMax(history),
	}
	startHour := 0.0
	if !firstPower.IsZero() {
		startHour = float64(firstPower.Hour()) + float64(firstPower.Minute())/60
	}
	c.StartLabel = hourLabel(startHour)
	c.StopLabel = hourLabel(startHour + chartHours)

	plotWidth := float64(c.Right - c.Margin)
	plotHeight := float64(c.Bottom - c.Margin)
	points := make([]string, 0, len(history))
	for i, w := range history {
		// one average every quarter hour
		x := float64(c.Margin) + plotWidth*math.Min(float64(i)*0.25/chartHours, 1)
		y := float64(c.Bottom) - plotHeight*math.Max(w, 0)/float64(c.MaxWatts)
		points = append(points, fmt.Sprintf("%.1f,%.1f", x, y))
	}
	c.Points = strings.Join(points, " ")
	return c
}

func hourLabel(hour float64) string {
	h := int(hour)
	m := int(math.Round((hour - float64(h)) * 60))
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ensure interface compliance
var _ port.TelemetrySink = (*Page)(nil)
