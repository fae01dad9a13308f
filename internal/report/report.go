// Package report assembles the analysis results of one run into a Report and renders
// it as text. Nothing in this package performs I/O except the delivery sink.
package report

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/meterlog-analyzer-go/internal/analyzer"
	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

// DefaultPreviewLimit is the number of outliers listed per field.
const DefaultPreviewLimit = 10

// FileDiagnostic describes how one log file was handled.
type FileDiagnostic struct {
	File    string
	Date    time.Time
	Records int
	Lines   int
	Skipped int
	Error   string // empty for accepted files
}

// OutlierPoint is one previewed outlier.
type OutlierPoint struct {
	Timestamp time.Time
	Value     float64
	Source    string
	Line      int
}

// OutlierSection is the outlier result of one field as shown in the report.
type OutlierSection struct {
	Field   analyzer.FieldName
	Label   string
	Bounds  analyzer.Bounds
	Total   int
	Preview []OutlierPoint
}

// Report is the structured result of one analysis run.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Directory   string

	Records int
	Start   time.Time
	End     time.Time

	Accepted []FileDiagnostic
	Rejected []FileDiagnostic

	Summaries []analyzer.Summary
	Daily     []analyzer.DailyAggregate
	Outliers  []OutlierSection
}

// OutlierTotal returns the number of outliers over all fields.
func (r *Report) OutlierTotal() int {
	total := 0
	for _, s := range r.Outliers {
		total += s.Total
	}
	return total
}

// CounterResets returns the number of epa_c decreases over all days.
func (r *Report) CounterResets() int {
	total := 0
	for _, d := range r.Daily {
		total += d.CounterResets
	}
	return total
}

// TotalKWh sums the daily consumption estimates.
func (r *Report) TotalKWh() float64 {
	var total float64
	for _, d := range r.Daily {
		total += d.KWhEstimate
	}
	return total
}

// HasAnomalies reports whether the run found outliers, counter resets or rejected files.
func (r *Report) HasAnomalies() bool {
	return r.OutlierTotal() > 0 || r.CounterResets() > 0 || len(r.Rejected) > 0
}

// Assembler builds reports.
type Assembler struct {
	previewLimit int
	now          func() time.Time
	newID        func() string
}

// NewAssembler creates an assembler listing at most previewLimit outliers per field.
// A limit <= 0 falls back to DefaultPreviewLimit.
func NewAssembler(previewLimit int) *Assembler {
	if previewLimit <= 0 {
		previewLimit = DefaultPreviewLimit
	}
	return &Assembler{
		previewLimit: previewLimit,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// Assemble runs the statistics over ds and collects them into a Report. directory is
// the analyzed input directory and is only recorded.
func (a *Assembler) Assemble(ds *meter.Dataset, directory string) *Report {
	r := &Report{
		RunID:       a.newID(),
		GeneratedAt: a.now(),
		Directory:   directory,
		Records:     ds.Len(),
	}
	r.Start, r.End = ds.TimeRange()

	for _, f := range ds.Files {
		d := FileDiagnostic{
			File:    filepath.Base(f.Path),
			Date:    f.Date,
			Records: len(f.Records),
			Lines:   f.Lines,
			Skipped: f.Skipped,
		}
		if f.OK() {
			r.Accepted = append(r.Accepted, d)
		} else {
			d.Error = f.Err.Error()
			r.Rejected = append(r.Rejected, d)
		}
	}

	for _, name := range analyzer.SummaryOrder {
		r.Summaries = append(r.Summaries, analyzer.Describe(ds, analyzer.MustField(name)))
	}

	r.Daily = analyzer.DailyEnergy(ds)

	for _, name := range analyzer.OutlierOrder {
		field := analyzer.MustField(name)
		res := analyzer.DetectOutliers(ds, field)
		r.Outliers = append(r.Outliers, a.section(field, res))
	}

	return r
}

func (a *Assembler) section(field analyzer.Field, res analyzer.OutlierResult) OutlierSection {
	s := OutlierSection{
		Field:  field.Name,
		Label:  field.Label,
		Bounds: res.Bounds,
		Total:  len(res.Outliers),
	}

	limit := min(len(res.Outliers), a.previewLimit)
	for _, rec := range res.Outliers[:limit] {
		s.Preview = append(s.Preview, OutlierPoint{
			Timestamp: rec.Timestamp,
			Value:     *field.Value(rec),
			Source:    rec.Source,
			Line:      rec.Line,
		})
	}

	return s
}
