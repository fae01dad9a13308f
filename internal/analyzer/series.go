package analyzer

import (
	"time"

	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

// ChartSeries is the data behind one chart: a field's values over time, with missing
// values left nil.
type ChartSeries struct {
	Field  FieldName
	Title  string
	Label  string
	Times  []time.Time
	Values []*float64
}

// SeriesOf returns the titled time series of field.
func SeriesOf(ds *meter.Dataset, field Field) ChartSeries {
	times, vals := ds.Series(field.Value)
	return ChartSeries{
		Field:  field.Name,
		Title:  field.Title,
		Label:  field.Label,
		Times:  times,
		Values: vals,
	}
}

// Charts returns the voltage, current and power series in that order.
func Charts(ds *meter.Dataset) []ChartSeries {
	charts := make([]ChartSeries, 0, len(OutlierOrder))
	for _, name := range OutlierOrder {
		charts = append(charts, SeriesOf(ds, MustField(name)))
	}
	return charts
}
