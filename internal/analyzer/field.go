// Package analyzer computes statistics over a merged meter dataset: per-field summaries,
// daily energy from the cumulative counters and IQR outlier detection.
package analyzer

import (
	"fmt"

	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

// FieldName identifies a physical measurement of a record.
type FieldName string

// Supported physical fields.
const (
	FieldPower   FieldName = "power_W"
	FieldCurrent FieldName = "current_A"
	FieldVoltage FieldName = "voltage_V"
)

// Field describes one physical measurement and how to read it from a record.
type Field struct {
	Name  FieldName
	Label string // human readable, e.g. "Voltage [V]"
	Title string // chart title, see ChartSeries
	Value func(meter.Record) *float64
}

var fields = map[FieldName]Field{
	FieldPower: {
		Name:  FieldPower,
		Label: "Power [W]",
		Title: "Active power over time",
		Value: func(r meter.Record) *float64 { return r.PowerW },
	},
	FieldCurrent: {
		Name:  FieldCurrent,
		Label: "Current [A]",
		Title: "RMS current over time",
		Value: func(r meter.Record) *float64 { return r.CurrentA },
	},
	FieldVoltage: {
		Name:  FieldVoltage,
		Label: "Voltage [V]",
		Title: "RMS voltage over time",
		Value: func(r meter.Record) *float64 { return r.VoltageV },
	},
}

// SummaryOrder is the field order of the statistics table.
var SummaryOrder = []FieldName{FieldPower, FieldCurrent, FieldVoltage}

// OutlierOrder is the field order of the outlier section.
var OutlierOrder = []FieldName{FieldVoltage, FieldCurrent, FieldPower}

// ValidFieldNames returns the accepted field name strings.
func ValidFieldNames() []string {
	return []string{
		string(FieldPower),
		string(FieldCurrent),
		string(FieldVoltage),
	}
}

// ParseField converts a string to its Field descriptor.
// Returns an error if the string is not a supported field.
func ParseField(s string) (Field, error) {
	f, ok := fields[FieldName(s)]
	if !ok {
		return Field{}, fmt.Errorf("invalid field: %q (valid fields: %v)", s, ValidFieldNames())
	}
	return f, nil
}

// MustField returns the descriptor of a known field name or panics.
// Use this only with the FieldXxx constants.
func MustField(name FieldName) Field {
	f, err := ParseField(string(name))
	if err != nil {
		panic(err)
	}
	return f
}

// values collects the non-missing values of field in dataset order.
func values(ds *meter.Dataset, field Field) []float64 {
	out := make([]float64, 0, ds.Len())
	for _, r := range ds.Records {
		if v := field.Value(r); v != nil {
			out = append(out, *v)
		}
	}
	return out
}
