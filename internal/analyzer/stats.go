package analyzer

import (
	"math"
	"sort"

	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

// Summary holds descriptive statistics of one field over its non-missing values.
// All values are zero when Count is zero; Std is zero when Count is below two.
type Summary struct {
	Field FieldName
	Count int
	Mean  float64
	Std   float64 // sample standard deviation (n-1)
	Min   float64
	Q1    float64
	Q2    float64
	Q3    float64
	Max   float64
}

// HasStd reports whether Std is defined, which needs at least two values.
func (s Summary) HasStd() bool {
	return s.Count > 1
}

// Describe computes the summary statistics of field.
func Describe(ds *meter.Dataset, field Field) Summary {
	vals := values(ds, field)
	s := Summary{Field: field.Name, Count: len(vals)}
	if len(vals) == 0 {
		return s
	}

	sort.Float64s(vals)

	var sum float64
	for _, v := range vals {
		sum += v
	}
	s.Mean = sum / float64(len(vals))

	if len(vals) > 1 {
		var sq float64
		for _, v := range vals {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(vals)-1))
	}

	s.Min = vals[0]
	s.Max = vals[len(vals)-1]
	s.Q1 = Quantile(vals, 0.25)
	s.Q2 = Quantile(vals, 0.50)
	s.Q3 = Quantile(vals, 0.75)

	return s
}

// Quantile returns the p-quantile of an ascending slice using linear interpolation
// between the order statistics at position (n-1)p. It returns 0 for an empty slice.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	pos := float64(n-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
