package analyzer

import (
	"sort"

	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

// iqrFactor is the Tukey fence multiplier.
const iqrFactor = 1.5

// Bounds is the IQR fence of one field.
type Bounds struct {
	Q1    float64
	Q3    float64
	IQR   float64
	Lower float64
	Upper float64
	Count int // non-missing values the quartiles were computed over
}

// Contains reports whether v lies inside [Lower, Upper].
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// OutlierResult is one detector run: the fence and the records outside it, in
// dataset order.
type OutlierResult struct {
	Field    FieldName
	Bounds   Bounds
	Outliers []meter.Record
}

// ComputeBounds returns the IQR fence of field over its non-missing values.
// A field without values yields zero bounds with Count 0.
func ComputeBounds(ds *meter.Dataset, field Field) Bounds {
	vals := values(ds, field)
	b := Bounds{Count: len(vals)}
	if len(vals) == 0 {
		return b
	}

	sort.Float64s(vals)
	b.Q1 = Quantile(vals, 0.25)
	b.Q3 = Quantile(vals, 0.75)
	b.IQR = b.Q3 - b.Q1
	b.Lower = b.Q1 - iqrFactor*b.IQR
	b.Upper = b.Q3 + iqrFactor*b.IQR
	return b
}

// DetectOutliers flags the records whose field value lies strictly outside the IQR
// fence. Records with a missing value are never flagged. A zero IQR is not special-cased:
// every value different from the constant is an outlier.
func DetectOutliers(ds *meter.Dataset, field Field) OutlierResult {
	result := OutlierResult{
		Field:  field.Name,
		Bounds: ComputeBounds(ds, field),
	}
	if result.Bounds.Count == 0 {
		return result
	}

	for _, r := range ds.Records {
		v := field.Value(r)
		if v == nil {
			continue
		}
		if !result.Bounds.Contains(*v) {
			result.Outliers = append(result.Outliers, r)
		}
	}

	return result
}
