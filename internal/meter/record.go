// Package meter turns per-day power-meter log files into one ordered dataset.
//
// Each log file is named after the calendar date it covers (DDMMYYYY.txt) and holds
// one colon-separated sample per line:
//
//	h:m:s:pa:epa_c:epa_g:iarms:uarms
//
// pa, iarms and uarms are stored by the device as 100x their physical unit.
// epa_c and epa_g are cumulative energy counters and are kept unscaled.
package meter

import "time"

// scaleFactor converts device integers to physical units.
const scaleFactor = 100.0

// Record is one sampled measurement. Optional fields are nil when the token was
// missing or not numeric.
type Record struct {
	Timestamp time.Time

	Hour   int
	Minute int
	Second int

	PowerRaw           *float64 // pa
	EnergyConsumedRaw  *float64 // epa_c
	EnergyGeneratedRaw *float64 // epa_g
	CurrentRaw         *float64 // iarms
	VoltageRaw         *float64 // uarms

	PowerW   *float64
	CurrentA *float64
	VoltageV *float64

	Source string // file basename
	Line   int    // 1-based line number within Source
}

// rescale fills the physical fields from their raw counterparts.
func (r *Record) rescale() {
	r.PowerW = scaled(r.PowerRaw)
	r.CurrentA = scaled(r.CurrentRaw)
	r.VoltageV = scaled(r.VoltageRaw)
}

func scaled(v *float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v / scaleFactor
	return &s
}

// Float returns a pointer to v. Handy for building records in tests and fixtures.
func Float(v float64) *float64 {
	return &v
}
