package analyzer

import (
	"time"

	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

// DailyAggregate is the energy estimate of one calendar date.
//
// KWhEstimate is max(epa_c) - min(epa_c) over the records of the date. Counter resets
// inside the date are not compensated; they are counted in CounterResets so the caller
// can warn about a deflated estimate.
type DailyAggregate struct {
	Date         time.Time
	EnergyMinRaw *float64
	EnergyMaxRaw *float64
	KWhEstimate  float64
	Samples      int // records with a non-missing epa_c

	// CounterResets counts drops of epa_c between consecutive samples of the date.
	CounterResets int

	// GeneratedKWhEstimate applies the same rule to epa_g.
	GeneratedKWhEstimate float64
}

// ResetSuspected reports whether the consumed-energy counter went backwards.
func (d DailyAggregate) ResetSuspected() bool {
	return d.CounterResets > 0
}

// counterRange tracks min, max and decreases of one cumulative counter.
type counterRange struct {
	min, max *float64
	samples  int
	last     *float64
	drops    int
}

func (c *counterRange) add(v *float64) {
	if v == nil {
		return
	}
	val := *v
	if c.samples == 0 {
		c.min, c.max = meter.Float(val), meter.Float(val)
	} else {
		if val < *c.min {
			*c.min = val
		}
		if val > *c.max {
			*c.max = val
		}
	}
	if c.last != nil && val < *c.last {
		c.drops++
	}
	c.last = v
	c.samples++
}

// delta returns max - min, or 0 when fewer than two samples were seen.
func (c *counterRange) delta() float64 {
	if c.samples < 2 {
		return 0
	}
	return *c.max - *c.min
}

// DailyEnergy groups records by the calendar date of their timestamp and estimates the
// energy consumed on each date. Dates are returned in ascending order.
func DailyEnergy(ds *meter.Dataset) []DailyAggregate {
	type group struct {
		date      time.Time
		consumed  counterRange
		generated counterRange
	}

	var groups []*group
	index := make(map[time.Time]*group)

	// Records are time-ordered, so groups are created in date order.
	for _, r := range ds.Records {
		day := truncateToDate(r.Timestamp)
		g, ok := index[day]
		if !ok {
			g = &group{date: day}
			index[day] = g
			groups = append(groups, g)
		}
		g.consumed.add(r.EnergyConsumedRaw)
		g.generated.add(r.EnergyGeneratedRaw)
	}

	out := make([]DailyAggregate, 0, len(groups))
	for _, g := range groups {
		out = append(out, DailyAggregate{
			Date:                 g.date,
			EnergyMinRaw:         g.consumed.min,
			EnergyMaxRaw:         g.consumed.max,
			KWhEstimate:          g.consumed.delta(),
			Samples:              g.consumed.samples,
			CounterResets:        g.consumed.drops,
			GeneratedKWhEstimate: g.generated.delta(),
		})
	}

	return out
}

func truncateToDate(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}
