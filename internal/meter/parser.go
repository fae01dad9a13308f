package meter

import (
	"math"
	"strconv"
	"strings"
)

// fieldCount is the number of positional fields in a log line.
const fieldCount = 8

// Positional field indexes.
const (
	idxHour = iota
	idxMinute
	idxSecond
	idxPower
	idxEnergyConsumed
	idxEnergyGenerated
	idxCurrent
	idxVoltage
)

// Upper bounds of the time components. A line past any of them is skipped instead of
// producing a timestamp far from its file date.
const (
	maxHour   = 24 * 366
	maxMinute = 1_000_000
	maxSecond = 1_000_000
)

// ParseLine parses one raw log line into a Record without timestamp or physical fields.
// It returns false when the line has no usable hour, minute and second; such lines are
// skipped by the loader. Tokens that are not numbers become nil instead of failing the line.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	var values [fieldCount]*float64
	for i, token := range strings.SplitN(line, ":", fieldCount+1) {
		if i >= fieldCount {
			break // trailing tokens are ignored
		}
		values[i] = parseNumber(token)
	}

	h, okH := timePart(values[idxHour], maxHour)
	m, okM := timePart(values[idxMinute], maxMinute)
	s, okS := timePart(values[idxSecond], maxSecond)
	if !okH || !okM || !okS {
		return Record{}, false
	}

	return Record{
		Hour:               h,
		Minute:             m,
		Second:             s,
		PowerRaw:           values[idxPower],
		EnergyConsumedRaw:  values[idxEnergyConsumed],
		EnergyGeneratedRaw: values[idxEnergyGenerated],
		CurrentRaw:         values[idxCurrent],
		VoltageRaw:         values[idxVoltage],
	}, true
}

// parseNumber returns nil for empty, non-numeric and non-finite tokens.
func parseNumber(token string) *float64 {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// timePart truncates a time-of-day component toward zero. Negative values and values
// at or above limit are rejected.
func timePart(v *float64, limit int) (int, bool) {
	if v == nil || *v < 0 || *v >= float64(limit) {
		return 0, false
	}
	return int(*v), true
}
