package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/olegiv/meterlog-analyzer-go/internal/meter"
)

const epsilon = 1e-9

var day1 = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// voltageDataset builds a dataset with one record per value, one minute apart.
// NaN entries become missing values.
func voltageDataset(vals ...float64) *meter.Dataset {
	ds := &meter.Dataset{}
	for i, v := range vals {
		r := meter.Record{Timestamp: day1.Add(time.Duration(i) * time.Minute), Line: i + 1}
		if !math.IsNaN(v) {
			r.VoltageV = meter.Float(v)
		}
		ds.Records = append(ds.Records, r)
	}
	return ds
}

// energyDataset builds records at the given offsets from day1 with epa_c values.
func energyDataset(offsets []time.Duration, counters []float64) *meter.Dataset {
	ds := &meter.Dataset{}
	for i, off := range offsets {
		r := meter.Record{Timestamp: day1.Add(off)}
		if !math.IsNaN(counters[i]) {
			r.EnergyConsumedRaw = meter.Float(counters[i])
		}
		ds.Records = append(ds.Records, r)
	}
	return ds
}

func TestParseField(t *testing.T) {
	for _, name := range ValidFieldNames() {
		f, err := ParseField(name)
		if err != nil {
			t.Errorf("ParseField(%q) unexpected error: %v", name, err)
			continue
		}
		if string(f.Name) != name {
			t.Errorf("ParseField(%q).Name = %s", name, f.Name)
		}
		if f.Value == nil || f.Label == "" {
			t.Errorf("ParseField(%q) returned incomplete descriptor", name)
		}
	}

	if _, err := ParseField("energy_kWh"); err == nil {
		t.Error("Expected error for unknown field")
	}
}

func TestField_ValueSelectsPhysicalField(t *testing.T) {
	r := meter.Record{
		PowerW:   meter.Float(1),
		CurrentA: meter.Float(2),
		VoltageV: meter.Float(3),
	}
	want := map[FieldName]float64{FieldPower: 1, FieldCurrent: 2, FieldVoltage: 3}
	for name, v := range want {
		got := MustField(name).Value(r)
		if got == nil || *got != v {
			t.Errorf("%s value = %v, want %v", name, got, v)
		}
	}
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{name: "empty", sorted: nil, p: 0.5, want: 0},
		{name: "single", sorted: []float64{7}, p: 0.25, want: 7},
		{name: "median odd", sorted: []float64{1, 2, 3}, p: 0.5, want: 2},
		{name: "median even", sorted: []float64{1, 2, 3, 4}, p: 0.5, want: 2.5},
		{name: "q1 interpolated", sorted: []float64{1, 2, 3, 4}, p: 0.25, want: 1.75},
		{name: "q3 interpolated", sorted: []float64{1, 2, 3, 4}, p: 0.75, want: 3.25},
		{name: "p zero", sorted: []float64{1, 2}, p: 0, want: 1},
		{name: "p one", sorted: []float64{1, 2}, p: 1, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quantile(tt.sorted, tt.p); !approxEqual(got, tt.want) {
				t.Errorf("Quantile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	ds := voltageDataset(2, 4, math.NaN(), 4, 4, 5, 5, 7, 9)
	s := Describe(ds, MustField(FieldVoltage))

	if s.Count != 8 {
		t.Errorf("Count = %d, want 8", s.Count)
	}
	if !approxEqual(s.Mean, 5) {
		t.Errorf("Mean = %v, want 5", s.Mean)
	}
	// sum of squared deviations = 32, n-1 = 7
	if !approxEqual(s.Std, math.Sqrt(32.0/7.0)) {
		t.Errorf("Std = %v, want %v", s.Std, math.Sqrt(32.0/7.0))
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Min/Max = %v/%v, want 2/9", s.Min, s.Max)
	}
	if !approxEqual(s.Q1, 4) || !approxEqual(s.Q2, 4.5) || !approxEqual(s.Q3, 5.5) {
		t.Errorf("Quartiles = %v/%v/%v, want 4/4.5/5.5", s.Q1, s.Q2, s.Q3)
	}
}

func TestDescribe_Degenerate(t *testing.T) {
	empty := Describe(voltageDataset(math.NaN(), math.NaN()), MustField(FieldVoltage))
	if empty.Count != 0 || empty.Mean != 0 || empty.Std != 0 {
		t.Errorf("Empty summary = %+v, want zero values", empty)
	}

	single := Describe(voltageDataset(230), MustField(FieldVoltage))
	if single.Count != 1 || single.Mean != 230 || single.Std != 0 {
		t.Errorf("Single summary = %+v", single)
	}
}

func TestDetectOutliers_VoltageExample(t *testing.T) {
	ds := voltageDataset(220, 221, 219, 220, 400, 218)
	res := DetectOutliers(ds, MustField(FieldVoltage))

	b := res.Bounds
	if !approxEqual(b.Q1, 219.25) {
		t.Errorf("Q1 = %v, want 219.25", b.Q1)
	}
	if !approxEqual(b.Q3, 220.75) {
		t.Errorf("Q3 = %v, want 220.75", b.Q3)
	}
	if !approxEqual(b.IQR, 1.5) {
		t.Errorf("IQR = %v, want 1.5", b.IQR)
	}
	if !approxEqual(b.Lower, 217) || !approxEqual(b.Upper, 223) {
		t.Errorf("Bounds = [%v, %v], want [217, 223]", b.Lower, b.Upper)
	}

	if len(res.Outliers) != 1 {
		t.Fatalf("Expected 1 outlier, got %d", len(res.Outliers))
	}
	if *res.Outliers[0].VoltageV != 400 {
		t.Errorf("Outlier value = %v, want 400", *res.Outliers[0].VoltageV)
	}
}

func TestDetectOutliers_PreservesOrderAndSkipsMissing(t *testing.T) {
	ds := voltageDataset(500, 220, math.NaN(), 220, 221, 219, 220, 1)
	res := DetectOutliers(ds, MustField(FieldVoltage))

	if res.Bounds.Count != 7 {
		t.Errorf("Count = %d, want 7", res.Bounds.Count)
	}
	if len(res.Outliers) != 2 {
		t.Fatalf("Expected 2 outliers, got %d", len(res.Outliers))
	}
	if res.Outliers[0].Line != 1 || res.Outliers[1].Line != 8 {
		t.Errorf("Outlier order = lines %d, %d, want 1, 8", res.Outliers[0].Line, res.Outliers[1].Line)
	}
}

func TestDetectOutliers_ConstantField(t *testing.T) {
	t.Run("all identical", func(t *testing.T) {
		res := DetectOutliers(voltageDataset(230, 230, 230, 230), MustField(FieldVoltage))
		if res.Bounds.IQR != 0 {
			t.Errorf("IQR = %v, want 0", res.Bounds.IQR)
		}
		if res.Bounds.Lower != 230 || res.Bounds.Upper != 230 {
			t.Errorf("Bounds = [%v, %v], want [230, 230]", res.Bounds.Lower, res.Bounds.Upper)
		}
		if len(res.Outliers) != 0 {
			t.Errorf("Expected no outliers, got %d", len(res.Outliers))
		}
	})

	t.Run("one deviation", func(t *testing.T) {
		res := DetectOutliers(voltageDataset(230, 230, 230, 230, 230, 230, 230, 231), MustField(FieldVoltage))
		if res.Bounds.IQR != 0 {
			t.Errorf("IQR = %v, want 0", res.Bounds.IQR)
		}
		if len(res.Outliers) != 1 {
			t.Errorf("Expected the deviating value to be flagged, got %d outliers", len(res.Outliers))
		}
	})
}

func TestDetectOutliers_EmptyField(t *testing.T) {
	res := DetectOutliers(voltageDataset(math.NaN()), MustField(FieldVoltage))
	if res.Bounds.Count != 0 {
		t.Errorf("Count = %d, want 0", res.Bounds.Count)
	}
	if len(res.Outliers) != 0 {
		t.Error("Empty field must not produce outliers")
	}

	// Other fields are entirely missing in voltageDataset
	res = DetectOutliers(voltageDataset(220, 230), MustField(FieldPower))
	if res.Bounds.Count != 0 || len(res.Outliers) != 0 {
		t.Errorf("Missing field result = %+v", res)
	}
}

func TestDailyEnergy_SingleDay(t *testing.T) {
	ds := energyDataset(
		[]time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour, 4 * time.Hour},
		[]float64{100, 105, 98, 120},
	)

	daily := DailyEnergy(ds)
	if len(daily) != 1 {
		t.Fatalf("Expected 1 day, got %d", len(daily))
	}

	d := daily[0]
	if d.KWhEstimate != 22 {
		t.Errorf("KWhEstimate = %v, want 22", d.KWhEstimate)
	}
	if *d.EnergyMinRaw != 98 || *d.EnergyMaxRaw != 120 {
		t.Errorf("Min/Max = %v/%v, want 98/120", *d.EnergyMinRaw, *d.EnergyMaxRaw)
	}
	if d.Samples != 4 {
		t.Errorf("Samples = %d, want 4", d.Samples)
	}
	// 105 -> 98 is a drop of the cumulative counter
	if d.CounterResets != 1 || !d.ResetSuspected() {
		t.Errorf("CounterResets = %d, want 1", d.CounterResets)
	}
	if !d.Date.Equal(day1) {
		t.Errorf("Date = %v, want %v", d.Date, day1)
	}
}

func TestDailyEnergy_GroupsByTimestampDate(t *testing.T) {
	ds := energyDataset(
		[]time.Duration{
			22 * time.Hour,
			23 * time.Hour,
			24*time.Hour + 10*time.Minute, // logged in day1's file, lands on day2
			26 * time.Hour,
		},
		[]float64{10, 15, 16, 30},
	)

	daily := DailyEnergy(ds)
	if len(daily) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(daily))
	}
	if daily[0].KWhEstimate != 5 {
		t.Errorf("day1 KWhEstimate = %v, want 5", daily[0].KWhEstimate)
	}
	if daily[1].KWhEstimate != 14 {
		t.Errorf("day2 KWhEstimate = %v, want 14", daily[1].KWhEstimate)
	}
	if !daily[0].Date.Before(daily[1].Date) {
		t.Error("Days are not in ascending order")
	}
	if daily[0].CounterResets != 0 || daily[1].CounterResets != 0 {
		t.Error("Monotonic counters should not report resets")
	}
}

func TestDailyEnergy_InsufficientData(t *testing.T) {
	ds := energyDataset(
		[]time.Duration{time.Hour, 2 * time.Hour, 25 * time.Hour},
		[]float64{math.NaN(), 50, math.NaN()},
	)

	daily := DailyEnergy(ds)
	if len(daily) != 2 {
		t.Fatalf("Expected 2 days, got %d", len(daily))
	}

	if daily[0].KWhEstimate != 0 || daily[0].Samples != 1 {
		t.Errorf("day1 = %+v, want 0 kWh from 1 sample", daily[0])
	}
	if daily[1].Samples != 0 || daily[1].EnergyMinRaw != nil || daily[1].EnergyMaxRaw != nil {
		t.Errorf("day2 = %+v, want no samples", daily[1])
	}
}

func TestDailyEnergy_Generated(t *testing.T) {
	ds := &meter.Dataset{Records: []meter.Record{
		{Timestamp: day1.Add(time.Hour), EnergyGeneratedRaw: meter.Float(3)},
		{Timestamp: day1.Add(2 * time.Hour), EnergyGeneratedRaw: meter.Float(9)},
	}}

	daily := DailyEnergy(ds)
	if daily[0].GeneratedKWhEstimate != 6 {
		t.Errorf("GeneratedKWhEstimate = %v, want 6", daily[0].GeneratedKWhEstimate)
	}
	if daily[0].KWhEstimate != 0 {
		t.Errorf("KWhEstimate = %v, want 0 without epa_c", daily[0].KWhEstimate)
	}
}

func TestCharts(t *testing.T) {
	ds := voltageDataset(220, math.NaN(), 221)

	charts := Charts(ds)
	wantOrder := []FieldName{FieldVoltage, FieldCurrent, FieldPower}
	if len(charts) != len(wantOrder) {
		t.Fatalf("Charts() returned %d series, want %d", len(charts), len(wantOrder))
	}

	for i, name := range wantOrder {
		c := charts[i]
		if c.Field != name {
			t.Errorf("chart %d: Field = %s, want %s", i, c.Field, name)
		}
		if c.Title != MustField(name).Title || c.Title == "" {
			t.Errorf("chart %d: Title = %q", i, c.Title)
		}
		if len(c.Times) != 3 || len(c.Values) != 3 {
			t.Errorf("chart %d: got %d times and %d values, want 3 each", i, len(c.Times), len(c.Values))
		}
	}

	voltage := charts[0]
	if voltage.Title != "RMS voltage over time" || voltage.Label != "Voltage [V]" {
		t.Errorf("voltage chart = %q / %q", voltage.Title, voltage.Label)
	}
	if voltage.Values[0] == nil || *voltage.Values[0] != 220 {
		t.Errorf("Values[0] = %v, want 220", voltage.Values[0])
	}
	if voltage.Values[1] != nil {
		t.Errorf("Values[1] = %v, want nil for a missing reading", *voltage.Values[1])
	}
	if !voltage.Times[2].Equal(day1.Add(2 * time.Minute)) {
		t.Errorf("Times[2] = %v", voltage.Times[2])
	}

	// Current and power are missing throughout
	for _, v := range charts[1].Values {
		if v != nil {
			t.Error("Expected missing current values to stay nil")
		}
	}
}

func TestSummary_HasStd(t *testing.T) {
	tests := []struct {
		count int
		want  bool
	}{
		{count: 0, want: false},
		{count: 1, want: false},
		{count: 2, want: true},
	}
	for _, tt := range tests {
		if got := (Summary{Count: tt.count}).HasStd(); got != tt.want {
			t.Errorf("HasStd() with count %d = %v, want %v", tt.count, got, tt.want)
		}
	}
}
