package meter

import (
	"sort"
	"time"
)

// Dataset is the merged, time-ordered collection of records from every accepted file.
// Duplicate timestamps are kept.
type Dataset struct {
	Records []Record
	Files   []FileResult
}

// Merge concatenates the records of all successfully loaded files and sorts them by
// timestamp. Files are first put in (date, path) order so the result does not depend on
// the order they were loaded in; records with equal timestamps keep that file order and
// their line order.
//
// Merge returns an *EmptyDatasetError (wrapping ErrEmptyDataset) when no record survived.
func Merge(files []FileResult) (*Dataset, error) {
	ordered := make([]FileResult, len(files))
	copy(ordered, files)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].Path < ordered[j].Path
	})

	total := 0
	rejected := 0
	for _, f := range ordered {
		if !f.OK() {
			rejected++
			continue
		}
		total += len(f.Records)
	}

	if total == 0 {
		return nil, &EmptyDatasetError{FilesSeen: len(files), FilesRejected: rejected}
	}

	records := make([]Record, 0, total)
	for _, f := range ordered {
		if f.OK() {
			records = append(records, f.Records...)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return &Dataset{Records: records, Files: ordered}, nil
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// TimeRange returns the first and last timestamps. Both are zero for an empty dataset.
func (d *Dataset) TimeRange() (time.Time, time.Time) {
	if len(d.Records) == 0 {
		return time.Time{}, time.Time{}
	}
	return d.Records[0].Timestamp, d.Records[len(d.Records)-1].Timestamp
}

// Accepted returns the files that loaded without error.
func (d *Dataset) Accepted() []FileResult {
	var out []FileResult
	for _, f := range d.Files {
		if f.OK() {
			out = append(out, f)
		}
	}
	return out
}

// Rejected returns the files that failed to load, with their diagnostics.
func (d *Dataset) Rejected() []FileResult {
	var out []FileResult
	for _, f := range d.Files {
		if !f.OK() {
			out = append(out, f)
		}
	}
	return out
}

// Series pairs every timestamp with the value selected by value. It is the input a
// chart renderer needs; missing values stay nil so gaps can be drawn as such.
func (d *Dataset) Series(value func(Record) *float64) ([]time.Time, []*float64) {
	times := make([]time.Time, len(d.Records))
	values := make([]*float64, len(d.Records))
	for i, r := range d.Records {
		times[i] = r.Timestamp
		values[i] = value(r)
	}
	return times, values
}
