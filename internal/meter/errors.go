package meter

import (
	"errors"
	"fmt"
)

// ErrEmptyDataset is returned by Merge when no file produced a usable record.
// It is the only condition that stops the pipeline.
var ErrEmptyDataset = errors.New("no usable records in dataset")

// DateFormatError reports a log file whose name is not a DDMMYYYY calendar date.
type DateFormatError struct {
	File   string
	Reason string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid log file name %q: expected DDMMYYYY date (%s)", e.File, e.Reason)
}

// FileReadError reports an I/O failure while opening or reading a log file.
type FileReadError struct {
	File string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("failed to read log file %q: %v", e.File, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// EmptyDatasetError carries the batch counters behind ErrEmptyDataset.
type EmptyDatasetError struct {
	FilesSeen     int
	FilesRejected int
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("%v (files: %d, rejected: %d)", ErrEmptyDataset, e.FilesSeen, e.FilesRejected)
}

func (e *EmptyDatasetError) Unwrap() error {
	return ErrEmptyDataset
}
