package meter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LogFileExt is the extension of meter log files.
const LogFileExt = ".txt"

// fileDateLayout is the DDMMYYYY layout of log file names.
const fileDateLayout = "02012006"

var fileDateRegex = regexp.MustCompile(`^\d{8}$`)

// FileResult is the outcome of loading one log file. Err is nil on success.
// Skipped counts non-blank lines dropped for lacking a valid time of day.
type FileResult struct {
	Path    string
	Date    time.Time
	Records []Record
	Lines   int
	Skipped int
	Err     error
}

// OK reports whether the file was accepted.
func (f FileResult) OK() bool {
	return f.Err == nil
}

// Loader reads meter log files from disk.
type Loader struct {
	maxSizeMB      int
	reportFilename string
}

// NewLoader creates a loader. Files larger than maxSizeMB are rejected; a value <= 0
// disables the check. reportFilename is skipped by LoadDirectory so that a report saved
// next to the logs is not mistaken for one.
func NewLoader(maxSizeMB int, reportFilename string) *Loader {
	return &Loader{
		maxSizeMB:      maxSizeMB,
		reportFilename: reportFilename,
	}
}

// ParseFileDate derives the calendar date from a log file path. The basename without
// extension must be a valid DDMMYYYY date.
func ParseFileDate(path string) (time.Time, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	if !fileDateRegex.MatchString(name) {
		return time.Time{}, &DateFormatError{File: base, Reason: "name is not 8 digits"}
	}

	date, err := time.Parse(fileDateLayout, name)
	if err != nil {
		return time.Time{}, &DateFormatError{File: base, Reason: err.Error()}
	}

	return date, nil
}

// LoadFile loads one log file. File-level failures are returned in FileResult.Err as a
// *DateFormatError or *FileReadError; malformed lines are skipped silently.
func (l *Loader) LoadFile(path string) FileResult {
	result := FileResult{Path: path}

	date, err := ParseFileDate(path)
	if err != nil {
		result.Err = err
		return result
	}
	result.Date = date

	content, err := l.readFile(path)
	if err != nil {
		result.Err = &FileReadError{File: filepath.Base(path), Err: err}
		return result
	}

	source := filepath.Base(path)
	for i, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.Lines++

		rec, ok := ParseLine(line)
		if !ok {
			result.Skipped++
			continue
		}

		rec.Timestamp = date.Add(time.Duration(rec.Hour)*time.Hour +
			time.Duration(rec.Minute)*time.Minute +
			time.Duration(rec.Second)*time.Second)
		rec.rescale()
		rec.Source = source
		rec.Line = i + 1

		result.Records = append(result.Records, rec)
	}

	return result
}

// readFile checks existence, permissions and size before reading the whole file.
func (l *Loader) readFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("path is a directory: %s", path)
	}

	if info.Mode().Perm()&0400 == 0 {
		return "", fmt.Errorf("file is not readable: %s", path)
	}

	if l.maxSizeMB > 0 {
		maxBytes := int64(l.maxSizeMB) * 1024 * 1024
		if info.Size() > maxBytes {
			return "", fmt.Errorf("file exceeds maximum size of %dMB (size: %.2fMB)",
				l.maxSizeMB, float64(info.Size())/1024/1024)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(content), nil
}

// LoadDirectory loads every *.txt file in dir in name order, one at a time.
// Only a failure to list the directory itself is returned as an error; per-file
// failures are reported in the returned results.
func (l *Loader) LoadDirectory(dir string) ([]FileResult, error) {
	paths, err := l.ListLogFiles(dir)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		results = append(results, l.LoadFile(path))
	}

	return results, nil
}

// ListLogFiles returns the candidate log files in dir, sorted by name.
func (l *Loader) ListLogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), LogFileExt) {
			continue
		}
		if l.reportFilename != "" && name == l.reportFilename {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	sort.Strings(paths)
	return paths, nil
}
