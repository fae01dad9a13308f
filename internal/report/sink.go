package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects where the rendered report goes.
type Mode string

// Delivery modes.
const (
	ModeDisplay Mode = "display"
	ModeSave    Mode = "save"
	ModeBoth    Mode = "both"
	ModeNone    Mode = "none"
)

// DefaultFilename is the name of the saved report inside the analyzed directory.
const DefaultFilename = "meter_report.txt"

// ValidModes returns the accepted mode strings.
func ValidModes() []string {
	return []string{string(ModeDisplay), string(ModeSave), string(ModeBoth), string(ModeNone)}
}

// ParseMode converts a string to a Mode. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeDisplay, ModeSave, ModeBoth, ModeNone:
		return m, nil
	default:
		return "", fmt.Errorf("invalid report mode: %q (valid modes: %v)", s, ValidModes())
	}
}

func (m Mode) display() bool { return m == ModeDisplay || m == ModeBoth }
func (m Mode) save() bool    { return m == ModeSave || m == ModeBoth }

// Sink writes rendered reports to a display writer and/or a file.
type Sink struct {
	out      io.Writer
	dir      string
	filename string
}

// NewSink creates a sink that displays on out and saves filename inside dir.
func NewSink(out io.Writer, dir, filename string) *Sink {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Sink{out: out, dir: dir, filename: filename}
}

// Path returns the location a saved report is written to.
func (s *Sink) Path() string {
	return filepath.Join(s.dir, s.filename)
}

// Deliver passes text through according to mode. It returns the saved file path, or
// an empty string when nothing was saved.
func (s *Sink) Deliver(mode Mode, text string) (string, error) {
	if mode.display() {
		if _, err := io.WriteString(s.out, text); err != nil {
			return "", fmt.Errorf("failed to display report: %w", err)
		}
	}

	if !mode.save() {
		return "", nil
	}

	path := s.Path()
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return path, nil
}
