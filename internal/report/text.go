package report

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
	separator       = "============================================================"
)

// Render formats the report as plain text.
func Render(r *Report) string {
	var sb strings.Builder

	sb.WriteString(separator + "\n")
	sb.WriteString("POWER METER ANALYSIS REPORT\n")
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "Run ID:     %s\n", r.RunID)
	fmt.Fprintf(&sb, "Generated:  %s\n", r.GeneratedAt.Format(timestampLayout))
	fmt.Fprintf(&sb, "Directory:  %s\n", r.Directory)
	fmt.Fprintf(&sb, "Files:      %d loaded, %d rejected\n", len(r.Accepted), len(r.Rejected))
	fmt.Fprintf(&sb, "Records:    %d\n", r.Records)
	if r.Records > 0 {
		fmt.Fprintf(&sb, "Period:     %s .. %s\n", r.Start.Format(timestampLayout), r.End.Format(timestampLayout))
	}

	writeStatistics(&sb, r)
	writeDaily(&sb, r)
	writeOutliers(&sb, r)
	writeFiles(&sb, r)
	writeWarnings(&sb, r)

	return sb.String()
}

func writeStatistics(sb *strings.Builder, r *Report) {
	sb.WriteString("\n[1] BASIC STATISTICS\n")

	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, s := range r.Summaries {
		has := s.Count > 0
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Field, s.Count,
			formatStat(s.Mean, has), formatStat(s.Std, s.HasStd()),
			formatStat(s.Min, has), formatStat(s.Q1, has), formatStat(s.Q2, has),
			formatStat(s.Q3, has), formatStat(s.Max, has))
	}
	_ = tw.Flush()
}

// formatStat prints an undefined statistic as "-"
func formatStat(v float64, defined bool) string {
	if !defined {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func writeDaily(sb *strings.Builder, r *Report) {
	sb.WriteString("\n[2] ENERGY CONSUMPTION PER DAY (kWh)\n")

	if len(r.Daily) == 0 {
		sb.WriteString("No daily data.\n")
		return
	}

	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "date\tkWh\tsamples\tgenerated kWh")
	for _, d := range r.Daily {
		_, _ = fmt.Fprintf(tw, "%s\t%.3f\t%d\t%.3f\n",
			d.Date.Format(dateLayout), d.KWhEstimate, d.Samples, d.GeneratedKWhEstimate)
	}
	_ = tw.Flush()
	fmt.Fprintf(sb, "Total: %.3f kWh\n", r.TotalKWh())
}

func writeOutliers(sb *strings.Builder, r *Report) {
	sb.WriteString("\n[3] OUTLIER DETECTION (IQR METHOD)\n")

	for _, s := range r.Outliers {
		fmt.Fprintf(sb, "\n--- %s ---\n", s.Label)
		if s.Bounds.Count == 0 {
			sb.WriteString("No values available.\n")
			continue
		}

		fmt.Fprintf(sb, "Lower bound: %.3f\n", s.Bounds.Lower)
		fmt.Fprintf(sb, "Upper bound: %.3f\n", s.Bounds.Upper)
		fmt.Fprintf(sb, "Q1: %.3f | Q3: %.3f\n", s.Bounds.Q1, s.Bounds.Q3)
		fmt.Fprintf(sb, "Outliers found: %d\n", s.Total)

		if s.Total == 0 {
			sb.WriteString("No outliers detected.\n")
			continue
		}

		fmt.Fprintf(sb, "First %d examples:\n", len(s.Preview))
		for _, p := range s.Preview {
			fmt.Fprintf(sb, "  %s  %.3f  (%s:%d)\n", p.Timestamp.Format(timestampLayout), p.Value, p.Source, p.Line)
		}
	}
}

func writeFiles(sb *strings.Builder, r *Report) {
	sb.WriteString("\n[4] FILES\n")

	for _, f := range r.Accepted {
		fmt.Fprintf(sb, "  OK        %s  records=%d skipped=%d\n", f.File, f.Records, f.Skipped)
	}
	for _, f := range r.Rejected {
		fmt.Fprintf(sb, "  REJECTED  %s  %s\n", f.File, f.Error)
	}
}

func writeWarnings(sb *strings.Builder, r *Report) {
	var warnings []string
	for _, d := range r.Daily {
		if d.ResetSuspected() {
			warnings = append(warnings, fmt.Sprintf(
				"%s: energy counter decreased %d time(s), the kWh estimate may be understated",
				d.Date.Format(dateLayout), d.CounterResets))
		}
	}
	if len(warnings) == 0 {
		return
	}

	sb.WriteString("\nWARNINGS\n")
	for _, w := range warnings {
		sb.WriteString("  " + w + "\n")
	}
}

// FormatDuration formats the covered period of a report, e.g. "2d 3h".
func FormatDuration(r *Report) string {
	if r.Records == 0 {
		return "0h"
	}
	d := r.End.Sub(r.Start).Round(time.Hour)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if days == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
