package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/cimetrics/reporter/analysis"
)

// Summary identifies the build a report was made for
type Summary struct {
	Branch       string
	BuildID      int64
	BuildNumber  string
	BuildURL     string
	TargetBranch string
	// BuildURLByID links to another build of the pipeline
	BuildURLByID func(id int64) string
}

func (s Summary) urlFor(id int64) string {
	if s.BuildURLByID == nil {
		return ""
	}
	return s.BuildURLByID(id)
}

// SummaryLine is the one-line description heading a report
func SummaryLine(s Summary, target *analysis.SeriesTable) string {
	if target.Len() == 0 {
		return fmt.Sprintf("WARNING: %s does not have any data", s.TargetBranch)
	}
	first, last := target.BuildIDs[0], target.BuildIDs[target.Len()-1]
	builds := fmt.Sprintf("%d builds from [%d](%s) to [%d](%s)",
		target.Len(), first, s.urlFor(first), last, s.urlFor(last))
	return fmt.Sprintf("%s@[%d aka %s](%s) vs %s ewma over %s",
		s.Branch, s.BuildID, s.BuildNumber, s.BuildURL, s.TargetBranch, builds)
}

// WriteText writes the summary line followed by a collapsible section with
// the comparison and the raw data
func WriteText(w io.Writer, s Summary, in *Input) error {
	var body bytes.Buffer

	switch in.Mode {
	case ModeMonitor:
		if err := writeLevelShifts(&body, in); err != nil {
			return err
		}
	default:
		if in.Comparison != nil && len(in.Comparison.Rows) > 0 {
			if err := writeComparison(&body, in.Comparison); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(&body, "%s\n\n", s.TargetBranch)
	if err := writeSeries(&body, in.Target); err != nil {
		return err
	}

	header := SummaryLine(s, in.Target)
	switch {
	case in.Mode == ModeMonitor:
	case in.Branch.Len() == 0:
		header = fmt.Sprintf("WARNING: %s does not have any data", s.Branch)
	default:
		fmt.Fprintf(&body, "\n%s\n\n", s.Branch)
		if err := writeSeries(&body, in.Branch); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%s\n<details>\n<summary>Click to see table</summary>\n\n%s\n</details>\n",
		header, body.String())
	return err
}

// WriteTextFile writes WriteText output to path
func WriteTextFile(path string, s Summary, in *Input) error {
	var buf bytes.Buffer
	if err := WriteText(&buf, s, in); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newMarkdownTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
	)
}

func writeComparison(w io.Writer, c *analysis.Comparison) error {
	table := newMarkdownTable(w)
	table.Header([]string{"metric", "branch", "baseline", "change", "status"})
	for _, row := range c.Rows {
		change := FormatPercent(row.PercentChange)
		if row.Err != nil {
			change = fmt.Sprintf("n/a (%s)", row.Err.Kind)
		}
		if err := table.Append([]string{
			row.DisplayName,
			FormatValue(row.BranchValue),
			FormatValue(row.BaselineValue),
			change,
			string(row.Status),
		}); err != nil {
			return fmt.Errorf("failed to add comparison row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render comparison table: %w", err)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func writeLevelShifts(w io.Writer, in *Input) error {
	if len(in.Anomalies) == 0 {
		return nil
	}
	table := newMarkdownTable(w)
	table.Header([]string{"metric", "level shifts"})
	for _, name := range in.Target.Columns {
		shifts := in.Anomalies[name]
		if len(shifts) == 0 {
			continue
		}
		labels := make([]string, 0, len(shifts))
		for _, idx := range shifts {
			if idx >= 0 && idx < in.Target.Len() {
				labels = append(labels, in.Target.Labels[idx])
			}
		}
		if err := table.Append([]string{name, strings.Join(labels, ", ")}); err != nil {
			return fmt.Errorf("failed to add level shift row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render level shift table: %w", err)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func writeSeries(w io.Writer, t *analysis.SeriesTable) error {
	if t.Len() == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	table := newMarkdownTable(w)
	header := append([]string{"build_id", "build_number"}, t.Columns...)
	table.Header(header)
	for i, id := range t.BuildIDs {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatInt(id, 10), t.Labels[i])
		for _, name := range t.Columns {
			row = append(row, FormatValue(t.Column(name)[i]))
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to add build %d: %w", id, err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render series table: %w", err)
	}
	return nil
}
