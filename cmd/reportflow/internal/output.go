package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// FormatText is human-readable text output.
	FormatText OutputFormat = "text"
	// FormatJSON is structured JSON output.
	FormatJSON OutputFormat = "json"
)

// Formatter renders command results in the selected format. One formatter
// serves both modes so commands do not branch on format for the common
// shapes: a status line, a table of rows, or a raw document.
type Formatter struct {
	w    io.Writer
	json bool
}

// NewFormatter creates a formatter writing to w, defaulting to stdout.
func NewFormatter(format OutputFormat, w io.Writer) *Formatter {
	if w == nil {
		w = os.Stdout
	}
	return &Formatter{w: w, json: format == FormatJSON}
}

// PrintSuccess renders a success status line.
func (f *Formatter) PrintSuccess(message string) error {
	if f.json {
		return f.PrintJSON(map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintf(f.w, "✓ %s\n", message)
	return err
}

// PrintError renders a failure status line.
func (f *Formatter) PrintError(message string) error {
	if f.json {
		return f.PrintJSON(map[string]string{"status": "error", "message": message})
	}
	_, err := fmt.Fprintf(f.w, "✗ %s\n", message)
	return err
}

// PrintTable renders rows under uppercase headers, tab-aligned in text mode
// and as an array of snake_case-keyed records in JSON mode. An empty table
// prints a placeholder instead of lone headers.
func (f *Formatter) PrintTable(headers []string, rows [][]string) error {
	if f.json {
		records := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			record := make(map[string]string, len(headers))
			for i, header := range headers {
				if key := columnKey(header); key != "" && i < len(row) {
					record[key] = row[i]
				}
			}
			records = append(records, record)
		}
		return f.PrintJSON(records)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(f.w, "(none)")
		return err
	}

	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t"))); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// PrintJSON renders data as indented JSON regardless of the selected format.
func (f *Formatter) PrintJSON(data any) error {
	encoder := json.NewEncoder(f.w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// columnKey turns a display header into a JSON object key. Blank headers
// (marker columns) are skipped.
func columnKey(header string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}
