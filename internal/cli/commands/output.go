package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/pricedash/pricedash/internal/apiclient"
)

var outputFormats = []string{"table", "json", "yaml"}

func checkFormat(format string) error {
	for _, f := range outputFormats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("unsupported output format %q (want one of: %s)", format, strings.Join(outputFormats, ", "))
}

// printRecords writes rows as a table, JSON or YAML
func printRecords(w io.Writer, format string, rows apiclient.Records) error {
	switch format {
	case "json":
		return writeJSON(w, rows)
	case "yaml":
		return writeYAML(w, rows)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}

	cols := rows.Columns()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := make([]string, len(cols))
	rule := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.ToUpper(c)
		rule[i] = strings.Repeat("─", len(c))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = formatCell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// printRecord writes a single row as key/value pairs
func printRecord(w io.Writer, format string, row apiclient.Record) error {
	switch format {
	case "json":
		return writeJSON(w, row)
	case "yaml":
		return writeYAML(w, row)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range (apiclient.Records{row}).Columns() {
		fmt.Fprintf(tw, "%s:\t%s\n", c, formatCell(row[c]))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
