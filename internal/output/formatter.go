// Package output renders command results for the tabulate CLI.
package output

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", s)
	}
}

// Table is a titled block of rows for table output
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Document is something that has both a structured and a tabular rendering.
// Structured formats encode the value itself; table format prints its
// statements followed by its tables.
type Document interface {
	Statements() []Statement
	Tables() []Table
}

// Statement is a SQL text with its positional arguments
type Statement struct {
	Label string `json:"-" yaml:"-"`
	SQL   string `json:"sql" yaml:"sql"`
	Args  []any  `json:"args" yaml:"args"`
}

// Formatter writes values in one format
type Formatter struct {
	Format    Format
	NoHeaders bool
	Writer    io.Writer
}

// NewFormatter creates a new formatter writing to w
func NewFormatter(format Format, noHeaders bool, w io.Writer) *Formatter {
	return &Formatter{
		Format:    format,
		NoHeaders: noHeaders,
		Writer:    w,
	}
}

// Print outputs data in the configured format. Values that are not a
// Document fall back to YAML in table mode.
func (f *Formatter) Print(data any) error {
	switch f.Format {
	case FormatJSON:
		return f.printJSON(data)
	case FormatYAML:
		return f.printYAML(data)
	}

	doc, ok := data.(Document)
	if !ok {
		return f.printYAML(data)
	}
	for _, st := range doc.Statements() {
		if err := f.printStatement(st); err != nil {
			return err
		}
	}
	for _, t := range doc.Tables() {
		if err := f.PrintTable(t); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) printJSON(data any) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) printYAML(data any) error {
	encoder := yaml.NewEncoder(f.Writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

func (f *Formatter) printStatement(st Statement) error {
	if st.Label != "" {
		if _, err := fmt.Fprintf(f.Writer, "-- %s\n", st.Label); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(f.Writer, "%s;\n", st.SQL); err != nil {
		return err
	}
	for i, arg := range st.Args {
		if _, err := fmt.Fprintf(f.Writer, "--   $%d = %s\n", i+1, FormatArg(arg)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(f.Writer)
	return err
}

// PrintTable prints one table. Structured formats get a list of objects keyed
// by header. Empty tables print nothing.
func (f *Formatter) PrintTable(t Table) error {
	if len(t.Rows) == 0 {
		return nil
	}

	if f.Format != FormatTable {
		rows := make([]map[string]string, len(t.Rows))
		for i, row := range t.Rows {
			rowMap := make(map[string]string, len(row))
			for j, cell := range row {
				if j < len(t.Headers) {
					rowMap[t.Headers[j]] = cell
				}
			}
			rows[i] = rowMap
		}
		return f.Print(rows)
	}

	if t.Title != "" {
		if _, err := fmt.Fprintf(f.Writer, "%s:\n", t.Title); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(f.Writer)
	if !f.NoHeaders && len(t.Headers) > 0 {
		table.SetHeader(t.Headers)
	}
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(t.Rows)
	table.Render()

	_, err := fmt.Fprintln(f.Writer)
	return err
}

// FormatArg renders a bind argument the way psql would quote it
func FormatArg(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case driver.Valuer:
		value, err := v.Value()
		if err != nil {
			return fmt.Sprint(arg)
		}
		return FormatArg(value)
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(v.String(), "'", "''") + "'"
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatArg(item)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
