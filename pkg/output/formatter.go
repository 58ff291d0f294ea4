package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/larrydiffey/difcopy/pkg/core"
)

// Format represents output format type
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Formatter handles output formatting
type Formatter struct {
	format Format
	writer io.Writer
}

// New creates a new formatter
func New(format Format, writer io.Writer) *Formatter {
	return &Formatter{
		format: format,
		writer: writer,
	}
}

// Format outputs data in the specified format
func (f *Formatter) Format(data interface{}) error {
	switch f.format {
	case FormatJSON:
		return f.formatJSON(data)
	case FormatYAML:
		return f.formatYAML(data)
	case FormatCSV:
		return f.formatCSV(data)
	case FormatText:
		return f.formatText(data)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// Operations prints a history listing, newest first
func (f *Formatter) Operations(ops []*core.Operation) error {
	switch f.format {
	case FormatText:
		return f.operationTable(ops)
	case FormatCSV:
		rows := [][]string{{"id", "mode", "status", "items", "failed", "bytes", "created_at", "duration"}}
		for _, op := range ops {
			rows = append(rows, []string{
				op.ID,
				string(op.Mode),
				string(op.Status),
				fmt.Sprint(len(op.Items)),
				fmt.Sprint(len(op.ItemsWithStatus(core.ItemFailed))),
				fmt.Sprint(op.BytesTransferred()),
				op.CreatedAt.Format(time.RFC3339),
				op.Duration().String(),
			})
		}
		return f.formatCSV(rows)
	default:
		return f.Format(ops)
	}
}

func (f *Formatter) operationTable(ops []*core.Operation) error {
	if len(ops) == 0 {
		_, err := fmt.Fprintln(f.writer, "No operations in history")
		return err
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tITEMS\tFAILED\tSIZE\tCREATED")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			op.ID,
			op.Mode,
			op.Status,
			len(op.Items),
			len(op.ItemsWithStatus(core.ItemFailed)),
			humanize.IBytes(uint64(op.TotalBytes())),
			humanize.Time(op.CreatedAt),
		)
	}
	return tw.Flush()
}

// Operation prints one operation with its items
func (f *Formatter) Operation(op *core.Operation) error {
	if f.format != FormatText {
		return f.Format(op)
	}

	header := map[string]interface{}{
		"id":           op.ID,
		"mode":         op.Mode,
		"status":       op.Status,
		"verification": op.Verification,
		"conflict":     op.ConflictHandling,
		"transferred":  fmt.Sprintf("%s / %s", humanize.IBytes(uint64(op.BytesTransferred())), humanize.IBytes(uint64(op.TotalBytes()))),
		"duration":     op.Duration(),
	}
	if err := f.formatTextMap(header); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nITEM\tSTATUS\tSIZE\tSOURCE\tDESTINATION\tERROR")
	for _, item := range op.Items {
		status := string(item.Status)
		if item.Skipped {
			status += " (skipped)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			status,
			humanize.IBytes(uint64(item.Size)),
			item.SourcePath,
			item.DestinationPath,
			item.ErrorMessage,
		)
	}
	return tw.Flush()
}

// formatJSON outputs data as JSON
func (f *Formatter) formatJSON(data interface{}) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// formatYAML outputs data as YAML
func (f *Formatter) formatYAML(data interface{}) error {
	encoder := yaml.NewEncoder(f.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// formatCSV outputs data as CSV
func (f *Formatter) formatCSV(data interface{}) error {
	writer := csv.NewWriter(f.writer)
	defer writer.Flush()

	switch v := data.(type) {
	case [][]string:
		return writer.WriteAll(v)
	case map[string]interface{}:
		headers := sortedKeys(v)
		values := make([]string, 0, len(v))
		for _, key := range headers {
			values = append(values, fmt.Sprintf("%v", v[key]))
		}
		if err := writer.Write(headers); err != nil {
			return err
		}
		return writer.Write(values)
	default:
		return fmt.Errorf("unsupported CSV data type: %T", data)
	}
}

// formatText outputs data as human-readable text
func (f *Formatter) formatText(data interface{}) error {
	switch v := data.(type) {
	case string:
		_, err := fmt.Fprintln(f.writer, v)
		return err
	case map[string]interface{}:
		return f.formatTextMap(v)
	case []interface{}:
		return f.formatTextList(v)
	default:
		_, err := fmt.Fprintf(f.writer, "%+v\n", v)
		return err
	}
}

// formatTextMap formats a map as key-value pairs sorted by key
func (f *Formatter) formatTextMap(m map[string]interface{}) error {
	maxKeyLen := 0
	for key := range m {
		if len(key) > maxKeyLen {
			maxKeyLen = len(key)
		}
	}

	for _, key := range sortedKeys(m) {
		padding := strings.Repeat(" ", maxKeyLen-len(key))
		if _, err := fmt.Fprintf(f.writer, "%s:%s %v\n", key, padding, m[key]); err != nil {
			return err
		}
	}
	return nil
}

// formatTextList formats a list with bullets
func (f *Formatter) formatTextList(list []interface{}) error {
	for _, item := range list {
		if _, err := fmt.Fprintf(f.writer, "  • %v\n", item); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Error formats an error message
func (f *Formatter) Error(err error) error {
	return f.Format(map[string]interface{}{
		"error": err.Error(),
	})
}

// Success formats a success message
func (f *Formatter) Success(message string) error {
	return f.Format(map[string]interface{}{
		"status":  "success",
		"message": message,
	})
}
