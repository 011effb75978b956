package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var out io.Writer = os.Stdout

// render writes v as JSON or YAML, or calls tableFn for the human-readable form
func render(format string, v interface{}, tableFn func(w io.Writer)) error {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case formatTable, "":
		tableFn(out)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (table, json, yaml)", format)
	}
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

// truncateStr shortens s to maxWidth terminal cells
func truncateStr(s string, maxWidth int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, maxWidth, "...")
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
