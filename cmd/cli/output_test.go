package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Source string `json:"source" yaml:"source"`
	Count  int    `json:"count" yaml:"count"`
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := out
	out = buf
	t.Cleanup(func() { out = prev })
	return buf
}

func TestRender_Formats(t *testing.T) {
	v := sample{Source: "hotdogs", Count: 3}
	tableFn := func(w io.Writer) {
		tw := newTable(w, table.Row{"Source", "Count"})
		tw.AppendRow(table.Row{v.Source, v.Count})
		tw.Render()
	}

	buf := captureOutput(t)
	require.NoError(t, render("json", v, tableFn))
	assert.JSONEq(t, `{"source":"hotdogs","count":3}`, buf.String())

	buf.Reset()
	require.NoError(t, render("YAML", v, tableFn))
	assert.Equal(t, "source: hotdogs\ncount: 3\n", buf.String())

	buf.Reset()
	require.NoError(t, render("table", v, tableFn))
	assert.Contains(t, buf.String(), "hotdogs")
	assert.Contains(t, buf.String(), "SOURCE")

	assert.Error(t, render("xml", v, tableFn))
}

func TestTruncateStr(t *testing.T) {
	assert.Equal(t, "short text", truncateStr("short\n  text", 20))
	assert.Equal(t, "hot dog...", truncateStr("hot dog with everything", 10))
	// wide runes count as two cells
	assert.Equal(t, "ホッ...", truncateStr("ホットドッグ", 7))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = parseID("0")
	assert.Error(t, err)
	_, err = parseID("abc")
	assert.Error(t, err)
}
