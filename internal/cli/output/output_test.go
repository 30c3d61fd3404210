package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionRows [][]string

func (r sessionRows) Headers() []string { return []string{"Session ID", "State"} }
func (r sessionRows) Rows() [][]string  { return r }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrint_Table(t *testing.T) {
	rows := sessionRows{{"ns=1;i=1", "activated"}, {"ns=1;i=2", "created"}}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, rows, rows, "No sessions."))

	out := buf.String()
	assert.Contains(t, out, "SESSION ID")
	assert.Contains(t, out, "ns=1;i=2")
	assert.Contains(t, out, "activated")
}

func TestPrint_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, []string{}, sessionRows{}, "No sessions."))
	assert.Equal(t, "No sessions.\n", buf.String())
}

func TestPrint_JSONAndYAML(t *testing.T) {
	data := map[string]any{"session_id": "ns=1;i=7", "requests": 3}

	var js bytes.Buffer
	require.NoError(t, Print(&js, FormatJSON, data, nil, ""))
	assert.Contains(t, js.String(), `"session_id": "ns=1;i=7"`)

	var ym bytes.Buffer
	require.NoError(t, Print(&ym, FormatYAML, data, nil, ""))
	assert.Contains(t, ym.String(), "requests: 3")
}

func TestPrintKeyValues(t *testing.T) {
	var kv KeyValues
	kv.Add("State", "activated")
	kv.Add("User", "operator")

	var buf bytes.Buffer
	require.NoError(t, PrintKeyValues(&buf, kv))

	out := buf.String()
	assert.Contains(t, out, "State")
	assert.Contains(t, out, "operator")
}

func TestStatusLines(t *testing.T) {
	DisableColor()

	var buf bytes.Buffer
	Success(&buf, "Session %s closed", "ns=1;i=7")
	Warning(&buf, "issued tokens disabled")

	assert.Equal(t, "Session ns=1;i=7 closed\nissued tokens disabled\n", buf.String())
}
