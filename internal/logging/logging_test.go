package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatJSON, Output: &buf})

	log.Debug().Msg("should not appear")
	log.Info().Msg("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestNewVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Verbose: true, Format: FormatJSON, Output: &buf})

	log.Debug().Msg("debug line")

	assert.Contains(t, buf.String(), "debug line")
}

func TestNewJSONFormatEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatJSON, Output: &buf})

	log.Info().Str("key", "value").Msg("json test")

	out := buf.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
	assert.Contains(t, out, `"key":"value"`)
}

func TestNewConsoleFormatIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatConsole, Output: &buf})

	log.Info().Msg("console test")

	out := buf.String()
	assert.Contains(t, out, "console test")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		input  string
		want   Format
		wantOK bool
	}{
		{"", FormatAuto, true},
		{"auto", FormatAuto, true},
		{"console", FormatConsole, true},
		{"JSON", FormatJSON, true},
		{"yaml", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseFormat(tc.input)
		assert.Equal(t, tc.wantOK, ok, "input %q", tc.input)
		if tc.wantOK {
			assert.Equal(t, tc.want, got, "input %q", tc.input)
		}
	}
}
