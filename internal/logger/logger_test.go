package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(WARN)
	Info("hidden")
	Warn("fit skipped", "no matches")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] logger_test.go:")
	assert.Contains(t, out, "fit skipped no matches")
}

func TestNonPrimitiveArgsRenderAsJSON(t *testing.T) {
	var buf bytes.Buffer
	SetWriter(&buf)
	prev := GetLevel()
	defer SetLevel(prev)
	SetLevel(DEBUG)

	Debug("ratings", map[string]float64{"Arsenal": 1514}, errors.New("boom"), 0.5)

	out := buf.String()
	assert.Contains(t, out, "[Object of type map[string]float64]")
	assert.Contains(t, out, `"Arsenal": 1514`)
	assert.Contains(t, out, "boom 0.5000")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"":        INFO,
		"Warning": WARN,
		"ERROR":   ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetLogOutputRejectsUnknownType(t *testing.T) {
	assert.Error(t, SetLogOutput('x'))
}
