package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, b *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("component", "test"))

	log.Info("hello", Int("n", 3), Err(errors.New("boom")), Err(nil))
	log.Trace("dropped")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0]["message"])
	assert.Equal(t, "test", lines[0]["component"])
	assert.Equal(t, float64(3), lines[0]["n"])
	assert.Equal(t, "boom", lines[0]["err"])
	assert.Contains(t, lines[0]["caller"], "logx_test.go:")
}

func TestServiceApplySwapsLevel(t *testing.T) {
	var buf bytes.Buffer
	svc, log := newService(Config{Level: "warn", Console: true, JSON: true}, &buf)
	defer svc.Close()

	log.Info("hidden")
	assert.False(t, log.Enabled(LevelInfo))

	svc.Apply(Config{Level: "debug", Console: true, JSON: true})
	log.Info("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "debug", svc.Config().Level)
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	var buf bytes.Buffer
	svc, log := newService(Config{File: FileConfig{Enabled: true, Path: path}}, &buf)

	log.Warn("to file", String("k", "v"))
	require.NoError(t, svc.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"k":"v"`)
	assert.Empty(t, buf.String())
}

func TestNopAndZero(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	assert.False(t, Nop().IsZero())
	Nop().Error("never written")
}

func TestValidLevel(t *testing.T) {
	assert.True(t, ValidLevel(""))
	assert.True(t, ValidLevel("Warning"))
	assert.False(t, ValidLevel("loud"))
}
