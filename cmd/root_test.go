package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperrec/vesper-recorder/internal/buildinfo"
)

const testConfig = `
station:
  name: Test
  time_zone: UTC
input:
  driver: synthetic
  device_index: 0
logging:
  file:
    enabled: false
schedule:
  interval:
    start: "2024-06-01 12:00:00"
    end: "2024-06-01 13:00:00"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := RootCommand(buildinfo.NewContext("1.0.0", "2024-06-01"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--config", "/nonexistent/settings.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Vesper Recorder 1.0.0 (built 2024-06-01")
}

func TestDevicesCommand(t *testing.T) {
	t.Parallel()
	config := writeConfig(t, testConfig)

	out, err := execute(t, "devices", "--config", config)
	require.NoError(t, err)
	assert.Contains(t, out, "*  0  Synthetic sine tone, 2 channels (default)")

	out, err = execute(t, "devices", "--config", config, "--find", "sine")
	require.NoError(t, err)
	assert.Equal(t, "0\tSynthetic sine tone\n", out)

	_, err = execute(t, "devices", "--config", config, "--find", "usb")
	require.Error(t, err)
}

func TestDevicesCommandMissingSelection(t *testing.T) {
	t.Parallel()
	config := writeConfig(t, testConfig)

	out, err := execute(t, "devices", "--config", config, "--driver", "synthetic")
	require.NoError(t, err)
	assert.NotContains(t, out, "There is no input device")
}

func TestScheduleCommand(t *testing.T) {
	t.Parallel()
	config := writeConfig(t, testConfig)

	out, err := execute(t, "schedule", "--config", config)
	require.NoError(t, err)
	assert.Contains(t, out, "1 scheduled interval, times in UTC")
	assert.Contains(t, out, "All scheduled recordings have ended.")

	out, err = execute(t, "schedule", "--config", config, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-06-01 12:00:00 UTC  to  2024-06-01 13:00:00 UTC")
	assert.Contains(t, out, "past")
}

func TestScheduleCommandRuleFile(t *testing.T) {
	t.Parallel()
	config := writeConfig(t, testConfig)
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
intervals:
  - start: "2030-01-01 00:00:00"
    duration: 1h
  - start: "2030-01-02 00:00:00"
    duration: 30m
`), 0o600))

	out, err := execute(t, "schedule", "--config", config, "--file", rules, "--count", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 scheduled intervals")
	assert.Contains(t, out, "2030-01-01 00:00:00 UTC  to  2030-01-01 01:00:00 UTC")
	assert.NotContains(t, out, "2030-01-02")
	assert.Contains(t, out, "future")
}

func TestInvalidSettings(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "schedule", "--config", "/nonexistent/settings.yaml")
	require.Error(t, err)

	config := writeConfig(t, testConfig+"schedule_coalesce: sometimes\n")
	_, err = execute(t, "schedule", "--config", config)
	require.Error(t, err)
}
