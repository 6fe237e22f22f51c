package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForComponent_WritesToFile(t *testing.T) {
	dir := t.TempDir()

	entry, closeFn := ForComponent("join", dir)
	entry.Info("credential received")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, "join.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "credential received")
	assert.Contains(t, string(data), "component=join")
}

func TestForComponent_AppendsAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	entry, closeFn := ForComponent("init", dir)
	entry.Info("first run")
	require.NoError(t, closeFn())

	entry, closeFn = ForComponent("init", dir)
	entry.Info("second run")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, "init.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "first run")
	assert.Contains(t, string(data), "second run")
}

func TestNewTestLogger_LevelsAndFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	entry := NewTestLogger(&buf)

	entry.Debug("probe ok")
	entry.Warn("pods not converged")

	out := buf.String()
	assert.Contains(t, out, "probe ok")
	assert.Contains(t, out, "pods not converged")
	assert.Contains(t, out, "level=warning")
}

func TestRemediation(t *testing.T) {
	t.Parallel()
	msg := Remediation("join", "mount check", "attach the shared storage mount")
	assert.Contains(t, msg, "join failed at step \"mount check\"")
	assert.Contains(t, msg, "re-run `clusterforge join`")
}
