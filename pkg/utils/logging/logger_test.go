package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, err := InitLogger("test", Options{Console: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("round created")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "round created")
	assert.NotContains(t, out, "hidden")
}

func TestInitLogger_VerboseShowsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := InitLogger("test", Options{Console: &buf, Verbose: true})
	require.NoError(t, err)

	logger.Debug("lottery drawn")
	_ = logger.Sync()

	assert.Contains(t, buf.String(), "lottery drawn")
}

func TestInitLogger_WritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := InitLogger("test", Options{Dir: dir, Console: &buf})
	require.NoError(t, err)

	logger.Debug("signup stored")
	_ = logger.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "test_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"signup stored"`)
	assert.Contains(t, string(data), `"env":"test"`)
}
