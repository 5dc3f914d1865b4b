package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cytodx/config"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cytodx.log")
	cfg := config.Default().Log
	cfg.Level = "info"
	cfg.File = path

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("model loaded", zap.String("version", "abc"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "model loaded", entry["msg"])
	assert.Equal(t, "abc", entry["version"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default().Log
	cfg.Level = "loud"
	_, err := New(cfg)
	require.Error(t, err)

	cfg = config.Default().Log
	cfg.Format = "xml"
	_, err = New(cfg)
	require.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
