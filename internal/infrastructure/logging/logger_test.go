package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_ProductionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundy.log")
	logger, err := NewLogger(&Config{FilePath: path, Level: "info", Env: "production", AppID: "roundy"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("lesson graded", zap.Int("lesson.id", 1))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "lesson graded", entry["message"])
	assert.Equal(t, "info", entry["log.level"])
	assert.Equal(t, "roundy", entry["service.id"])
	assert.Equal(t, 1.0, entry["lesson.id"])
	assert.Contains(t, entry, "@timestamp")
}

func TestNewLogger_Levels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		_, err := NewLogger(&Config{Level: level})
		assert.NoError(t, err, level)
	}
	_, err := NewLogger(&Config{Level: "verbose"})
	assert.Error(t, err)
	_, err = NewLogger(&Config{Level: "fatal"})
	assert.Error(t, err)
}

func TestLoggerContext(t *testing.T) {
	assert.NotNil(t, ExtractLoggerFromContext(context.Background()))

	logger := zap.NewExample()
	ctx := SetLoggerInContext(context.Background(), logger)
	assert.Same(t, logger, ExtractLoggerFromContext(ctx))
}
