package logger_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Nzyazin/walletledger/internal/core/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerSplitsLevelsIntoFiles(t *testing.T) {
	dir := t.TempDir()

	log, cleanup, err := logger.NewLogger(logger.Options{Level: "debug", Dir: dir})
	require.NoError(t, err)

	log.Info("top-up applied", logger.StringField("wallet_id", "w-1"))
	log.Error("commit failed", logger.ErrorField("error", errors.New("boom")))
	cleanup()

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)

	assert.Contains(t, string(info), `"message":"top-up applied"`)
	assert.Contains(t, string(info), `"wallet_id":"w-1"`)
	assert.NotContains(t, string(info), "commit failed")
	assert.True(t, strings.Contains(string(errs), `"error":"boom"`))
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	dir := t.TempDir()

	log, cleanup, err := logger.NewLogger(logger.Options{Level: "warn", Dir: dir})
	require.NoError(t, err)
	log.Info("dropped")
	log.Warn("kept")
	cleanup()

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)

	assert.Empty(t, info)
	assert.Contains(t, string(errs), "kept")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := logger.NewLogger(logger.Options{Level: "loud"})
	assert.Error(t, err)
}
