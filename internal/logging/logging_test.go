// ABOUTME: Tests for logger construction
// ABOUTME: Checks level handling and file output
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/beatgate/internal/config"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level     string
		format    string
		enabled   zapcore.Level
		disabled  zapcore.Level
		expectErr bool
	}{
		{"debug", "json", zapcore.DebugLevel, zapcore.InvalidLevel, false},
		{"info", "console", zapcore.InfoLevel, zapcore.DebugLevel, false},
		{"warn", "json", zapcore.WarnLevel, zapcore.InfoLevel, false},
		{"loud", "json", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(config.LoggingConfig{Level: tt.level, Format: tt.format})
			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to build logger: %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("expected %s to be enabled", tt.enabled)
			}
			if tt.disabled != zapcore.InvalidLevel && logger.Core().Enabled(tt.disabled) {
				t.Errorf("expected %s to be disabled", tt.disabled)
			}
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")

	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	logger.Info("session started")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "session started") {
		t.Errorf("expected message in log file, got %q", data)
	}
}
