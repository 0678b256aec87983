package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "development default", env: "local", want: zapcore.DebugLevel},
		{name: "production default", env: "production", want: zapcore.InfoLevel},
		{name: "explicit level", env: "production", level: "warn", want: zapcore.WarnLevel},
		{name: "bad level", env: "local", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("expected %s to be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("expected %s to be disabled", tt.want-1)
			}
		})
	}
}
