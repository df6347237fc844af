package utils

import "testing"

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		debug bool
	}{
		{"debug", true},
		{"info", false},
		{" warn ", false},
		{"", false},
		{"verbose", false},
	}

	for _, tt := range tests {
		if got := NewLoggerWithLevel(tt.level).DebugEnabled(); got != tt.debug {
			t.Errorf("NewLoggerWithLevel(%q).DebugEnabled() = %v; want %v", tt.level, got, tt.debug)
		}
	}
}
