package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelWarn, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("Messages below level should be suppressed, got: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("Messages at or above level should be logged, got: %s", out)
	}
}

func TestDefaultLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelInfo, &buf)

	logger.WithField("node", "A").Info("ready")

	out := buf.String()
	if !strings.Contains(out, "node=A") {
		t.Errorf("Expected field in output, got: %s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestAssert_Handler(t *testing.T) {
	var captured string
	prev := SetAssertHandler(func(msg string) {
		captured = msg
	})
	defer SetAssertHandler(prev)

	Assert(true, "should not fire")
	if captured != "" {
		t.Errorf("Assert(true) must not invoke handler, got %q", captured)
	}

	Assert(false, "node %s has no workload", "A")
	if captured != "node A has no workload" {
		t.Errorf("Unexpected assert message: %q", captured)
	}
}

func TestEWMA_Update(t *testing.T) {
	e := NewEWMA(4)

	if got := e.Update(1000); got != 1000 {
		t.Errorf("First sample should seed the average, got %d", got)
	}

	// 1000 - 1000/4 + 2000/4 = 1250
	if got := e.Update(2000); got != 1250 {
		t.Errorf("Expected 1250, got %d", got)
	}

	if e.Load() != 1250 {
		t.Errorf("Load mismatch: %d", e.Load())
	}
}

func TestTimer_Phases(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := NewTimer("execute", WithClock(clock))

	pt := timer.Start("rank")
	clock.Advance(50 * time.Millisecond)
	d := pt.Stop()

	if d != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %v", d)
	}
	if timer.GetDuration("rank") != 50*time.Millisecond {
		t.Errorf("GetDuration mismatch: %v", timer.GetDuration("rank"))
	}

	// Second stop has no effect.
	clock.Advance(time.Second)
	if d := pt.Stop(); d != 50*time.Millisecond {
		t.Errorf("Stop must be idempotent, got %v", d)
	}

	if !strings.Contains(timer.Summary(), "rank") {
		t.Error("Summary should include phase name")
	}
}

func TestTimer_Disabled(t *testing.T) {
	timer := NewTimer("noop", WithEnabled(false))
	pt := timer.Start("phase")
	if pt.Stop() != 0 {
		t.Error("Disabled timer must report zero durations")
	}
	if timer.Summary() != "" {
		t.Error("Disabled timer must produce empty summary")
	}
}

func TestMockClock(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)

	clock.Advance(2 * time.Second)
	if clock.Since(start) != 2*time.Second {
		t.Errorf("Expected 2s, got %v", clock.Since(start))
	}

	clock.Sleep(time.Second)
	if clock.Since(start) != 3*time.Second {
		t.Errorf("Sleep should advance mock time, got %v", clock.Since(start))
	}
}
