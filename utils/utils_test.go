package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancelled sleep should return immediately")
	}
	if err := Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("zero sleep should still report cancellation, got %v", err)
	}
}

func TestRandomDelayBounds(t *testing.T) {
	start := time.Now()
	if err := RandomDelay(context.Background(), 5*time.Millisecond, 10*time.Millisecond); err != nil {
		t.Fatalf("delay: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("returned before the minimum delay")
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(LogOptions{JSON: true, Output: &buf})
	defer InitLogger(LogOptions{})

	Debug("hidden")
	With("run_id", "r1").Info("progress", "processed", "1/2")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "progress" || rec["run_id"] != "r1" || rec["processed"] != "1/2" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestQuietLogger(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(LogOptions{Quiet: true, Output: &buf})
	defer InitLogger(LogOptions{})

	Info("progress")
	Warn("slow page")
	Error("write failed")

	if out := buf.String(); strings.Contains(out, "progress") || strings.Contains(out, "slow page") || !strings.Contains(out, "write failed") {
		t.Fatalf("quiet logger should keep errors only: %q", out)
	}
}
