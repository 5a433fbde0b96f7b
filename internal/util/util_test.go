package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"panelsim/internal/domain"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	// The first token is available immediately.
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestNextWeekday(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2020-01-03", "2020-01-03"}, // Friday
		{"2020-01-04", "2020-01-06"}, // Saturday
		{"2020-01-05", "2020-01-06"}, // Sunday
		{"2020-01-06", "2020-01-06"}, // Monday
	}
	for _, tt := range tests {
		in, _ := domain.ParseDate(tt.in)
		got := domain.FormatDate(NextWeekday(in))
		if got != tt.want {
			t.Errorf("NextWeekday(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}

	// Every day over two years resolves to a weekday.
	d := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 730; i++ {
		got := NextWeekday(d)
		if wd := got.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("NextWeekday(%s) = %s (%s)", domain.FormatDate(d), domain.FormatDate(got), wd)
		}
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday && !got.Equal(d) {
			t.Fatalf("NextWeekday(%s) moved a weekday to %s", domain.FormatDate(d), domain.FormatDate(got))
		}
		d = d.AddDate(0, 0, 1)
	}
}

func TestAddPeriod(t *testing.T) {
	tests := []struct {
		in   string
		freq domain.Frequency
		want string
	}{
		{"2020-01-06", domain.FrequencyDaily, "2020-01-07"},
		{"2020-01-06", domain.FrequencyWeekly, "2020-01-13"},
		{"2020-01-15", domain.FrequencyMonthly, "2020-02-15"},
		{"2020-01-31", domain.FrequencyMonthly, "2020-02-29"},
		{"2021-01-31", domain.FrequencyMonthly, "2021-02-28"},
		{"2020-12-31", domain.FrequencyMonthly, "2021-01-31"},
		{"2020-02-29", domain.FrequencyYearly, "2021-02-28"},
		{"2019-06-03", domain.FrequencyYearly, "2020-06-03"},
	}
	for _, tt := range tests {
		in, _ := domain.ParseDate(tt.in)
		got := domain.FormatDate(AddPeriod(in, tt.freq))
		if got != tt.want {
			t.Errorf("AddPeriod(%s, %s) = %s, want %s", tt.in, tt.freq, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown", "ticker", "AAPL")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, "ticker=AAPL") {
		t.Errorf("text output missing attribute: %s", out)
	}

	buf.Reset()
	newLogger(&buf, "debug", "json").Debug("step", "n", 1)
	if !strings.Contains(buf.String(), `"msg":"step"`) {
		t.Errorf("json output = %s", buf.String())
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("ParseLevel should default to info")
	}
}

func TestEastern(t *testing.T) {
	loc := Eastern()
	if loc == nil {
		t.Fatal("Eastern() = nil")
	}
	if Eastern() != loc {
		t.Error("Eastern() should return the same location on every call")
	}
	// 03:00 UTC on June 2 is still June 1 in New York under either zone.
	ts := time.Date(2021, 6, 2, 3, 0, 0, 0, time.UTC).In(loc)
	if ts.Day() != 1 {
		t.Errorf("day in Eastern = %d, want 1", ts.Day())
	}
}
