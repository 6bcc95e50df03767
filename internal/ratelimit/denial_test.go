package ratelimit

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuildDenial_Shape(t *testing.T) {
	t.Parallel()

	denial := BuildDenial(5, 100, 0)

	if denial.Success {
		t.Errorf("success must be false")
	}
	if denial.Error.Code != "RATE_LIMITED" {
		t.Errorf("unexpected code %q", denial.Error.Code)
	}
	if !strings.Contains(denial.Error.Message, "5 seconds") {
		t.Errorf("message should mention retry hint: %q", denial.Error.Message)
	}
	if denial.Error.Details.RetryAfter != 5 {
		t.Errorf("retryAfter = %d, want 5", denial.Error.Details.RetryAfter)
	}
	if denial.Error.Details.Limit != 100 {
		t.Errorf("limit = %d, want 100", denial.Error.Details.Limit)
	}
	if denial.Error.Details.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", denial.Error.Details.Remaining)
	}
}

func TestBuildDenial_WireJSON(t *testing.T) {
	t.Parallel()

	resetAt := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	denial := BuildDenial(5, 100, 0, DenialOptions{
		Window:    WindowPerMinute,
		ResetAt:   resetAt,
		Operation: "token_refresh",
	})

	raw, err := json.Marshal(denial)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	want := `{"success":false,"error":{"code":"RATE_LIMITED","message":"Rate limit exceeded. Please retry after 5 seconds.","details":{"retryAfter":5,"limit":100,"remaining":0,"window":"per_minute","resetAt":"2024-03-01T12:00:05Z","operation":"token_refresh"}}}`
	if string(raw) != want {
		t.Errorf("wire payload drifted:\n got %s\nwant %s", raw, want)
	}
}

func TestBuildDenial_OmitsEmptyOptionals(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(BuildDenial(1, 10, 2))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	for _, field := range []string{"window", "resetAt", "operation"} {
		if strings.Contains(string(raw), field) {
			t.Errorf("optional field %q should be omitted when unset: %s", field, raw)
		}
	}
}

func TestBuildDenial_ClampsNegatives(t *testing.T) {
	t.Parallel()

	denial := BuildDenial(-3, 10, -1)
	if denial.Error.Details.RetryAfter != 0 {
		t.Errorf("retryAfter should clamp to 0, got %d", denial.Error.Details.RetryAfter)
	}
	if denial.Error.Details.Remaining != 0 {
		t.Errorf("remaining should clamp to 0, got %d", denial.Error.Details.Remaining)
	}
	if !strings.Contains(denial.Error.Message, "0 seconds") {
		t.Errorf("message should use clamped value: %q", denial.Error.Message)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	now := time.Now()
	if got := RetryAfterSeconds(now.Add(30*time.Second), now); got != 30 {
		t.Errorf("RetryAfterSeconds = %d, want 30", got)
	}
	if got := RetryAfterSeconds(now.Add(-time.Second), now); got != 0 {
		t.Errorf("elapsed reset should clamp to 0, got %d", got)
	}
}
