package util

import (
	"context"
	"errors"
	"testing"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := Retry(3, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("Retry() = %q, want %q", result, "ok")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := Retry(3, func() (int, error) {
		attempts++
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("Retry() expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryDefaultsToOneAttempt(t *testing.T) {
	attempts := 0
	_, _ = Retry(0, func() (int, error) {
		attempts++
		return 0, errors.New("fail")
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryWithContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := RetryWithContext(ctx, 3, func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestRetryWithContextReturnsCancellationImmediately(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	_, err := RetryWithContext(ctx, 3, func(ctx context.Context) (int, error) {
		attempts++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestExtractLinkedRefs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "no markers",
			text: "plain text",
			want: nil,
		},
		{
			name: "single marker",
			text: "founded by [[ent-1]] in 1998",
			want: []string{"ent-1"},
		},
		{
			name: "duplicate markers deduplicated",
			text: "[[a]] and [[b]] and [[a]]",
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLinkedRefs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractLinkedRefs() = %#v, want %#v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ExtractLinkedRefs()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
