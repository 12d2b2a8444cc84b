package log

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" Warn\n", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []string{"", "trace", "warning", "fatal"} {
		_, err := ParseLevel(bad)
		if err == nil {
			t.Errorf("ParseLevel(%q) accepted", bad)
			continue
		}
		if !strings.Contains(err.Error(), "debug, info, warn or error") {
			t.Errorf("error %q does not list valid levels", err)
		}
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx).(nopLogger); !ok {
		t.Fatal("empty context should yield Nop")
	}

	l, err := New(Options{App: "playdrop", Writer: &strings.Builder{}})
	if err != nil {
		t.Fatal(err)
	}
	child := WithContext(ctx, l)
	if FromContext(child) != l {
		t.Fatal("stored logger not returned")
	}
	if _, ok := FromContext(ctx).(nopLogger); !ok {
		t.Fatal("parent context was modified")
	}

	var typedNil Logger
	if _, ok := FromContext(WithContext(ctx, typedNil)).(nopLogger); !ok {
		t.Fatal("nil logger should fall back to Nop")
	}
	if _, ok := FromContext(context.WithValue(ctx, ctxKey{}, "not a logger")).(nopLogger); !ok {
		t.Fatal("wrong value type should fall back to Nop")
	}
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	n := Nop()
	n = n.With("upload_id", "abc", "odd")
	n.Debug(ctx, "d")
	n.Info(ctx, "i", "k", 1)
	n.Warn(ctx, "w")
	n.Error(ctx, errors.New("boom"), "e")
	n.Error(ctx, nil, "nil error")
	if err := n.Sync(); err != nil {
		t.Fatal(err)
	}
}
