package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/playdrop/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	// invalid fields are not looked at while disabled
	stop, err := Start(ctx, Options{ServerAddress: "::", MutexFraction: 999, BlockRate: 999})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
	stop()
}

func TestStart_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"empty address", Options{AppName: "playdrop"}, "invalid server address"},
		{"no scheme", Options{AppName: "playdrop", ServerAddress: "pyroscope:4040"}, "invalid server address"},
		{"no app", Options{ServerAddress: "http://pyroscope:4040"}, "app name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Enabled = true
			tt.opts.Tags = map[string]string{"component": "server"}
			stop, err := Start(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if stop == nil {
				t.Fatal("stop is nil on error")
			}
			stop()
		})
	}
}

func TestStart_UnreachableServer(t *testing.T) {
	// pyroscope connects lazily, so only the stop contract is checked
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		AppName:       "playdrop",
		ServerAddress: "http://127.0.0.1:1",
	})
	if stop == nil {
		t.Fatal("stop is nil")
	}
	stop()
	stop()
}
