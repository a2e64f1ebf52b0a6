package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		level     string
		format    string
		wantDebug bool
		wantErr   bool
	}{
		{name: "debug json", level: "debug", format: "json", wantDebug: true},
		{name: "info console", level: "INFO", format: "console"},
		{name: "defaults", level: "", format: ""},
		{name: "unknown level", level: "chatty", format: "json", wantErr: true},
		{name: "unknown format", level: "info", format: "xml", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level, tc.format)
			if tc.wantErr {
				if err == nil {
					t.Fatal("NewLogger() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
				t.Fatalf("debug enabled = %v, want %v", got, tc.wantDebug)
			}
		})
	}
}

func TestRunFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := RunFromContext(context.Background()); ok {
		t.Fatal("RunFromContext() ok = true on empty context")
	}
	if _, ok := RunFromContext(WithRun(context.Background(), "", "whatsapp")); ok {
		t.Fatal("RunFromContext() ok = true for empty run id")
	}

	info, ok := RunFromContext(WithRun(context.Background(), "run-1", "sms"))
	if !ok {
		t.Fatal("RunFromContext() ok = false")
	}
	if info.ID != "run-1" || info.Channel != "sms" {
		t.Fatalf("RunFromContext() = %+v", info)
	}
}

func TestLoggerAddsRunFields(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	Logger(WithRun(context.Background(), "run-7", "whatsapp"), base).Info("sending")
	Logger(context.Background(), base).Info("idle")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["run_id"] != "run-7" || fields["channel"] != "whatsapp" {
		t.Fatalf("fields = %v, want run_id and channel", fields)
	}
	if _, ok := entries[1].ContextMap()["run_id"]; ok {
		t.Fatal("run_id should be absent without a run")
	}

	if Logger(context.Background(), nil) != nil {
		t.Fatal("Logger(nil base) should be nil")
	}
}
