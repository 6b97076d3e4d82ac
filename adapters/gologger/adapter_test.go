package gologger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-integrations/core"
)

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	zcore, logs := observer.New(level)
	return zap.New(zcore), logs
}

func TestProviderNamesLoggersAndKeepsArgs(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)
	logger := NewProvider(base).GetLogger("integrations.webhooks")

	logger.Info("webhook accepted", "platform", "github", "users_notified", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.LoggerName != "integrations.webhooks" {
		t.Fatalf("expected named logger, got %q", entry.LoggerName)
	}
	fields := entry.ContextMap()
	if fields["platform"] != "github" || fields["users_notified"] != int64(2) {
		t.Fatalf("unexpected fields %#v", fields)
	}
}

func TestTraceWritesAtDebug(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)
	NewLogger(base).Trace("refresh skipped")
	if logs.Len() != 1 || logs.All()[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected one debug entry, got %+v", logs.All())
	}
}

func TestWithFieldsAttachesContext(t *testing.T) {
	base, logs := observed(zapcore.InfoLevel)
	logger := NewLogger(base).WithFields(map[string]any{"operation": "sync_app", "platform": "shopify"})
	logger.Debug("filtered out")
	logger.Warn("sync retry")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected level filtering to drop debug, got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "sync_app" || fields["platform"] != "shopify" {
		t.Fatalf("unexpected fields %#v", fields)
	}
}

func TestResolvedThroughCore(t *testing.T) {
	base, logs := observed(zapcore.InfoLevel)
	_, logger := core.ResolveLogger("integrations.fanout", NewProvider(base), nil)
	logger.Error("publish failed", "error", "timeout")
	if logs.Len() != 1 || logs.All()[0].LoggerName != "integrations.fanout" {
		t.Fatalf("expected provider logger to be used, got %+v", logs.All())
	}
}

func TestNewZapFallsBackToInfo(t *testing.T) {
	logger, err := NewZap(Config{Level: "loud"})
	if err != nil {
		t.Fatalf("new zap: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected info level fallback")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info enabled")
	}
}
