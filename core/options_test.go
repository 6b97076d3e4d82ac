package core

import (
	"context"
	"testing"
	"time"
)

func TestResolveConfig_LayersDefaultsLoadedAndRuntime(t *testing.T) {
	loader := StaticConfigLoader(map[string]any{
		"service_name": "loaded",
		"fanout": map[string]any{
			"concurrency": 4,
		},
		"platforms": map[string]any{
			"github": map[string]any{"client_id": "loaded-client"},
		},
	})
	runtime := Config{
		Sync: SyncConfig{MaxAttempts: 5},
	}

	cfg, err := ResolveConfig(context.Background(), runtime, NewCfgxConfigProvider(loader), GoOptionsResolver{})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.ServiceName != "loaded" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Fanout.Concurrency != 4 {
		t.Fatalf("expected loaded concurrency, got %d", cfg.Fanout.Concurrency)
	}
	if cfg.Sync.MaxAttempts != 5 {
		t.Fatalf("expected runtime max attempts, got %d", cfg.Sync.MaxAttempts)
	}
	if cfg.Fanout.Timeout != 2*time.Second || cfg.FanoutTopic() != ResourceUpdatesTopic {
		t.Fatalf("expected fanout defaults, got %+v", cfg.Fanout)
	}
	settings, ok := cfg.Platform("github")
	if !ok || settings.ClientID != "loaded-client" {
		t.Fatalf("expected loaded platform settings, got %+v", settings)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	cfg.ServiceName = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty service name to fail")
	}
	cfg = DefaultConfig()
	cfg.Sync.InitialBackoff = 5 * time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected inverted backoff bounds to fail")
	}
}

func TestExponentialBackoffScheduler(t *testing.T) {
	scheduler := ExponentialBackoffScheduler{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	if got := scheduler.NextDelay(1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1: got %s", got)
	}
	if got := scheduler.NextDelay(2); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: got %s", got)
	}
	if got := scheduler.NextDelay(5); got != 300*time.Millisecond {
		t.Fatalf("attempt 5: got %s", got)
	}
}
