package core

import "testing"

func TestPlatformRegistry_RejectsInvalidProviders(t *testing.T) {
	if _, err := NewPlatformRegistry(nil); err == nil {
		t.Fatalf("expected nil provider error")
	}
	if _, err := NewPlatformRegistry(newTestProvider(" ")); err == nil {
		t.Fatalf("expected empty id error")
	}
	if _, err := NewPlatformRegistry(newTestProvider("github"), newTestProvider("GitHub")); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestPlatformRegistry_LookupAndOrdering(t *testing.T) {
	registry, err := NewPlatformRegistry(newTestProvider("shopify"), newTestProvider("github"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ids := registry.IDs()
	if len(ids) != 2 || ids[0] != "github" || ids[1] != "shopify" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
	cfg, err := registry.ConfigFor(" GitHub ")
	if err != nil {
		t.Fatalf("config for github: %v", err)
	}
	if cfg.TokenURL == "" {
		t.Fatalf("expected token url in config")
	}
	cfg.Scopes[0] = "mutated"
	again, _ := registry.ConfigFor("github")
	if again.Scopes[0] != "repo" {
		t.Fatalf("expected registry config to be immutable, got %v", again.Scopes)
	}

	_, err = registry.ConfigFor("myspace")
	if KindOf(err) != KindUnsupportedPlatform {
		t.Fatalf("expected unsupported platform, got %v", err)
	}
	if registry.Has("myspace") {
		t.Fatalf("expected unknown platform to be absent")
	}
}
