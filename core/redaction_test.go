package core

import "testing"

func TestRedactSensitiveMap(t *testing.T) {
	in := map[string]any{
		"platform":        "github",
		"idempotency_key": "github/delivery/d-1",
		"access_token":    "t1",
		"nested": map[string]any{
			"client_secret": "s",
			"scope":         "repo",
		},
		"headers": map[string]string{"Authorization": "Bearer t1", "Accept": "json"},
		"list":    []any{map[string]any{"refresh_token": "r1"}, "plain"},
	}
	out := RedactSensitiveMap(in)

	if out["platform"] != "github" || out["idempotency_key"] != "github/delivery/d-1" {
		t.Fatalf("expected traceability keys to survive, got %#v", out)
	}
	if out["access_token"] != RedactedValue {
		t.Fatalf("expected token to be masked, got %#v", out["access_token"])
	}
	nested := out["nested"].(map[string]any)
	if nested["client_secret"] != RedactedValue || nested["scope"] != "repo" {
		t.Fatalf("unexpected nested redaction: %#v", nested)
	}
	headers := out["headers"].(map[string]any)
	if headers["Authorization"] != RedactedValue || headers["Accept"] != "json" {
		t.Fatalf("unexpected header redaction: %#v", headers)
	}
	list := out["list"].([]any)
	if list[0].(map[string]any)["refresh_token"] != RedactedValue || list[1] != "plain" {
		t.Fatalf("unexpected list redaction: %#v", list)
	}
	if in["access_token"] != "t1" {
		t.Fatalf("expected input to stay untouched")
	}
	if RedactSensitiveMap(nil) == nil {
		t.Fatalf("expected empty map for nil input")
	}
}
