package security

import (
	"bytes"
	"context"
	"testing"
)

func TestAppKeySealer_RoundTrip(t *testing.T) {
	sealer, err := NewAppKeySealerFromString("integration-test-key", WithKeyID("creds"), WithVersion(2))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	plaintext := []byte(`{"accessToken":"t1"}`)
	sealed, err := sealer.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !IsSealed(sealed) || bytes.Contains(sealed, []byte("t1")) {
		t.Fatalf("expected opaque sealed envelope, got %s", sealed)
	}
	info, err := Inspect(sealed)
	if err != nil || info.KeyID != "creds" || info.Version != 2 {
		t.Fatalf("unexpected envelope info %+v %v", info, err)
	}
	opened, err := sealer.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("expected round trip, got %q", opened)
	}
}

func TestAppKeySealer_RejectsForeignKey(t *testing.T) {
	issuer, _ := NewAppKeySealerFromString("key-a", WithKeyID("a"))
	receiver, _ := NewAppKeySealerFromString("key-a", WithKeyID("b"))
	sealed, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected key mismatch")
	}
	if _, err := receiver.Decrypt(context.Background(), []byte("plain")); err == nil {
		t.Fatalf("expected prefix error")
	}
}

func TestKeyRing_OpensRetiredKeys(t *testing.T) {
	oldKey, _ := NewAppKeySealerFromString("old-key", WithVersion(1))
	newKey, _ := NewAppKeySealerFromString("new-key", WithVersion(2))
	ring, err := NewKeyRing(newKey, oldKey)
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	legacy, _ := oldKey.Encrypt(context.Background(), []byte("legacy"))
	opened, err := ring.Decrypt(context.Background(), legacy)
	if err != nil || string(opened) != "legacy" {
		t.Fatalf("expected retired key to open, got %q %v", opened, err)
	}
	if !ring.NeedsReseal(legacy) {
		t.Fatalf("expected legacy value to need reseal")
	}
	fresh, _ := ring.Encrypt(context.Background(), []byte("fresh"))
	if ring.NeedsReseal(fresh) {
		t.Fatalf("expected active value to be current")
	}
}
