package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-integrations/core"
)

// KeyRing seals with the active key and opens with whichever retired key
// produced the envelope.
type KeyRing struct {
	active  *AppKeySealer
	retired []*AppKeySealer
}

func NewKeyRing(active *AppKeySealer, retired ...*AppKeySealer) (*KeyRing, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active sealer is required")
	}
	ring := &KeyRing{active: active}
	for _, sealer := range retired {
		if sealer != nil {
			ring.retired = append(ring.retired, sealer)
		}
	}
	return ring, nil
}

func (r *KeyRing) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return r.active.Encrypt(ctx, plaintext)
}

func (r *KeyRing) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	for _, sealer := range append([]*AppKeySealer{r.active}, r.retired...) {
		if sealer.keyID == env.KeyID && sealer.version == env.Version {
			return sealer.open(env)
		}
	}
	return nil, fmt.Errorf("security: no key for %s/v%d", env.KeyID, env.Version)
}

// NeedsReseal reports whether a stored value was sealed by a retired key.
func (r *KeyRing) NeedsReseal(ciphertext []byte) bool {
	info, err := Inspect(ciphertext)
	if err != nil {
		return false
	}
	return info.KeyID != r.active.keyID || info.Version != r.active.version
}

var _ core.SecretProvider = (*KeyRing)(nil)
