// Package security seals credential material at rest with an application
// key. Sealed values are self-describing envelopes so keys can rotate
// without rewriting stored credentials.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

type Option func(*AppKeySealer)

func WithKeyID(id string) Option {
	return func(s *AppKeySealer) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			s.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(s *AppKeySealer) {
		if version > 0 {
			s.version = version
		}
	}
}

// AppKeySealer implements core.SecretProvider with AES-GCM. Keys that are not
// 16, 24 or 32 bytes long are stretched with SHA-256.
type AppKeySealer struct {
	aead    cipher.AEAD
	keyID   string
	version int
}

func NewAppKeySealer(keyMaterial []byte, opts ...Option) (*AppKeySealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	sealer := &AppKeySealer{aead: aead, keyID: "app-key", version: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(sealer)
		}
	}
	return sealer, nil
}

func NewAppKeySealerFromString(key string, opts ...Option) (*AppKeySealer, error) {
	return NewAppKeySealer([]byte(key), opts...)
}

func (s *AppKeySealer) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return encodeEnvelope(sealedEnvelope{
		KeyID:      s.keyID,
		Version:    s.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(s.aead.Seal(nil, nonce, plaintext, s.additionalData())),
	})
}

func (s *AppKeySealer) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if env.KeyID != s.keyID || env.Version != s.version {
		return nil, fmt.Errorf("security: key mismatch: got %s/v%d want %s/v%d", env.KeyID, env.Version, s.keyID, s.version)
	}
	return s.open(env)
}

func (s *AppKeySealer) open(env sealedEnvelope) ([]byte, error) {
	nonce, err := decodeBase64("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	if len(nonce) != s.aead.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	sealed, err := decodeBase64("ciphertext", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.aead.Open(nil, nonce, sealed, s.additionalData())
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// additionalData binds the ciphertext to its key id and version so an
// envelope cannot be relabelled.
func (s *AppKeySealer) additionalData() []byte {
	return []byte(fmt.Sprintf("%s/v%d", s.keyID, s.version))
}

func (s *AppKeySealer) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *AppKeySealer) Version() int {
	if s == nil {
		return 0
	}
	return s.version
}

func normalizeKey(value []byte) []byte {
	switch len(value) {
	case 16, 24, 32:
		return append([]byte(nil), value...)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySealer)(nil)
