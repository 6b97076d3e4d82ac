package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "integrations.sealed.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// sealedEnvelope is the at-rest form of a credential: key id and version let
// a KeyRing pick the key that sealed it after rotation.
type sealedEnvelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// EnvelopeInfo describes a sealed value without opening it.
type EnvelopeInfo struct {
	KeyID     string
	Version   int
	Algorithm string
}

// IsSealed reports whether value carries the sealed envelope prefix.
func IsSealed(value []byte) bool {
	return strings.HasPrefix(string(value), envelopePrefix)
}

func Inspect(value []byte) (EnvelopeInfo, error) {
	env, err := decodeEnvelope(value)
	if err != nil {
		return EnvelopeInfo{}, err
	}
	return EnvelopeInfo{KeyID: env.KeyID, Version: env.Version, Algorithm: env.Algorithm}, nil
}

func encodeEnvelope(env sealedEnvelope) ([]byte, error) {
	env.KeyID = strings.TrimSpace(env.KeyID)
	env.Algorithm = strings.ToLower(strings.TrimSpace(env.Algorithm))
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func decodeEnvelope(value []byte) (sealedEnvelope, error) {
	if len(value) == 0 {
		return sealedEnvelope{}, fmt.Errorf("security: sealed value is required")
	}
	if !IsSealed(value) {
		return sealedEnvelope{}, fmt.Errorf("security: invalid envelope prefix")
	}
	var env sealedEnvelope
	if err := json.Unmarshal(value[len(envelopePrefix):], &env); err != nil {
		return sealedEnvelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	env.KeyID = strings.TrimSpace(env.KeyID)
	env.Algorithm = strings.ToLower(strings.TrimSpace(env.Algorithm))
	if env.Algorithm == "" {
		env.Algorithm = envelopeAlgorithm
	}
	if env.Algorithm != envelopeAlgorithm {
		return sealedEnvelope{}, fmt.Errorf("security: unsupported algorithm %q", env.Algorithm)
	}
	if strings.TrimSpace(env.Ciphertext) == "" {
		return sealedEnvelope{}, fmt.Errorf("security: envelope ciphertext is required")
	}
	return env, nil
}

func decodeBase64(field string, value string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("security: decode %s: %w", field, err)
	}
	return decoded, nil
}
