package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// VerifySignature checks a hex HMAC-SHA256 signature over payload. A scheme
// prefix such as "sha256=" is ignored. Malformed input returns false.
func VerifySignature(payload []byte, signature string, secret string) bool {
	return VerifySignatureEncoded(payload, signature, secret, core.SignatureEncodingHex)
}

// VerifySignatureEncoded is VerifySignature for signatures sent as hex or
// base64.
func VerifySignatureEncoded(payload []byte, signature string, secret string, encoding string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range signatureCandidates(signature, encoding) {
		decoded, ok := decodeSignature(candidate, encoding)
		if ok && hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// signatureCandidates yields the raw value and, when it looks like
// "scheme=value", the value alone. Base64 padding also contains '=', so the
// raw value is always tried first.
func signatureCandidates(signature string, encoding string) []string {
	candidates := []string{signature}
	scheme, rest, found := strings.Cut(signature, "=")
	if found && rest != "" && isScheme(scheme) {
		candidates = append(candidates, strings.TrimSpace(rest))
	}
	if encoding != core.SignatureEncodingBase64 && len(candidates) > 1 {
		return candidates[1:]
	}
	return candidates
}

func isScheme(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

func decodeSignature(value string, encoding string) ([]byte, bool) {
	switch encoding {
	case core.SignatureEncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(value)
		return decoded, err == nil
	default:
		decoded, err := hex.DecodeString(value)
		return decoded, err == nil
	}
}

// HMACVerifier checks a delivery against a platform webhook profile.
// SkipVerification is a development switch: every bypassed delivery is
// logged at warn level.
type HMACVerifier struct {
	Profile          core.WebhookProfile
	Secret           string
	SkipVerification bool
	Logger           core.Logger
}

func (v HMACVerifier) Verify(_ context.Context, platform string, deliveryID string, header http.Header, body []byte) error {
	if v.SkipVerification {
		if v.Logger != nil {
			v.Logger.Warn("webhook signature verification bypassed",
				"platform", platform,
				"delivery_id", deliveryID,
			)
		}
		return nil
	}
	headerName := strings.TrimSpace(v.Profile.SignatureHeader)
	if headerName == "" {
		return core.ConfigurationError(platform, "webhooks: signature header is not configured")
	}
	if strings.TrimSpace(v.Secret) == "" {
		return core.ConfigurationError(platform, "webhooks: webhook secret is not configured")
	}
	signature := strings.TrimSpace(header.Get(headerName))
	if signature == "" {
		return core.SignatureVerificationError(platform, deliveryID,
			fmt.Errorf("webhooks: %s header is required", headerName))
	}
	if prefix := v.Profile.SignaturePrefix; prefix != "" && !strings.HasPrefix(signature, prefix) {
		return core.SignatureVerificationError(platform, deliveryID,
			fmt.Errorf("webhooks: signature must start with %q", prefix))
	}
	if !VerifySignatureEncoded(body, signature, v.Secret, v.Profile.Encoding()) {
		return core.SignatureVerificationError(platform, deliveryID, fmt.Errorf("webhooks: signature mismatch"))
	}
	return nil
}
