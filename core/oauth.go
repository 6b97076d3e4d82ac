package core

import (
	"strings"
	"time"
)

const (
	SignatureEncodingHex    = "hex"
	SignatureEncodingBase64 = "base64"
)

// WebhookProfile names the headers a platform uses for signed deliveries.
type WebhookProfile struct {
	SignatureHeader   string
	SignaturePrefix   string
	SignatureEncoding string
	EventTypeHeader   string
	DeliveryIDHeader  string
	TimestampHeader   string
}

func (p WebhookProfile) Encoding() string {
	if strings.EqualFold(strings.TrimSpace(p.SignatureEncoding), SignatureEncodingBase64) {
		return SignatureEncodingBase64
	}
	return SignatureEncodingHex
}

type TokenRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
	Scopes       []string
}

// TokenGrant is a token endpoint response. ExpiresIn is seconds relative to
// issue time and is zero when the platform sets no expiry.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresIn    int64
	ExpiresAt    *time.Time
	Raw          map[string]any
}

// ExpiresAtFrom resolves the absolute expiry of the grant issued at now.
func (g TokenGrant) ExpiresAtFrom(now time.Time) *time.Time {
	if g.ExpiresAt != nil && !g.ExpiresAt.IsZero() {
		value := g.ExpiresAt.UTC()
		return &value
	}
	if g.ExpiresIn <= 0 {
		return nil
	}
	value := now.UTC().Add(time.Duration(g.ExpiresIn) * time.Second)
	return &value
}

type AuthorizationRequest struct {
	Platform    string    `json:"platform"`
	URL         string    `json:"url"`
	State       string    `json:"state"`
	RedirectURI string    `json:"redirectUri,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type CallbackRequest struct {
	Platform         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
	RedirectURI      string
}
