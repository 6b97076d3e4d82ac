package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OAuth2Config describes a platform that speaks the authorization code and
// refresh token grants. Client credentials are passed per request by the
// credential manager, never stored here.
type OAuth2Config struct {
	Platform            core.PlatformConfig
	Webhook             core.WebhookProfile
	Extractors          map[string]core.EventExtractor
	ClientSecretInBody  bool
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
}

type OAuth2Provider struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
	Raw              map[string]any
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	cfg.Platform.ID = core.NormalizePlatformID(cfg.Platform.ID)
	if cfg.Platform.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(cfg.Platform.AuthType) == "" {
		cfg.Platform.AuthType = core.AuthKindOAuth2
	}
	if cfg.Platform.ClientIDRef == "" {
		cfg.Platform.ClientIDRef = core.PlatformSecretRef(cfg.Platform.ID, core.SecretFieldClientID)
	}
	if cfg.Platform.ClientSecretRef == "" {
		cfg.Platform.ClientSecretRef = core.PlatformSecretRef(cfg.Platform.ID, core.SecretFieldClientSecret)
	}
	if cfg.Platform.WebhookSecretRef == "" {
		cfg.Platform.WebhookSecretRef = core.PlatformSecretRef(cfg.Platform.ID, core.SecretFieldWebhookSecret)
	}
	cfg.Platform.Scopes = normalizeScopes(cfg.Platform.Scopes)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}
	extractors := make(map[string]core.EventExtractor, len(cfg.Extractors))
	for eventType, extractor := range cfg.Extractors {
		key := strings.TrimSpace(eventType)
		if key == "" || extractor == nil {
			continue
		}
		extractors[key] = extractor
	}
	cfg.Extractors = extractors
	return &OAuth2Provider{cfg: cfg, httpClient: httpClient}, nil
}

func (p *OAuth2Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.Platform.ID
}

func (p *OAuth2Provider) AuthKind() string {
	if p == nil {
		return core.AuthKindOAuth2
	}
	return p.cfg.Platform.AuthType
}

func (p *OAuth2Provider) Config() core.PlatformConfig {
	if p == nil {
		return core.PlatformConfig{}
	}
	cfg := p.cfg.Platform
	cfg.Scopes = append([]string(nil), cfg.Scopes...)
	return cfg
}

func (p *OAuth2Provider) Webhook() core.WebhookProfile {
	if p == nil {
		return core.WebhookProfile{}
	}
	return p.cfg.Webhook
}

func (p *OAuth2Provider) EventExtractors() map[string]core.EventExtractor {
	if p == nil {
		return nil
	}
	out := make(map[string]core.EventExtractor, len(p.cfg.Extractors))
	for eventType, extractor := range p.cfg.Extractors {
		out[eventType] = extractor
	}
	return out
}

func (p *OAuth2Provider) ExchangeCode(ctx context.Context, req core.TokenRequest) (core.TokenGrant, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenGrant{}, core.BadInputError("providers: authorization code is required", nil)
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirect := strings.TrimSpace(req.RedirectURI); redirect != "" {
		form.Set("redirect_uri", redirect)
	}
	payload, err := p.fetchToken(ctx, req, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return p.toGrant(payload, req), nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, req core.TokenRequest) (core.TokenGrant, error) {
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, core.AuthorizationError(p.ID(), "providers: refresh token is required", nil)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	payload, err := p.fetchToken(ctx, req, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	grant := p.toGrant(payload, req)
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

func (p *OAuth2Provider) toGrant(payload tokenEndpointPayload, req core.TokenRequest) core.TokenGrant {
	scopes := parseScopeList(payload.Scope)
	if len(scopes) == 0 {
		scopes = normalizeScopes(req.Scopes)
	}
	return core.TokenGrant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    normalizeTokenType(payload.TokenType),
		Scopes:       scopes,
		ExpiresIn:    payload.ExpiresIn,
		Raw:          payload.Raw,
	}
}

// fetchToken posts a grant to the token endpoint. Transport failures map to
// network errors; any non 2xx status or error body maps to an authorization
// error so the caller can tell a rejected grant from an unreachable platform.
func (p *OAuth2Provider) fetchToken(ctx context.Context, req core.TokenRequest, form url.Values) (tokenEndpointPayload, error) {
	if p == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	platform := p.cfg.Platform.ID
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(p.cfg.Platform.TokenURL) == "" {
		return tokenEndpointPayload{}, core.ConfigurationError(platform, "providers: token url is not configured")
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return tokenEndpointPayload{}, core.ConfigurationError(platform, "providers: client id is required")
	}
	clientSecret := strings.TrimSpace(req.ClientSecret)

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", clientID)
	if p.cfg.ClientSecretInBody && clientSecret != "" {
		values.Set("client_secret", clientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		p.cfg.Platform.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, core.ConfigurationError(platform, "providers: build token request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !p.cfg.ClientSecretInBody && clientSecret != "" {
		httpReq.SetBasicAuth(clientID, clientSecret)
	}

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, core.NetworkError(platform, "providers: token request failed", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, core.NetworkError(platform, "providers: read token response", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, core.AuthorizationError(platform,
			fmt.Sprintf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes), nil)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, tokenStatusError(platform, response.StatusCode, payload)
	}
	if parseErr != nil {
		return tokenEndpointPayload{}, core.AuthorizationError(platform, "providers: decode token response", parseErr)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, core.AuthorizationError(platform,
			"providers: token endpoint error: "+describeTokenError(payload), nil)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, core.AuthorizationError(platform,
			"providers: token endpoint response missing access token", nil)
	}
	return payload, nil
}

func tokenStatusError(platform string, status int, payload tokenEndpointPayload) error {
	return core.AuthorizationError(
		platform,
		fmt.Sprintf("providers: token endpoint error (%d): %s", status, describeTokenError(payload)),
		nil,
	)
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
		Raw:              redactTokenFields(decoded),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if strings.TrimSpace(string(body)) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	raw := map[string]any{}
	for key := range values {
		raw[key] = values.Get(key)
	}
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
		Raw:              redactTokenFields(raw),
	}, nil
}

func redactTokenFields(raw map[string]any) map[string]any {
	return core.RedactSensitiveMap(raw)
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := map[string]struct{}{}
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.Provider = (*OAuth2Provider)(nil)
