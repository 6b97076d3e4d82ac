package shopify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "shopify"

	HeaderSignature = "X-Shopify-Hmac-Sha256"
	HeaderTopic     = "X-Shopify-Topic"
	HeaderDelivery  = "X-Shopify-Webhook-Id"
	HeaderTriggered = "X-Shopify-Triggered-At"

	defaultAuthorizePath = "/admin/oauth/authorize"
	defaultTokenPath     = "/admin/oauth/access_token"
	defaultAPIPath       = "/admin/api/2024-10/apps"
	defaultDomainSuffix  = ".myshopify.com"
)

type Config struct {
	ShopDomain          string
	AuthURL             string
	TokenURL            string
	APIBaseURL          string
	Scopes              []string
	TokenRequestTimeout time.Duration
	HTTPClient          providers.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		Scopes: []string{"read_products", "read_orders"},
	}
}

// New builds the Shopify provider. Endpoints derive from ShopDomain unless
// set explicitly; without either the platform stays registered but reports a
// configuration error on use.
func New(cfg Config) (*providers.OAuth2Provider, error) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultConfig().Scopes
	}
	endpoints, err := resolveEndpoints(cfg)
	if err != nil {
		return nil, err
	}
	return providers.NewOAuth2Provider(providers.OAuth2Config{
		Platform: core.PlatformConfig{
			ID:         ProviderID,
			AuthURL:    endpoints.auth,
			TokenURL:   endpoints.token,
			APIBaseURL: endpoints.api,
			Scopes:     cfg.Scopes,
			AuthType:   core.AuthKindOAuth2,
		},
		Webhook: core.WebhookProfile{
			SignatureHeader:   HeaderSignature,
			SignatureEncoding: core.SignatureEncodingBase64,
			EventTypeHeader:   HeaderTopic,
			DeliveryIDHeader:  HeaderDelivery,
			TimestampHeader:   HeaderTriggered,
		},
		Extractors: map[string]core.EventExtractor{
			"products/update": extractProductUpdate,
			"orders/create":   extractOrderCreate,
			"app/uninstalled": extractAppUninstalled,
		},
		ClientSecretInBody:  true,
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})
}

type endpointSet struct {
	auth  string
	token string
	api   string
}

func resolveEndpoints(cfg Config) (endpointSet, error) {
	out := endpointSet{
		auth:  strings.TrimSpace(cfg.AuthURL),
		token: strings.TrimSpace(cfg.TokenURL),
		api:   strings.TrimSpace(cfg.APIBaseURL),
	}
	if strings.TrimSpace(cfg.ShopDomain) == "" {
		return out, nil
	}
	domain, err := normalizeShopDomain(cfg.ShopDomain)
	if err != nil {
		return endpointSet{}, err
	}
	if out.auth == "" {
		out.auth = (&url.URL{Scheme: "https", Host: domain, Path: defaultAuthorizePath}).String()
	}
	if out.token == "" {
		out.token = (&url.URL{Scheme: "https", Host: domain, Path: defaultTokenPath}).String()
	}
	if out.api == "" {
		out.api = (&url.URL{Scheme: "https", Host: domain, Path: defaultAPIPath}).String()
	}
	return out, nil
}

func normalizeShopDomain(value string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop_domain: %w", err)
		}
		trimmed = strings.TrimSpace(strings.ToLower(parsed.Hostname()))
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", fmt.Errorf("providers/shopify: invalid shop_domain")
	}
	if !strings.Contains(trimmed, ".") {
		trimmed += defaultDomainSuffix
	}
	if !strings.HasSuffix(trimmed, defaultDomainSuffix) {
		return "", fmt.Errorf("providers/shopify: shop_domain must end with %q", defaultDomainSuffix)
	}
	return trimmed, nil
}

func extractProductUpdate(payload core.Payload) (core.EventDraft, error) {
	handle, err := providers.RequireString(ProviderID, "products/update", payload, "handle")
	if err != nil {
		return core.EventDraft{}, err
	}
	draft := core.EventDraft{
		Action:   "updated",
		Resource: "products/" + handle,
		Summary:  fmt.Sprintf("Product %s was updated", providers.FirstNonEmpty(payload.String("title"), handle)),
		Details: map[string]any{
			"productId":    payload.Int("id"),
			"status":       payload.String("status"),
			"variants":     len(payload.List("variants")),
			"metadataOnly": true,
		},
		Priority: core.PriorityLow,
	}
	if at, ok := payload.Time("updated_at"); ok {
		draft.OccurredAt = at
	}
	return draft, nil
}

func extractOrderCreate(payload core.Payload) (core.EventDraft, error) {
	id := payload.Int("id")
	if id == 0 {
		return core.EventDraft{}, core.NormalizationError(ProviderID, "orders/create",
			fmt.Errorf("providers/shopify: order id is required"))
	}
	items := len(payload.List("line_items"))
	priority := core.PriorityForChanges(items)
	if priority == core.PriorityLow {
		priority = core.PriorityMedium
	}
	name := providers.FirstNonEmpty(payload.String("name"), fmt.Sprintf("#%d", id))
	draft := core.EventDraft{
		Action:   "created",
		Resource: "orders",
		Summary:  fmt.Sprintf("Order %s placed with %s", name, providers.Plural(items, "item")),
		Details: map[string]any{
			"orderId":  id,
			"total":    payload.String("total_price"),
			"currency": payload.String("currency"),
			"items":    items,
		},
		Priority: priority,
	}
	if at, ok := payload.Time("created_at"); ok {
		draft.OccurredAt = at
	}
	return draft, nil
}

func extractAppUninstalled(payload core.Payload) (core.EventDraft, error) {
	shop := providers.FirstNonEmpty(payload.String("myshopify_domain"), payload.String("domain"), "shop")
	return core.EventDraft{
		Action:   "uninstalled",
		Resource: shop,
		Summary:  fmt.Sprintf("App was uninstalled from %s", shop),
		Details:  map[string]any{"shopId": payload.Int("id")},
		Priority: core.PriorityHigh,
	}, nil
}
