package bitbucket

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "bitbucket"
	AuthURL    = "https://bitbucket.org/site/oauth2/authorize"
	TokenURL   = "https://bitbucket.org/site/oauth2/access_token"
	APIBaseURL = "https://api.bitbucket.org/2.0/repositories"

	HeaderSignature = "X-Hub-Signature"
	HeaderEvent     = "X-Event-Key"
	HeaderDelivery  = "X-Request-UUID"
)

type Config struct {
	AuthURL             string
	TokenURL            string
	APIBaseURL          string
	Scopes              []string
	TokenRequestTimeout time.Duration
	HTTPClient          providers.HTTPDoer
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
		Scopes:     []string{"repository", "webhook"},
	}
}

// New builds the Bitbucket Cloud provider. Bitbucket takes client
// credentials through basic auth on the token endpoint.
func New(cfg Config) (*providers.OAuth2Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	return providers.NewOAuth2Provider(providers.OAuth2Config{
		Platform: core.PlatformConfig{
			ID:         ProviderID,
			AuthURL:    cfg.AuthURL,
			TokenURL:   cfg.TokenURL,
			APIBaseURL: cfg.APIBaseURL,
			Scopes:     cfg.Scopes,
			AuthType:   core.AuthKindOAuth2,
		},
		Webhook: core.WebhookProfile{
			SignatureHeader:   HeaderSignature,
			SignaturePrefix:   "sha256=",
			SignatureEncoding: core.SignatureEncodingHex,
			EventTypeHeader:   HeaderEvent,
			DeliveryIDHeader:  HeaderDelivery,
		},
		Extractors: map[string]core.EventExtractor{
			"repo:push":             extractPush,
			"repo:updated":          extractRepoUpdated,
			"pullrequest:created":   extractPullRequest("opened"),
			"pullrequest:fulfilled": extractPullRequest("merged"),
			"pullrequest:rejected":  extractPullRequest("declined"),
		},
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})
}

func extractPush(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "repo:push", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	changes := payload.Objects("push", "changes")
	commits := 0
	branches := make([]string, 0, len(changes))
	for _, change := range changes {
		commits += len(change.List("commits"))
		if name := change.String("new", "name"); name != "" {
			branches = append(branches, name)
		}
	}
	actor := providers.FirstNonEmpty(payload.String("actor", "display_name"), payload.String("actor", "nickname"), "someone")
	target := strings.Join(branches, ", ")
	if target == "" {
		target = "the repository"
	}
	draft := core.EventDraft{
		Action:   "pushed",
		Resource: repo,
		Summary:  fmt.Sprintf("%s pushed %s to %s in %s", actor, providers.Plural(commits, "commit"), target, repo),
		Details: map[string]any{
			"branches": branches,
			"commits":  commits,
			"changes":  len(changes),
			"actor":    actor,
		},
		Priority: core.PriorityForChanges(commits),
	}
	for _, change := range changes {
		if at, ok := change.Time("new", "target", "date"); ok {
			draft.OccurredAt = at
			break
		}
	}
	return draft, nil
}

func extractRepoUpdated(payload core.Payload) (core.EventDraft, error) {
	repo, err := providers.RequireString(ProviderID, "repo:updated", payload, "repository", "full_name")
	if err != nil {
		return core.EventDraft{}, err
	}
	changed := make([]string, 0)
	for key := range payload.Object("changes") {
		changed = append(changed, key)
	}
	return core.EventDraft{
		Action:   "updated",
		Resource: repo,
		Summary:  fmt.Sprintf("Repository %s settings were updated", repo),
		Details: map[string]any{
			"changedFields": changed,
			"metadataOnly":  true,
		},
		Priority: core.PriorityLow,
	}, nil
}

func extractPullRequest(action string) core.EventExtractor {
	return func(payload core.Payload) (core.EventDraft, error) {
		repo, err := providers.RequireString(ProviderID, "pullrequest:"+action, payload, "repository", "full_name")
		if err != nil {
			return core.EventDraft{}, err
		}
		priority := core.PriorityMedium
		switch action {
		case "merged":
			priority = core.PriorityHigh
		case "declined":
			priority = core.PriorityLow
		}
		id := payload.Int("pullrequest", "id")
		title := payload.String("pullrequest", "title")
		return core.EventDraft{
			Action:   action,
			Resource: repo,
			Summary:  fmt.Sprintf("Pull request #%d %s in %s: %s", id, action, repo, title),
			Details: map[string]any{
				"id":    id,
				"title": title,
				"url":   payload.String("pullrequest", "links", "html", "href"),
			},
			Priority: priority,
		}, nil
	}
}
