package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidIntegrationStateTransition = errors.New("core: invalid integration state transition")
	ErrSecretNotFound                    = errors.New("core: secret not found")
)

const (
	AuthKindOAuth2 = "oauth2"
	AuthKindToken  = "token"

	// ResourceUpdatesTopic is the broadcast topic for normalized events.
	ResourceUpdatesTopic = "resource-updates"
)

// PlatformConfig is the static description of a platform. It holds secret
// references, never secret values.
type PlatformConfig struct {
	ID               string   `json:"id"`
	AuthURL          string   `json:"authUrl"`
	TokenURL         string   `json:"tokenUrl"`
	APIBaseURL       string   `json:"apiBaseUrl"`
	ClientIDRef      string   `json:"-"`
	ClientSecretRef  string   `json:"-"`
	WebhookSecretRef string   `json:"-"`
	Scopes           []string `json:"scopes,omitempty"`
	AuthType         string   `json:"authType"`
}

func (c PlatformConfig) clone() PlatformConfig {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	return out
}

// Credential is the token material for one connected platform. ExpiresAt is
// nil for tokens that never expire.
type Credential struct {
	Platform     string     `json:"platform"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	TokenType    string     `json:"tokenType,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ExpiresWithin reports whether the credential must be refreshed before use
// at now, given a safety window of skew.
func (c Credential) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	if skew < 0 {
		skew = 0
	}
	return !now.Before(c.ExpiresAt.Add(-skew))
}

func (c Credential) Clone() Credential {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	out.ExpiresAt = cloneTime(c.ExpiresAt)
	return out
}

type IntegrationState string

const (
	StateConnected    IntegrationState = "connected"
	StateDisconnected IntegrationState = "disconnected"
)

// TransitionTo validates a move between integration states. Self transitions
// are allowed so reconnects and repeated disconnects stay idempotent.
func (s IntegrationState) TransitionTo(next IntegrationState) (IntegrationState, error) {
	current := s
	if current == "" {
		current = StateDisconnected
	}
	if !integrationTransitionAllowed(current, next) {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidIntegrationStateTransition, current, next)
	}
	return next, nil
}

func integrationTransitionAllowed(current, next IntegrationState) bool {
	switch current {
	case StateConnected, StateDisconnected:
		return next == StateConnected || next == StateDisconnected
	default:
		return false
	}
}

type IntegrationStatus struct {
	Platform       string           `json:"platform"`
	Connected      bool             `json:"connected"`
	Status         IntegrationState `json:"status"`
	AuthType       string           `json:"authType"`
	LastSync       *time.Time       `json:"lastSync"`
	ExpiresAt      *time.Time       `json:"expiresAt"`
	ConnectedAt    *time.Time       `json:"connectedAt,omitempty"`
	DisconnectedAt *time.Time       `json:"disconnectedAt,omitempty"`
	LastError      string           `json:"lastError,omitempty"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func (s *IntegrationStatus) TransitionTo(next IntegrationState, reason string, now time.Time) error {
	if s == nil {
		return nil
	}
	state, err := s.Status.TransitionTo(next)
	if err != nil {
		return err
	}
	at := now.UTC()
	if state == StateConnected && s.Status != StateConnected {
		s.ConnectedAt = &at
		s.DisconnectedAt = nil
	}
	if state == StateDisconnected && (s.Status != StateDisconnected || s.DisconnectedAt == nil) {
		s.DisconnectedAt = &at
	}
	s.Status = state
	s.Connected = state == StateConnected
	s.LastError = strings.TrimSpace(reason)
	s.UpdatedAt = at
	return nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// PriorityForChanges grades an event by the number of changed items: more
// than five is high, more than two is medium.
func PriorityForChanges(changes int) Priority {
	switch {
	case changes > 5:
		return PriorityHigh
	case changes > 2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// EventDraft is what a platform extractor produces. The normalizer fills in
// identity, timestamps and recipients.
type EventDraft struct {
	Action     string
	Resource   string
	Summary    string
	Details    map[string]any
	Priority   Priority
	OccurredAt time.Time
}

type NormalizedEvent struct {
	IdempotencyKey string         `json:"idempotencyKey"`
	Platform       string         `json:"platform"`
	DeliveryID     string         `json:"deliveryId,omitempty"`
	EventType      string         `json:"eventType"`
	Action         string         `json:"action,omitempty"`
	Resource       string         `json:"resource"`
	Summary        string         `json:"summary"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Priority       Priority       `json:"priority"`
	Recipients     []string       `json:"recipients"`
	ReceivedAt     time.Time      `json:"receivedAt"`
}

// DedupeKey identifies a delivery within its platform: the platform delivery
// id when present, otherwise a digest of event type, timestamp and resource.
func (e NormalizedEvent) DedupeKey() string {
	if deliveryID := strings.TrimSpace(e.DeliveryID); deliveryID != "" {
		return "d/" + deliveryID
	}
	sum := sha256.Sum256([]byte(e.EventType + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + e.Resource))
	return "f/" + hex.EncodeToString(sum[:])
}

// ResourceUpdate is the message broadcast to each recipient.
type ResourceUpdate struct {
	Platform  string         `json:"platform"`
	EventType string         `json:"eventType"`
	Resource  string         `json:"resource"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  Priority       `json:"priority"`
}

func (e NormalizedEvent) Update() ResourceUpdate {
	return ResourceUpdate{
		Platform:  e.Platform,
		EventType: e.EventType,
		Resource:  e.Resource,
		Summary:   e.Summary,
		Details:   copyAnyMap(e.Details),
		Timestamp: e.Timestamp,
		Priority:  e.Priority,
	}
}

type Subscription struct {
	ID             string     `json:"id"`
	Platform       string     `json:"platform"`
	Resource       string     `json:"resource"`
	RecordID       string     `json:"recordId,omitempty"`
	UserIDs        []string   `json:"userIds"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

type SubscribeRequest struct {
	Platform string   `json:"platform"`
	Resource string   `json:"resource"`
	RecordID string   `json:"recordId,omitempty"`
	UserIDs  []string `json:"userIds"`
}

type SyncSnapshot struct {
	ID         string          `json:"id"`
	Platform   string          `json:"platform"`
	AppID      string          `json:"appId"`
	Payload    json.RawMessage `json:"payload"`
	StatusCode int             `json:"statusCode"`
	SyncedAt   time.Time       `json:"syncedAt"`
}

// NormalizeUserIDs trims, drops empties and deduplicates, returning a sorted
// set.
func NormalizeUserIDs(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func NormalizePlatformID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func cloneTime(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
