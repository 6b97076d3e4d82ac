package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultOAuthStateTTL = 15 * time.Minute

type OAuthStateRecord struct {
	State       string    `json:"state"`
	Platform    string    `json:"platform"`
	RedirectURI string    `json:"redirectUri,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// OAuthStateStore holds single use authorize states. Consume removes the
// record whether or not it has expired.
type OAuthStateStore interface {
	Save(ctx context.Context, record OAuthStateRecord) error
	Consume(ctx context.Context, state string) (OAuthStateRecord, error)
}

type MemoryOAuthStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]OAuthStateRecord
	Now     func() time.Time
}

func NewMemoryOAuthStateStore(ttl time.Duration) *MemoryOAuthStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &MemoryOAuthStateStore{
		ttl:     ttl,
		entries: map[string]OAuthStateRecord{},
	}
}

func (s *MemoryOAuthStateStore) Save(_ context.Context, record OAuthStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: oauth state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: oauth state is required")
	}

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.evictExpiredLocked(now)
	s.entries[state] = record
	s.mu.Unlock()
	return nil
}

func (s *MemoryOAuthStateStore) Consume(_ context.Context, state string) (OAuthStateRecord, error) {
	if s == nil {
		return OAuthStateRecord{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthStateRecord{}, InvalidOAuthStateError("", "core: oauth state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return OAuthStateRecord{}, InvalidOAuthStateError("", "core: oauth state not found")
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return OAuthStateRecord{}, InvalidOAuthStateError(record.Platform, "core: oauth state expired")
	}
	return record, nil
}

func (s *MemoryOAuthStateStore) evictExpiredLocked(now time.Time) {
	for key, record := range s.entries {
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryOAuthStateStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// InvalidOAuthStateError reports a missing, replayed or expired state.
func InvalidOAuthStateError(platform string, message string) error {
	return newCodedError(
		message,
		goerrors.CategoryAuth,
		http.StatusUnauthorized,
		ErrorCodeOAuthStateInvalid,
		platformMetadata(platform, map[string]any{"kind": string(KindAuthorization)}),
	)
}

func GenerateOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ OAuthStateStore = (*MemoryOAuthStateStore)(nil)
