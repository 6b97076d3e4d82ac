package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type testProvider struct {
	id         string
	config     PlatformConfig
	extractors map[string]EventExtractor
	exchange   func(context.Context, TokenRequest) (TokenGrant, error)
	refresh    func(context.Context, TokenRequest) (TokenGrant, error)

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
}

func newTestProvider(id string) *testProvider {
	return &testProvider{
		id: id,
		config: PlatformConfig{
			ID:         id,
			AuthURL:    "https://auth.example.com/authorize",
			TokenURL:   "https://auth.example.com/token",
			APIBaseURL: "https://api.example.com/apps",
			Scopes:     []string{"repo"},
			AuthType:   AuthKindOAuth2,
		},
	}
}

func (p *testProvider) ID() string { return p.id }

func (p *testProvider) AuthKind() string { return AuthKindOAuth2 }

func (p *testProvider) Config() PlatformConfig { return p.config }

func (p *testProvider) Webhook() WebhookProfile {
	return WebhookProfile{SignatureHeader: "X-Signature", EventTypeHeader: "X-Event"}
}

func (p *testProvider) EventExtractors() map[string]EventExtractor { return p.extractors }

func (p *testProvider) ExchangeCode(ctx context.Context, req TokenRequest) (TokenGrant, error) {
	p.exchangeCalls.Add(1)
	if p.exchange == nil {
		return TokenGrant{AccessToken: "t1", ExpiresIn: 3600}, nil
	}
	return p.exchange(ctx, req)
}

func (p *testProvider) Refresh(ctx context.Context, req TokenRequest) (TokenGrant, error) {
	p.refreshCalls.Add(1)
	if p.refresh == nil {
		return TokenGrant{AccessToken: "t2", ExpiresIn: 3600}, nil
	}
	return p.refresh(ctx, req)
}

type memoryCredentialStore struct {
	mu      sync.Mutex
	entries map[string]Credential
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{entries: map[string]Credential{}}
}

func (s *memoryCredentialStore) GetCredential(_ context.Context, platform string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.entries[platform]
	return credential.Clone(), ok, nil
}

func (s *memoryCredentialStore) SaveCredential(_ context.Context, credential Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[credential.Platform] = credential.Clone()
	return nil
}

func (s *memoryCredentialStore) DeleteCredential(_ context.Context, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, platform)
	return nil
}

type memoryStatusStore struct {
	mu      sync.Mutex
	entries map[string]IntegrationStatus
}

func newMemoryStatusStore() *memoryStatusStore {
	return &memoryStatusStore{entries: map[string]IntegrationStatus{}}
}

func (s *memoryStatusStore) GetStatus(_ context.Context, platform string) (IntegrationStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.entries[platform]
	return status, ok, nil
}

func (s *memoryStatusStore) SaveStatus(_ context.Context, status IntegrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[status.Platform] = status
	return nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type managerFixture struct {
	manager     *CredentialManager
	provider    *testProvider
	credentials *memoryCredentialStore
	statuses    *memoryStatusStore
	states      *MemoryOAuthStateStore
	clock       *fixedClock
}

func newManagerFixture(cfg Config) (*managerFixture, error) {
	provider := newTestProvider("github")
	registry, err := NewPlatformRegistry(provider)
	if err != nil {
		return nil, err
	}
	if cfg.Platforms == nil {
		cfg.Platforms = map[string]PlatformSettings{}
	}
	if _, ok := cfg.Platforms["github"]; !ok {
		cfg.Platforms["github"] = PlatformSettings{ClientID: "client-1", ClientSecret: "secret-1"}
	}
	fixture := &managerFixture{
		provider:    provider,
		credentials: newMemoryCredentialStore(),
		statuses:    newMemoryStatusStore(),
		clock:       newFixedClock(),
	}
	states := NewMemoryOAuthStateStore(cfg.OAuth.StateTTL)
	states.Now = fixture.clock.Now
	fixture.states = states
	manager, err := NewCredentialManager(cfg, registry,
		WithOAuthStateStore(states),
		WithCredentialStore(fixture.credentials),
		WithStatusStore(fixture.statuses),
		WithSecretResolver(ConfigSecretResolver{Config: cfg}),
		WithClock(fixture.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	fixture.manager = manager
	return fixture, nil
}
