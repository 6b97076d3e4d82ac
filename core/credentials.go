package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// CredentialManager owns the OAuth lifecycle of every registered platform:
// code exchange, refresh before expiry, disconnect and connection status.
type CredentialManager struct {
	config         Config
	registry       Registry
	credentials    CredentialStore
	statuses       StatusStore
	secrets        SecretResolver
	states         OAuthStateStore
	observer       Observer
	loggerProvider LoggerProvider
	now            func() time.Time

	refreshFlight singleflight.Group
	statusMu      sync.Mutex
}

func NewCredentialManager(cfg Config, registry Registry, opts ...Option) (*CredentialManager, error) {
	if registry == nil {
		return nil, fmt.Errorf("core: platform registry is required")
	}
	builder := managerBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}
	if builder.credentialStore == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}
	if builder.statusStore == nil {
		return nil, fmt.Errorf("core: status store is required")
	}
	if builder.secretResolver == nil {
		builder.secretResolver = ChainSecretResolver{
			ConfigSecretResolver{Config: cfg},
			EnvSecretResolver{},
		}
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(cfg.OAuth.StateTTL)
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	provider, logger := ResolveLogger("integrations.credentials", builder.loggerProvider, builder.logger)
	observer := NewObserver("integrations", logger, builder.metricsRecorder)

	return &CredentialManager{
		config:         cfg,
		registry:       registry,
		credentials:    builder.credentialStore,
		statuses:       builder.statusStore,
		secrets:        builder.secretResolver,
		states:         builder.oauthStateStore,
		observer:       observer,
		loggerProvider: provider,
		now:            builder.now,
	}, nil
}

// AuthorizeURL builds the platform consent URL and stores a single use state.
func (m *CredentialManager) AuthorizeURL(ctx context.Context, platform string, redirectURI string) (req AuthorizationRequest, err error) {
	startedAt := m.clock()
	platform = NormalizePlatformID(platform)
	defer func() {
		m.observer.Observe(ctx, startedAt, "oauth_authorize", err, map[string]any{"platform": platform})
	}()

	provider, err := m.registry.Provider(platform)
	if err != nil {
		return AuthorizationRequest{}, err
	}
	cfg := provider.Config()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return AuthorizationRequest{}, ConfigurationError(platform, "core: authorize url is not configured")
	}
	clientID, err := m.resolveSecret(ctx, cfg.ClientIDRef, platform, SecretFieldClientID)
	if err != nil {
		return AuthorizationRequest{}, OAuthExchangeError(platform, ExchangeFailureConfiguration, err)
	}
	authURL, err := url.Parse(strings.TrimSpace(cfg.AuthURL))
	if err != nil {
		return AuthorizationRequest{}, ConfigurationError(platform, "core: authorize url is invalid")
	}

	state, err := GenerateOAuthState()
	if err != nil {
		return AuthorizationRequest{}, InternalError("core: generate oauth state", err)
	}
	now := m.clock()
	ttl := m.config.OAuth.StateTTL
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	record := OAuthStateRecord{
		State:       state,
		Platform:    platform,
		RedirectURI: strings.TrimSpace(redirectURI),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := m.states.Save(ctx, record); err != nil {
		return AuthorizationRequest{}, PersistenceError("core: save oauth state", err)
	}

	query := authURL.Query()
	query.Set("client_id", clientID)
	query.Set("response_type", "code")
	query.Set("state", state)
	if record.RedirectURI != "" {
		query.Set("redirect_uri", record.RedirectURI)
	}
	if len(cfg.Scopes) > 0 {
		query.Set("scope", strings.Join(cfg.Scopes, " "))
	}
	authURL.RawQuery = query.Encode()

	return AuthorizationRequest{
		Platform:    platform,
		URL:         authURL.String(),
		State:       state,
		RedirectURI: record.RedirectURI,
		ExpiresAt:   record.ExpiresAt,
	}, nil
}

// CompleteCallback validates an OAuth redirect and exchanges its code. A
// state, when present, must match a stored single use record.
func (m *CredentialManager) CompleteCallback(ctx context.Context, req CallbackRequest) (Credential, error) {
	platform := NormalizePlatformID(req.Platform)
	if _, err := m.registry.Provider(platform); err != nil {
		return Credential{}, err
	}
	if reason := strings.TrimSpace(req.Error); reason != "" {
		err := newKindError(
			KindAuthorization,
			"core: authorization was denied by "+quote(platform),
			nil,
			platformMetadata(platform, map[string]any{
				"reason":      reason,
				"description": strings.TrimSpace(req.ErrorDescription),
			}),
		)
		m.observer.Warn(ctx, "oauth callback returned an error", map[string]any{"platform": platform, "reason": reason})
		return Credential{}, err
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if state := strings.TrimSpace(req.State); state != "" {
		record, err := m.states.Consume(ctx, state)
		if err != nil {
			return Credential{}, err
		}
		if NormalizePlatformID(record.Platform) != platform {
			return Credential{}, InvalidOAuthStateError(platform, "core: oauth state platform mismatch")
		}
		if redirectURI == "" {
			redirectURI = record.RedirectURI
		}
	}
	return m.exchange(ctx, platform, req.Code, redirectURI)
}

// ExchangeCode trades an authorization code for a credential. It is never
// retried: codes are single use upstream.
func (m *CredentialManager) ExchangeCode(ctx context.Context, platform string, code string) (Credential, error) {
	return m.exchange(ctx, NormalizePlatformID(platform), code, "")
}

func (m *CredentialManager) exchange(ctx context.Context, platform string, code string, redirectURI string) (credential Credential, err error) {
	startedAt := m.clock()
	defer func() {
		m.observer.Observe(ctx, startedAt, "oauth_exchange", err, map[string]any{"platform": platform})
	}()

	code = strings.TrimSpace(code)
	if code == "" {
		return Credential{}, BadInputError("core: authorization code is required", map[string]any{"platform": platform})
	}
	provider, err := m.registry.Provider(platform)
	if err != nil {
		return Credential{}, err
	}
	cfg := provider.Config()
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return Credential{}, OAuthExchangeError(platform, ExchangeFailureConfiguration,
			ConfigurationError(platform, "core: token url is not configured"))
	}
	clientID, clientSecret, err := m.clientCredentials(ctx, platform, cfg)
	if err != nil {
		return Credential{}, OAuthExchangeError(platform, ExchangeFailureConfiguration, err)
	}

	callCtx, cancel := m.tokenContext(ctx)
	grant, err := provider.ExchangeCode(callCtx, TokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
		Scopes:       append([]string(nil), cfg.Scopes...),
	})
	cancel()
	if err != nil {
		return Credential{}, OAuthExchangeError(platform, exchangeCause(err), err)
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		return Credential{}, OAuthExchangeError(platform, ExchangeFailureRejected,
			fmt.Errorf("core: token response missing access token"))
	}

	now := m.clock()
	credential = Credential{
		Platform:     platform,
		AccessToken:  strings.TrimSpace(grant.AccessToken),
		RefreshToken: strings.TrimSpace(grant.RefreshToken),
		TokenType:    strings.TrimSpace(grant.TokenType),
		Scopes:       grantScopes(grant, cfg),
		ExpiresAt:    grant.ExpiresAtFrom(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.credentials.SaveCredential(ctx, credential); err != nil {
		return Credential{}, PersistenceError("core: save credential", err)
	}
	if _, err := m.transition(ctx, platform, StateConnected, "", func(status *IntegrationStatus) {
		status.ExpiresAt = cloneTime(credential.ExpiresAt)
	}); err != nil {
		return Credential{}, err
	}
	return credential.Clone(), nil
}

// RefreshIfExpired returns a credential that is valid for at least the skew
// window, refreshing it first when needed. Tokens without expiry are returned
// untouched.
func (m *CredentialManager) RefreshIfExpired(ctx context.Context, platform string) (Credential, error) {
	platform = NormalizePlatformID(platform)
	if _, err := m.registry.Provider(platform); err != nil {
		return Credential{}, err
	}
	credential, err := m.Credential(ctx, platform)
	if err != nil {
		return Credential{}, err
	}
	if !credential.ExpiresWithin(m.clock(), m.skew()) {
		return credential, nil
	}
	return m.refresh(ctx, platform, false)
}

// ForceRefresh refreshes regardless of expiry. Used after the platform
// rejects a token it considers stale.
func (m *CredentialManager) ForceRefresh(ctx context.Context, platform string) (Credential, error) {
	platform = NormalizePlatformID(platform)
	if _, err := m.registry.Provider(platform); err != nil {
		return Credential{}, err
	}
	return m.refresh(ctx, platform, true)
}

type refreshOutcome struct {
	credential Credential
	refreshed  bool
}

// refresh runs at most one refresh grant per platform at a time. Callers
// joining a flight take its result; a forced caller that joined a flight
// which found the token still fresh starts its own.
func (m *CredentialManager) refresh(ctx context.Context, platform string, force bool) (Credential, error) {
	for joined := 0; ; joined++ {
		outcome, err := m.joinRefresh(ctx, platform, force)
		if err != nil {
			return Credential{}, err
		}
		if !force || outcome.refreshed || joined > 0 {
			return outcome.credential.Clone(), nil
		}
	}
}

func (m *CredentialManager) joinRefresh(ctx context.Context, platform string, force bool) (refreshOutcome, error) {
	// The flight outlives any single caller so a cancelled request cannot
	// abort a refresh other callers are waiting on.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.refreshFlight.DoChan(platform, func() (any, error) {
		return m.refreshOnce(flightCtx, platform, force)
	})
	select {
	case <-ctx.Done():
		return refreshOutcome{}, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return refreshOutcome{}, result.Err
		}
		outcome, _ := result.Val.(refreshOutcome)
		return outcome, nil
	}
}

func (m *CredentialManager) refreshOnce(ctx context.Context, platform string, force bool) (outcome refreshOutcome, err error) {
	startedAt := m.clock()
	defer func() {
		m.observer.Observe(ctx, startedAt, "token_refresh", err, map[string]any{
			"platform":  platform,
			"forced":    force,
			"refreshed": outcome.refreshed,
		})
	}()

	current, err := m.Credential(ctx, platform)
	if err != nil {
		return refreshOutcome{}, err
	}
	// Another flight may have refreshed between the caller's check and now.
	if !force && !current.ExpiresWithin(m.clock(), m.skew()) {
		return refreshOutcome{credential: current}, nil
	}

	provider, err := m.registry.Provider(platform)
	if err != nil {
		return refreshOutcome{}, err
	}
	grant, err := m.requestRefresh(ctx, platform, provider, current)
	if err != nil {
		refreshErr := TokenRefreshError(platform, err)
		if _, markErr := m.transition(ctx, platform, StateDisconnected, refreshErr.Error(), nil); markErr != nil {
			m.observer.Error(ctx, "mark disconnected after refresh failure", map[string]any{
				"platform": platform,
				"error":    markErr.Error(),
			})
		}
		return refreshOutcome{}, refreshErr
	}

	now := m.clock()
	credential := current.Clone()
	credential.AccessToken = strings.TrimSpace(grant.AccessToken)
	if token := strings.TrimSpace(grant.RefreshToken); token != "" {
		credential.RefreshToken = token
	}
	if tokenType := strings.TrimSpace(grant.TokenType); tokenType != "" {
		credential.TokenType = tokenType
	}
	if len(grant.Scopes) > 0 {
		credential.Scopes = append([]string(nil), grant.Scopes...)
	}
	credential.ExpiresAt = grant.ExpiresAtFrom(now)
	credential.UpdatedAt = now
	if err := m.commitRefresh(ctx, provider, current, credential); err != nil {
		return refreshOutcome{}, err
	}
	return refreshOutcome{credential: credential, refreshed: true}, nil
}

// commitRefresh stores a refreshed credential only while the platform is
// still connected with the credential the grant was issued for. A disconnect
// or re-authorization during the grant wins and the grant is dropped.
func (m *CredentialManager) commitRefresh(ctx context.Context, provider Provider, previous Credential, credential Credential) error {
	platform := credential.Platform
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	stored, ok, err := m.credentials.GetCredential(ctx, platform)
	if err != nil {
		return PersistenceError("core: load credential", err)
	}
	status, err := m.loadStatus(ctx, provider)
	if err != nil {
		return err
	}
	if !ok || status.Status != StateConnected ||
		stored.AccessToken != previous.AccessToken || stored.RefreshToken != previous.RefreshToken {
		m.observer.Warn(ctx, "refreshed credential discarded", map[string]any{
			"platform":  platform,
			"connected": status.Status == StateConnected,
		})
		return AuthorizationError(platform, "core: credential changed while refreshing", nil)
	}

	if err := m.credentials.SaveCredential(ctx, credential); err != nil {
		return PersistenceError("core: save refreshed credential", err)
	}
	_, err = m.transitionLocked(ctx, provider, StateConnected, "", func(status *IntegrationStatus) {
		status.ExpiresAt = cloneTime(credential.ExpiresAt)
	})
	return err
}

func (m *CredentialManager) requestRefresh(ctx context.Context, platform string, provider Provider, current Credential) (TokenGrant, error) {
	if strings.TrimSpace(current.RefreshToken) == "" {
		return TokenGrant{}, AuthorizationError(platform, "core: credential has no refresh token", nil)
	}
	cfg := provider.Config()
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return TokenGrant{}, ConfigurationError(platform, "core: token url is not configured")
	}
	clientID, clientSecret, err := m.clientCredentials(ctx, platform, cfg)
	if err != nil {
		return TokenGrant{}, err
	}
	callCtx, cancel := m.tokenContext(ctx)
	defer cancel()
	grant, err := provider.Refresh(callCtx, TokenRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: current.RefreshToken,
		Scopes:       append([]string(nil), current.Scopes...),
	})
	if err != nil {
		return TokenGrant{}, err
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		return TokenGrant{}, AuthorizationError(platform, "core: refresh response missing access token", nil)
	}
	return grant, nil
}

// Credential loads the stored credential for platform.
func (m *CredentialManager) Credential(ctx context.Context, platform string) (Credential, error) {
	platform = NormalizePlatformID(platform)
	credential, ok, err := m.credentials.GetCredential(ctx, platform)
	if err != nil {
		return Credential{}, PersistenceError("core: load credential", err)
	}
	if !ok {
		return Credential{}, newCodedError(
			"core: platform "+quote(platform)+" is not connected",
			goerrors.CategoryAuth,
			http.StatusUnauthorized,
			ErrorCodeCredentialNotFound,
			platformMetadata(platform, map[string]any{"kind": string(KindAuthorization)}),
		)
	}
	return credential.Clone(), nil
}

// Disconnect removes the credential and marks the platform disconnected.
// Repeating it returns the original disconnect timestamp.
func (m *CredentialManager) Disconnect(ctx context.Context, platform string) (status IntegrationStatus, err error) {
	startedAt := m.clock()
	platform = NormalizePlatformID(platform)
	defer func() {
		m.observer.Observe(ctx, startedAt, "disconnect", err, map[string]any{"platform": platform})
	}()

	provider, err := m.registry.Provider(platform)
	if err != nil {
		return IntegrationStatus{}, err
	}
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	if err := m.credentials.DeleteCredential(ctx, platform); err != nil {
		return IntegrationStatus{}, PersistenceError("core: delete credential", err)
	}
	return m.transitionLocked(ctx, provider, StateDisconnected, "", func(status *IntegrationStatus) {
		status.ExpiresAt = nil
	})
}

func (m *CredentialManager) Status(ctx context.Context, platform string) (IntegrationStatus, error) {
	platform = NormalizePlatformID(platform)
	provider, err := m.registry.Provider(platform)
	if err != nil {
		return IntegrationStatus{}, err
	}
	status, err := m.loadStatus(ctx, provider)
	if err != nil {
		return IntegrationStatus{}, err
	}
	credential, ok, err := m.credentials.GetCredential(ctx, platform)
	if err != nil {
		return IntegrationStatus{}, PersistenceError("core: load credential", err)
	}
	if ok {
		status.ExpiresAt = cloneTime(credential.ExpiresAt)
	} else {
		status.ExpiresAt = nil
	}
	return status, nil
}

// Statuses lists one entry per registered platform, sorted by id.
func (m *CredentialManager) Statuses(ctx context.Context) ([]IntegrationStatus, error) {
	ids := m.registry.IDs()
	out := make([]IntegrationStatus, 0, len(ids))
	for _, id := range ids {
		status, err := m.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// MarkSynced records a successful sync at at.
func (m *CredentialManager) MarkSynced(ctx context.Context, platform string, at time.Time) error {
	platform = NormalizePlatformID(platform)
	provider, err := m.registry.Provider(platform)
	if err != nil {
		return err
	}
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	status, err := m.loadStatus(ctx, provider)
	if err != nil {
		return err
	}
	synced := at.UTC()
	status.LastSync = &synced
	status.UpdatedAt = m.clock()
	if err := m.statuses.SaveStatus(ctx, status); err != nil {
		return PersistenceError("core: save integration status", err)
	}
	return nil
}

func (m *CredentialManager) transition(
	ctx context.Context,
	platform string,
	next IntegrationState,
	reason string,
	mutate func(*IntegrationStatus),
) (IntegrationStatus, error) {
	provider, err := m.registry.Provider(platform)
	if err != nil {
		return IntegrationStatus{}, err
	}
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.transitionLocked(ctx, provider, next, reason, mutate)
}

// transitionLocked expects statusMu to be held.
func (m *CredentialManager) transitionLocked(
	ctx context.Context,
	provider Provider,
	next IntegrationState,
	reason string,
	mutate func(*IntegrationStatus),
) (IntegrationStatus, error) {
	platform := NormalizePlatformID(provider.ID())
	status, err := m.loadStatus(ctx, provider)
	if err != nil {
		return IntegrationStatus{}, err
	}
	previous := status.Status
	if err := status.TransitionTo(next, reason, m.clock()); err != nil {
		return IntegrationStatus{}, BadInputError(err.Error(), map[string]any{"platform": platform})
	}
	if mutate != nil {
		mutate(&status)
	}
	if err := m.statuses.SaveStatus(ctx, status); err != nil {
		return IntegrationStatus{}, PersistenceError("core: save integration status", err)
	}
	if previous != status.Status {
		m.observer.Info(ctx, "integration state changed", map[string]any{
			"platform": platform,
			"from":     string(previous),
			"to":       string(status.Status),
		})
	}
	return status, nil
}

func (m *CredentialManager) loadStatus(ctx context.Context, provider Provider) (IntegrationStatus, error) {
	platform := NormalizePlatformID(provider.ID())
	status, ok, err := m.statuses.GetStatus(ctx, platform)
	if err != nil {
		return IntegrationStatus{}, PersistenceError("core: load integration status", err)
	}
	if !ok {
		status = IntegrationStatus{
			Platform: platform,
			Status:   StateDisconnected,
		}
	}
	status.Platform = platform
	if status.Status == "" {
		status.Status = StateDisconnected
	}
	status.Connected = status.Status == StateConnected
	if strings.TrimSpace(status.AuthType) == "" {
		status.AuthType = provider.AuthKind()
	}
	return status, nil
}

func (m *CredentialManager) clientCredentials(ctx context.Context, platform string, cfg PlatformConfig) (string, string, error) {
	clientID, err := m.resolveSecret(ctx, cfg.ClientIDRef, platform, SecretFieldClientID)
	if err != nil {
		return "", "", err
	}
	clientSecret, err := m.resolveSecret(ctx, cfg.ClientSecretRef, platform, SecretFieldClientSecret)
	if err != nil {
		return "", "", err
	}
	return clientID, clientSecret, nil
}

func (m *CredentialManager) resolveSecret(ctx context.Context, ref string, platform string, field string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = PlatformSecretRef(platform, field)
	}
	value, err := m.secrets.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return "", ConfigurationError(platform, "core: "+field+" is not configured for "+quote(platform))
		}
		return "", ConfigurationError(platform, "core: resolve "+field+": "+err.Error())
	}
	if strings.TrimSpace(value) == "" {
		return "", ConfigurationError(platform, "core: "+field+" is not configured for "+quote(platform))
	}
	return value, nil
}

func (m *CredentialManager) tokenContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.config.Refresh.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTokenTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *CredentialManager) skew() time.Duration {
	if m.config.Refresh.Skew > 0 {
		return m.config.Refresh.Skew
	}
	return 0
}

func (m *CredentialManager) clock() time.Time {
	if m == nil || m.now == nil {
		return time.Now().UTC()
	}
	return m.now().UTC()
}

func exchangeCause(err error) ExchangeFailureCause {
	switch KindOf(err) {
	case KindNetwork:
		return ExchangeFailureNetwork
	case KindConfiguration:
		return ExchangeFailureConfiguration
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ExchangeFailureNetwork
	}
	return ExchangeFailureRejected
}

func grantScopes(grant TokenGrant, cfg PlatformConfig) []string {
	if len(grant.Scopes) > 0 {
		return append([]string(nil), grant.Scopes...)
	}
	return append([]string(nil), cfg.Scopes...)
}
