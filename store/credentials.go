package store

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-integrations/core"
)

// CredentialStore keeps one credential per platform. With a SecretProvider
// configured the JSON record is sealed before it reaches the backend.
type CredentialStore struct {
	kv     core.KVStore
	sealer core.SecretProvider
}

type CredentialOption func(*CredentialStore)

func WithSealer(sealer core.SecretProvider) CredentialOption {
	return func(s *CredentialStore) {
		s.sealer = sealer
	}
}

func NewCredentialStore(kv core.KVStore, opts ...CredentialOption) (*CredentialStore, error) {
	if err := requireKV(kv); err != nil {
		return nil, err
	}
	store := &CredentialStore{kv: kv}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *CredentialStore) GetCredential(ctx context.Context, platform string) (core.Credential, bool, error) {
	key := prefixCredentials + keySegment(core.NormalizePlatformID(platform))
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return core.Credential{}, false, core.PersistenceError("store: load credential", err)
	}
	if !ok {
		return core.Credential{}, false, nil
	}
	if s.sealer != nil {
		raw, err = s.sealer.Decrypt(ctx, raw)
		if err != nil {
			return core.Credential{}, false, core.PersistenceError("store: open credential", err)
		}
	}
	var credential core.Credential
	if err := json.Unmarshal(raw, &credential); err != nil {
		return core.Credential{}, false, core.PersistenceError("store: decode credential", err)
	}
	return credential, true, nil
}

func (s *CredentialStore) SaveCredential(ctx context.Context, credential core.Credential) error {
	credential.Platform = core.NormalizePlatformID(credential.Platform)
	if credential.Platform == "" {
		return core.BadInputError("store: credential platform is required", nil)
	}
	raw, err := json.Marshal(credential)
	if err != nil {
		return core.PersistenceError("store: encode credential", err)
	}
	if s.sealer != nil {
		raw, err = s.sealer.Encrypt(ctx, raw)
		if err != nil {
			return core.PersistenceError("store: seal credential", err)
		}
	}
	if err := s.kv.Set(ctx, prefixCredentials+keySegment(credential.Platform), raw); err != nil {
		return core.PersistenceError("store: save credential", err)
	}
	return nil
}

func (s *CredentialStore) DeleteCredential(ctx context.Context, platform string) error {
	if err := s.kv.Delete(ctx, prefixCredentials+keySegment(core.NormalizePlatformID(platform))); err != nil {
		return core.PersistenceError("store: delete credential", err)
	}
	return nil
}

type StatusStore struct {
	kv core.KVStore
}

func NewStatusStore(kv core.KVStore) (*StatusStore, error) {
	if err := requireKV(kv); err != nil {
		return nil, err
	}
	return &StatusStore{kv: kv}, nil
}

func (s *StatusStore) GetStatus(ctx context.Context, platform string) (core.IntegrationStatus, bool, error) {
	return loadJSON[core.IntegrationStatus](ctx, s.kv, prefixStatus+keySegment(core.NormalizePlatformID(platform)))
}

func (s *StatusStore) SaveStatus(ctx context.Context, status core.IntegrationStatus) error {
	status.Platform = core.NormalizePlatformID(status.Platform)
	if status.Platform == "" {
		return core.BadInputError("store: status platform is required", nil)
	}
	return saveJSON(ctx, s.kv, prefixStatus+keySegment(status.Platform), status)
}

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.StatusStore     = (*StatusStore)(nil)
)
