package store

import (
	"context"
	"sort"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

// SubscriptionStore keeps one subscription per (platform, resource). The
// resource is expected in canonical form; the subscriptions package owns
// canonicalization and serializes read-modify-write cycles.
type SubscriptionStore struct {
	kv core.KVStore
}

func NewSubscriptionStore(kv core.KVStore) (*SubscriptionStore, error) {
	if err := requireKV(kv); err != nil {
		return nil, err
	}
	return &SubscriptionStore{kv: kv}, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, platform string, resource string) (core.Subscription, bool, error) {
	return loadJSON[core.Subscription](ctx, s.kv, subscriptionKey(platform, resource))
}

func (s *SubscriptionStore) Save(ctx context.Context, subscription core.Subscription) error {
	subscription.Platform = core.NormalizePlatformID(subscription.Platform)
	if subscription.Platform == "" || strings.TrimSpace(subscription.Resource) == "" {
		return core.BadInputError("store: subscription platform and resource are required", nil)
	}
	subscription.UserIDs = core.NormalizeUserIDs(subscription.UserIDs)
	return saveJSON(ctx, s.kv, subscriptionKey(subscription.Platform, subscription.Resource), subscription)
}

func (s *SubscriptionStore) Delete(ctx context.Context, platform string, resource string) error {
	if err := s.kv.Delete(ctx, subscriptionKey(platform, resource)); err != nil {
		return core.PersistenceError("store: delete subscription", err)
	}
	return nil
}

// List returns the subscriptions of a platform, or of every platform when
// platform is empty, ordered by platform then resource.
func (s *SubscriptionStore) List(ctx context.Context, platform string) ([]core.Subscription, error) {
	prefix := prefixSubscriptions
	if id := core.NormalizePlatformID(platform); id != "" {
		prefix += keySegment(id) + "/"
	}
	subscriptions, err := scanJSON[core.Subscription](ctx, s.kv, prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(subscriptions, func(i, j int) bool {
		if subscriptions[i].Platform != subscriptions[j].Platform {
			return subscriptions[i].Platform < subscriptions[j].Platform
		}
		return subscriptions[i].Resource < subscriptions[j].Resource
	})
	return subscriptions, nil
}

func subscriptionKey(platform string, resource string) string {
	return prefixSubscriptions + keySegment(core.NormalizePlatformID(platform)) + "/" +
		keySegment(strings.ToLower(resource))
}
