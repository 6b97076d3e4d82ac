// Package subscriptions maps external resources to the internal users
// watching them.
package subscriptions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-integrations/core"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	Get(ctx context.Context, platform string, resource string) (core.Subscription, bool, error)
	Save(ctx context.Context, subscription core.Subscription) error
	Delete(ctx context.Context, platform string, resource string) error
	List(ctx context.Context, platform string) ([]core.Subscription, error)
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

type Resolver struct {
	store  Store
	now    func() time.Time
	logger core.Logger

	// writes serializes read-modify-write cycles on subscription records.
	writes sync.Mutex
}

func NewResolver(store Store, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, core.ConfigurationError("", "subscriptions: store is required")
	}
	resolver := &Resolver{
		store: store,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(resolver)
		}
	}
	_, resolver.logger = core.ResolveLogger("integrations.subscriptions", nil, resolver.logger)
	return resolver, nil
}

// Resolve returns the sorted union of users subscribed to resource together
// with the matching subscriptions. No match is not an error.
func (r *Resolver) Resolve(ctx context.Context, platform string, resource string) ([]string, []core.Subscription, error) {
	target := CanonicalResource(resource)
	if target == "" {
		return []string{}, []core.Subscription{}, nil
	}
	candidates, err := r.store.List(ctx, platform)
	if err != nil {
		return nil, nil, err
	}
	users := []string{}
	matched := []core.Subscription{}
	for _, subscription := range candidates {
		if !matches(CanonicalResource(subscription.Resource), target) {
			continue
		}
		matched = append(matched, subscription)
		users = append(users, subscription.UserIDs...)
	}
	return core.NormalizeUserIDs(users), matched, nil
}

// Add creates the subscription or merges users into an existing one.
func (r *Resolver) Add(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	platform := core.NormalizePlatformID(req.Platform)
	resource := CanonicalResource(req.Resource)
	users := core.NormalizeUserIDs(req.UserIDs)
	if platform == "" || resource == "" {
		return core.Subscription{}, core.BadInputError("subscriptions: platform and resource are required",
			map[string]any{"platform": req.Platform, "resource": req.Resource})
	}
	if len(users) == 0 {
		return core.Subscription{}, core.BadInputError("subscriptions: at least one user id is required",
			map[string]any{"platform": platform, "resource": resource})
	}

	r.writes.Lock()
	defer r.writes.Unlock()

	now := r.now().UTC()
	subscription, ok, err := r.store.Get(ctx, platform, resource)
	if err != nil {
		return core.Subscription{}, err
	}
	if !ok {
		subscription = core.Subscription{
			ID:        uuid.NewString(),
			Platform:  platform,
			Resource:  resource,
			CreatedAt: now,
		}
	}
	if recordID := strings.TrimSpace(req.RecordID); recordID != "" {
		subscription.RecordID = recordID
	}
	subscription.UserIDs = core.NormalizeUserIDs(append(subscription.UserIDs, users...))
	subscription.UpdatedAt = now
	if err := r.store.Save(ctx, subscription); err != nil {
		return core.Subscription{}, err
	}
	r.logger.Debug("subscription updated",
		"platform", platform,
		"resource", resource,
		"users", len(subscription.UserIDs),
	)
	return subscription, nil
}

// Remove drops one user, or every user when userID is empty. A subscription
// left without users is deleted and reported as ok=false.
func (r *Resolver) Remove(ctx context.Context, platform string, resource string, userID string) (core.Subscription, bool, error) {
	platform = core.NormalizePlatformID(platform)
	resource = CanonicalResource(resource)
	if platform == "" || resource == "" {
		return core.Subscription{}, false, core.BadInputError("subscriptions: platform and resource are required", nil)
	}

	r.writes.Lock()
	defer r.writes.Unlock()

	subscription, ok, err := r.store.Get(ctx, platform, resource)
	if err != nil {
		return core.Subscription{}, false, err
	}
	if !ok {
		return core.Subscription{}, false, core.NotFoundError(core.ErrorCodeSubscriptionNotFound,
			"subscriptions: subscription not found", map[string]any{"platform": platform, "resource": resource})
	}

	userID = strings.TrimSpace(userID)
	remaining := make([]string, 0, len(subscription.UserIDs))
	if userID != "" {
		for _, existing := range subscription.UserIDs {
			if existing != userID {
				remaining = append(remaining, existing)
			}
		}
	}
	if len(remaining) == 0 {
		if err := r.store.Delete(ctx, platform, resource); err != nil {
			return core.Subscription{}, false, err
		}
		return core.Subscription{}, false, nil
	}
	subscription.UserIDs = remaining
	subscription.UpdatedAt = r.now().UTC()
	if err := r.store.Save(ctx, subscription); err != nil {
		return core.Subscription{}, false, err
	}
	return subscription, true, nil
}

func (r *Resolver) List(ctx context.Context, platform string) ([]core.Subscription, error) {
	return r.store.List(ctx, platform)
}

// Touch records activity on the subscriptions an event was delivered for.
func (r *Resolver) Touch(ctx context.Context, subscriptions []core.Subscription, at time.Time) error {
	if len(subscriptions) == 0 {
		return nil
	}
	at = at.UTC()

	r.writes.Lock()
	defer r.writes.Unlock()

	for _, touched := range subscriptions {
		current, ok, err := r.store.Get(ctx, touched.Platform, touched.Resource)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if current.LastActivityAt != nil && !at.After(*current.LastActivityAt) {
			continue
		}
		current.LastActivityAt = &at
		if err := r.store.Save(ctx, current); err != nil {
			return err
		}
	}
	return nil
}
