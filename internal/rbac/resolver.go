package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/shared"
)

// Resolver defaults.
const (
	DefaultCacheTTL     = 60 * time.Second
	DefaultCacheTimeout = 250 * time.Millisecond
	DefaultStoreTimeout = 3 * time.Second
)

// ResolverConfig tunes a Resolver.
type ResolverConfig struct {
	TTL          time.Duration
	CacheTimeout time.Duration
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

// Resolver computes effective permission sets, reading through the cache.
// Cache failures degrade to a store read and never surface to callers.
type Resolver struct {
	source       PermissionSource
	cache        Cache
	ttl          time.Duration
	cacheTimeout time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	loads        singleflight.Group
}

// NewResolver constructs a Resolver. cache may be nil to always read the store.
func NewResolver(source PermissionSource, cache Cache, cfg ResolverConfig) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = DefaultCacheTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		source:       source,
		cache:        cache,
		ttl:          cfg.TTL,
		cacheTimeout: cfg.CacheTimeout,
		storeTimeout: cfg.StoreTimeout,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// Resolve returns the user's effective permissions, sorted and collapsed to
// admin:all when the override is granted.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("rbac: resolve: empty user id: %w", shared.ErrValidation)
	}

	if perms, ok := r.readCache(ctx, userID); ok {
		return perms, nil
	}

	results := r.loads.DoChan(userID, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		perms, err := r.load(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		r.writeCache(loadCtx, userID, perms)
		return perms, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("rbac: resolve %s: %w", userID, errors.Join(shared.ErrTransient, ctx.Err()))
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

// Expand returns the full deduplicated permission union without the admin:all
// collapse and without touching the cache.
func (r *Resolver) Expand(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("rbac: expand: empty user id: %w", shared.ErrValidation)
	}
	names, err := r.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	return union(names), nil
}

// Check reports whether perms satisfies required.
func (r *Resolver) Check(perms []string, required string) bool {
	return Check(perms, required)
}

// Invalidate drops the cached set for a user.
func (r *Resolver) Invalidate(ctx context.Context, userID string) error {
	r.loads.Forget(userID)
	if r.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	defer cancel()
	if err := r.cache.Delete(ctx, CacheKey(userID)); err != nil {
		return fmt.Errorf("rbac: invalidate %s: %w", userID, err)
	}
	return nil
}

func (r *Resolver) load(ctx context.Context, userID string) ([]string, error) {
	names, err := r.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Effective(names), nil
}

func (r *Resolver) fetch(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	names, err := r.source.UserPermissions(ctx, userID)
	if err != nil {
		if !errors.Is(err, shared.ErrTransient) && !errors.Is(err, shared.ErrInternal) {
			if errors.Is(err, context.DeadlineExceeded) {
				err = errors.Join(shared.ErrTransient, err)
			} else {
				err = errors.Join(shared.ErrInternal, err)
			}
		}
		return nil, fmt.Errorf("rbac: resolve %s: %w", userID, err)
	}
	return names, nil
}

func (r *Resolver) readCache(ctx context.Context, userID string) ([]string, bool) {
	if r.cache == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	defer cancel()

	payload, err := r.cache.Get(ctx, CacheKey(userID))
	switch {
	case errors.Is(err, ErrCacheMiss):
		r.metrics.PermissionCache(observability.CacheMiss)
		return nil, false
	case err != nil:
		r.metrics.PermissionCache(observability.CacheError)
		r.discard("get", userID, err)
		return nil, false
	}

	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil || !wellFormed(perms) {
		r.metrics.PermissionCache(observability.CacheDecode)
		r.logger.Warn("rbac: undecodable permission cache entry", slog.String("user_id", userID))
		return nil, false
	}
	r.metrics.PermissionCache(observability.CacheHit)
	return perms, true
}

func (r *Resolver) writeCache(ctx context.Context, userID string, perms []string) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		r.discard("set", userID, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	defer cancel()
	if err := r.cache.Set(ctx, CacheKey(userID), payload, r.ttl); err != nil {
		r.discard("set", userID, err)
	}
}

// discard is the single sink for swallowed cache errors.
func (r *Resolver) discard(op, userID string, err error) {
	r.metrics.CacheFailure(op)
	r.logger.Warn("rbac: permission cache failure",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.Any("error", err))
}

func wellFormed(perms []string) bool {
	if perms == nil {
		return false
	}
	for _, perm := range perms {
		if !shared.IsPermissionName(perm) {
			return false
		}
	}
	return true
}
