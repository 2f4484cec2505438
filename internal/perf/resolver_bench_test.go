package perf

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odyssey-erp/authcore/internal/observability"
	"github.com/odyssey-erp/authcore/internal/rbac"
)

type countingSource struct {
	calls atomic.Int64
	delay time.Duration
	perms []string
}

func (s *countingSource) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.perms, nil
}

func newResolver(source rbac.PermissionSource, metrics *observability.Metrics) *rbac.Resolver {
	return rbac.NewResolver(source, rbac.NewMemoryCache(1024, time.Minute), rbac.ResolverConfig{
		TTL:          time.Minute,
		CacheTimeout: 250 * time.Millisecond,
		StoreTimeout: time.Second,
		Metrics:      metrics,
	})
}

func TestResolverCacheAbsorbsRepeatedLookups(t *testing.T) {
	metrics := observability.NewMetrics()
	source := &countingSource{perms: []string{"roles:read", "users:read", "audit:read"}}
	resolver := newResolver(source, metrics)

	for i := 0; i < 100; i++ {
		if _, err := resolver.Resolve(context.Background(), "u-1"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("store consulted %d times, want 1", got)
	}

	families, err := metrics.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	hits := metricValue(t, families, "authcore_permission_cache_total", map[string]string{"result": observability.CacheHit})
	misses := metricValue(t, families, "authcore_permission_cache_total", map[string]string{"result": observability.CacheMiss})
	if ratio := hits / (hits + misses); ratio < 0.95 {
		t.Fatalf("cache hit ratio too low: %f", ratio)
	}
}

func TestCachedResolveLatencyTargets(t *testing.T) {
	source := &countingSource{delay: 5 * time.Millisecond, perms: []string{"roles:read"}}
	resolver := newResolver(source, nil)
	ctx := context.Background()

	cold := make([]time.Duration, 0, 10)
	warm := make([]time.Duration, 0, 200)
	for i := 0; i < 10; i++ {
		userID := fmt.Sprintf("u-%d", i)
		start := time.Now()
		if _, err := resolver.Resolve(ctx, userID); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		cold = append(cold, time.Since(start))
		for j := 0; j < 20; j++ {
			start = time.Now()
			if _, err := resolver.Resolve(ctx, userID); err != nil {
				t.Fatalf("resolve: %v", err)
			}
			warm = append(warm, time.Since(start))
		}
	}

	if p95 := percentile95(warm); p95 > 10*time.Millisecond {
		t.Fatalf("cached resolve regression: p95=%s", p95)
	}
	if p95 := percentile95(cold); p95 < source.delay {
		t.Fatalf("cold resolve skipped the store: p95=%s", p95)
	}
}

func BenchmarkResolveCached(b *testing.B) {
	source := &countingSource{perms: []string{"roles:read", "roles:write", "users:read"}}
	resolver := newResolver(source, observability.NewMetrics())
	ctx := context.Background()
	if _, err := resolver.Resolve(ctx, "u-1"); err != nil {
		b.Fatalf("warm: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := resolver.Resolve(ctx, "u-1"); err != nil {
				b.Fatalf("resolve: %v", err)
			}
		}
	})
}

func BenchmarkResolveColdParallel(b *testing.B) {
	source := &countingSource{perms: []string{"roles:read"}}
	resolver := newResolver(source, nil)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("u-%d", i)
		if _, err := resolver.Resolve(ctx, userID); err != nil {
			b.Fatalf("resolve: %v", err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
