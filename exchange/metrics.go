package exchange

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// CacheStats is a point-in-time view of exchange cache behavior.
type CacheStats struct {
	Hits                int64
	Misses              int64
	RequestorMismatches int64
	DecodeFailures      int64
	ActiveEntries       int
	ApproxBytes         int64
}

// cacheMetrics tracks cache behavior both as local counters (for
// Stats()) and as otel instruments.
type cacheMetrics struct {
	hits       atomic.Int64
	misses     atomic.Int64
	mismatches atomic.Int64
	decodeErrs atomic.Int64

	hitCount      metric.Int64Counter
	missCount     metric.Int64Counter
	mismatchCount metric.Int64Counter
	decodeCount   metric.Int64Counter
}

func newCacheMetrics(meter metric.Meter, cache *tokenCache) (*cacheMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	m := &cacheMetrics{}
	var err error

	m.hitCount, err = meter.Int64Counter(
		"exchange.cache.hits",
		metric.WithDescription("Token exchange cache hits"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.missCount, err = meter.Int64Counter(
		"exchange.cache.misses",
		metric.WithDescription("Token exchange cache misses, including expiries"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.mismatchCount, err = meter.Int64Counter(
		"exchange.cache.requestor_mismatches",
		metric.WithDescription("Cache entries evicted for requestor subject mismatch"),
		metric.WithUnit("{eviction}"),
	)
	if err != nil {
		return nil, err
	}

	m.decodeCount, err = meter.Int64Counter(
		"exchange.token.decode_failures",
		metric.WithDescription("Delegated tokens whose claims could not be decoded"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	entries, err := meter.Int64ObservableGauge(
		"exchange.cache.entries",
		metric.WithDescription("Active token exchange cache entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	bytes, err := meter.Int64ObservableGauge(
		"exchange.cache.bytes",
		metric.WithDescription("Approximate token exchange cache memory usage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(entries, int64(cache.len()))
		o.ObserveInt64(bytes, cache.approxBytes())
		return nil
	}, entries, bytes)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) recordLookup(ctx context.Context, result lookupResult) {
	switch result {
	case lookupHit:
		m.hits.Add(1)
		m.hitCount.Add(ctx, 1)
	case lookupMismatch:
		m.mismatches.Add(1)
		m.mismatchCount.Add(ctx, 1)
		m.misses.Add(1)
		m.missCount.Add(ctx, 1)
	default:
		m.misses.Add(1)
		m.missCount.Add(ctx, 1)
	}
}

func (m *cacheMetrics) recordDecodeFailure(ctx context.Context) {
	m.decodeErrs.Add(1)
	m.decodeCount.Add(ctx, 1)
}
