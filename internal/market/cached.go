package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sigscreen/sigscreen/internal/market/cache"
)

// CacheObserver receives the result of each cache lookup, per tier.
type CacheObserver interface {
	ObserveCache(tier string, hit bool)
}

// CachedProvider fronts a Provider with a time-boxed kline cache so that
// one scan cycle never fetches the same series twice. Order books and
// tickers always pass through: books go stale within seconds and are
// consumed once per evaluation, and the ticker list opens each cycle.
type CachedProvider struct {
	upstream Provider
	local    *cache.TTLCache
	shared   *cache.RedisTier // optional, may be nil
	ttl      time.Duration
	observer CacheObserver // optional, may be nil
}

// NewCachedProvider wraps upstream with a kline cache using the given TTL.
// A non-nil shared tier is consulted between the local cache and upstream;
// a non-nil observer sees every lookup.
func NewCachedProvider(upstream Provider, shared *cache.RedisTier, ttl time.Duration, observer CacheObserver) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		local:    cache.NewTTLCache(),
		shared:   shared,
		ttl:      ttl,
		observer: observer,
	}
}

// Klines returns the cached series when present and unexpired, otherwise
// fetches through to the venue and stores the result.
func (p *CachedProvider) Klines(ctx context.Context, symbol, interval string, limit int) (Series, error) {
	key := SeriesKey(symbol, interval, limit)

	fetched := false
	value, err := p.local.GetOrFetch(ctx, key, p.ttl, func(ctx context.Context) (interface{}, error) {
		fetched = true
		if p.shared != nil {
			if data, ok := p.shared.GetBytes(ctx, key); ok {
				var series Series
				if err := json.Unmarshal(data, &series); err == nil {
					p.observe("shared", true)
					return series, nil
				}
			}
			p.observe("shared", false)
		}

		series, err := p.upstream.Klines(ctx, symbol, interval, limit)
		if err != nil {
			return nil, err
		}

		if p.shared != nil {
			if data, err := json.Marshal(series); err == nil {
				p.shared.SetBytes(ctx, key, data, p.ttl)
			}
		}
		return series, nil
	})
	p.observe("local", !fetched)
	if err != nil {
		return Series{}, err
	}
	return value.(Series), nil
}

func (p *CachedProvider) observe(tier string, hit bool) {
	if p.observer != nil {
		p.observer.ObserveCache(tier, hit)
	}
}

// Tickers passes through to the upstream provider.
func (p *CachedProvider) Tickers(ctx context.Context) ([]Ticker, error) {
	return p.upstream.Tickers(ctx)
}

// OrderBook passes through to the upstream provider.
func (p *CachedProvider) OrderBook(ctx context.Context, symbol string, depth int) (OrderBookSnapshot, error) {
	return p.upstream.OrderBook(ctx, symbol, depth)
}
