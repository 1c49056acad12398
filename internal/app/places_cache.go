package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"docaria/internal/adapters/observability"
	"docaria/internal/domain"
)

// NearbyCache memoizes places responses per rounded query. Cache failures
// degrade to a direct query.
type NearbyCache struct {
	next  domain.PlacesSource
	cache domain.Cache
	ttl   time.Duration
}

func NewNearbyCache(next domain.PlacesSource, c domain.Cache, ttl time.Duration) *NearbyCache {
	return &NearbyCache{next: next, cache: c, ttl: ttl}
}

func nearbyKey(q domain.NearbyQuery) string {
	return fmt.Sprintf("places:%.3f:%.3f:%d:%s", q.Center.Lat, q.Center.Lon, q.Radius, q.Type)
}

func (n *NearbyCache) Nearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Place, error) {
	key := nearbyKey(q)
	var cached []domain.Place
	ok, err := n.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		observability.ObserveCache("places", "error")
		log.Warn().Err(err).Str("key", key).Msg("places cache read")
		// an entry that cannot be decoded would fail every read until it expires
		if err := n.cache.Del(ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("places cache evict")
		}
	case ok:
		observability.ObserveCache("places", "hit")
		return cached, nil
	default:
		observability.ObserveCache("places", "miss")
	}

	ps, err := n.next.Nearby(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := n.cache.Set(ctx, key, ps, int(n.ttl.Seconds())); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("places cache write")
	}
	return ps, nil
}
