package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"docaria/internal/adapters/observability"
	"docaria/internal/domain"
)

// readThrough answers a read from the remote side when online and from the
// local cache otherwise. A failed remote call falls back to the cache. The
// remote func is responsible for refreshing the cache with what it fetched.
func readThrough[T any](
	ctx context.Context,
	op string,
	online bool,
	remote func(context.Context) (T, error),
	local func(context.Context) (T, error),
) (T, domain.Source, error) {
	if online {
		v, err := remote(ctx)
		if err == nil {
			observability.ObserveRead(op, string(domain.SourceRemote))
			return v, domain.SourceRemote, nil
		}
		log.Warn().Err(err).Str("op", op).Msg("remote read failed, serving local cache")
		observability.ObserveRead(op, "fallback")
	} else {
		observability.ObserveRead(op, string(domain.SourceCache))
	}

	v, err := local(ctx)
	if err != nil {
		var zero T
		return zero, domain.SourceCache, err
	}
	return v, domain.SourceCache, nil
}
