// Package connectivity answers "are we online?" for the reconciliation policy.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"docaria/internal/adapters/observability"
)

const stateKey = "online"

// Probe checks reachability with an HTTP request and memoizes the answer for ttl,
// so bursts of operations share one network round trip.
type Probe struct {
	url  string
	hc   *http.Client
	memo *cache.Cache
	mu   sync.Mutex // serializes probes so concurrent callers wait for one answer
	ttl  time.Duration
}

func NewProbe(url string, ttl time.Duration) *Probe {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Probe{
		url:  url,
		hc:   &http.Client{Timeout: 3 * time.Second},
		memo: cache.New(ttl, 2*ttl),
		ttl:  ttl,
	}
}

func (p *Probe) Online(ctx context.Context) bool {
	if v, ok := p.memo.Get(stateKey); ok {
		return v.(bool)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.memo.Get(stateKey); ok {
		return v.(bool)
	}

	// the answer is shared process-wide: a caller's cancellation must not be
	// memoized as "offline". The client timeout still bounds the request.
	online := p.check(context.WithoutCancel(ctx))
	p.memo.Set(stateKey, online, p.ttl)
	observability.ObserveOnline(online)
	return online
}

// Invalidate drops the memoized answer, e.g. after a remote call failed at transport level.
func (p *Probe) Invalidate() { p.memo.Delete(stateKey) }

func (p *Probe) check(ctx context.Context) bool {
	logger := observability.Component("connectivity")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		logger.Warn().Err(err).Str("url", p.url).Msg("connectivity probe request")
		return false
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("connectivity probe failed, offline")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Static is a fixed answer, used by tests and by deployments that pin a mode.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }
