// Package places is a client for the Google Places nearby-search API.
package places

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docaria/internal/adapters/observability"
	"docaria/internal/domain"
)

const nearbyPath = "/maps/api/place/nearbysearch/json"

var (
	ErrDenied = errors.New("places: request denied")
	ErrQuota  = errors.New("places: over query limit")
)

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("places API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 15 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

type nearbyResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
		Height         int    `json:"height"`
		Width          int    `json:"width"`
	} `json:"photos"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// Nearby returns candidate places around q.Center.
func (c *Client) Nearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Place, error) {
	v := url.Values{}
	v.Set("location", fmt.Sprintf("%f,%f", q.Center.Lat, q.Center.Lon))
	v.Set("radius", strconv.Itoa(q.Radius))
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	v.Set("key", c.key)

	var out nearbyResponse
	start := time.Now()
	status, err := c.get(ctx, c.base+nearbyPath+"?"+v.Encode(), &out)
	observability.ObserveExternal("places", "nearbysearch", status, time.Since(start))
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case "OK", "ZERO_RESULTS", "":
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return nil, fmt.Errorf("%w: %s", ErrDenied, out.ErrorMessage)
	case "OVER_QUERY_LIMIT":
		return nil, ErrQuota
	default:
		return nil, fmt.Errorf("places: status %s: %s", out.Status, out.ErrorMessage)
	}

	res := make([]domain.Place, 0, len(out.Results))
	for _, r := range out.Results {
		if r.PlaceID == "" {
			continue
		}
		p := domain.Place{
			PlaceID:      r.PlaceID,
			Name:         r.Name,
			Vicinity:     r.Vicinity,
			Rating:       r.Rating,
			RatingsTotal: r.UserRatingsTotal,
			Location:     domain.Coords{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng},
		}
		if len(r.Photos) > 0 && r.Photos[0].PhotoReference != "" {
			u := c.PhotoURL(r.Photos[0].PhotoReference)
			p.PhotoURL = &u
		}
		res = append(res, p)
	}
	return res, nil
}

// PhotoURL builds the fetchable photo link for a photo reference.
func (c *Client) PhotoURL(ref string) string {
	v := url.Values{}
	v.Set("maxwidth", "400")
	v.Set("photoreference", ref)
	v.Set("key", c.key)
	return c.base + "/maps/api/place/photo?" + v.Encode()
}

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, u string, out any) (int, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return 0, err
	}

	var lastErr error
	lastStatus := 0
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "docaria/1.0")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, lastErr
		}
		lastStatus = resp.StatusCode

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return resp.StatusCode, fmt.Errorf("places: decode: %w", err)
			}
			return resp.StatusCode, nil

		case http.StatusNotFound:
			resp.Body.Close()
			return resp.StatusCode, domain.ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return resp.StatusCode, ErrDenied

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("places: remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return resp.StatusCode, ctx.Err()
			}
			return resp.StatusCode, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return resp.StatusCode, fmt.Errorf("places: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastStatus, lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff is 200ms doubling per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
