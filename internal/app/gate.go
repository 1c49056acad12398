package app

import (
	"context"
	"errors"
	"time"

	"docaria/internal/domain"
	"docaria/internal/geo"
)

// Denial reasons reported by SubmitGate.
const (
	ReasonNoLocation           = "location_unavailable"
	ReasonUnknownEstablishment = "unknown_establishment"
	ReasonNoCoordinates        = "establishment_without_coordinates"
	ReasonTooFar               = "too_far"
	ReasonCooldown             = "cooldown"
)

type GateDecision struct {
	Allowed   bool    `json:"allowed"`
	Reason    string  `json:"reason,omitempty"`
	DistanceM float64 `json:"distance_m"`
}

// SubmitGate decides whether a user may review an establishment: they must be
// within the radius and must not have reviewed it during the cooldown window.
type SubmitGate struct {
	est      *EstablishmentService
	reviews  *ReviewService
	net      domain.Connectivity
	radius   float64
	cooldown time.Duration
	now      func() time.Time
}

func NewSubmitGate(est *EstablishmentService, reviews *ReviewService, n domain.Connectivity, radiusMeters float64, cooldown time.Duration) *SubmitGate {
	if radiusMeters <= 0 {
		radiusMeters = 50
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &SubmitGate{est: est, reviews: reviews, net: n, radius: radiusMeters, cooldown: cooldown, now: time.Now}
}

// Check evaluates the gate for a user standing at at. A nil position denies.
func (g *SubmitGate) Check(ctx context.Context, userID, establishmentID string, at *domain.Coords) (GateDecision, error) {
	if at == nil {
		return GateDecision{Reason: ReasonNoLocation}, nil
	}
	online := g.net.Online(ctx)

	e, err := g.est.get(ctx, online, establishmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return GateDecision{Reason: ReasonUnknownEstablishment}, nil
	}
	if err != nil {
		return GateDecision{}, err
	}
	pos := e.Coords()
	if pos == nil {
		return GateDecision{Reason: ReasonNoCoordinates}, nil
	}

	d := geo.DistanceMeters(at.Lat, at.Lon, pos.Lat, pos.Lon)
	if d > g.radius {
		return GateDecision{Reason: ReasonTooFar, DistanceM: d}, nil
	}

	last, err := g.reviews.lastUserReview(ctx, online, userID, establishmentID)
	if err != nil {
		return GateDecision{}, err
	}
	if last != nil && g.now().Sub(last.CreatedAt) <= g.cooldown {
		return GateDecision{Reason: ReasonCooldown, DistanceM: d}, nil
	}
	return GateDecision{Allowed: true, DistanceM: d}, nil
}
