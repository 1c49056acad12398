package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"docaria/internal/adapters/observability"
	"docaria/internal/domain"
)

const topN = 10

type RankingService struct {
	est     *EstablishmentService
	reviews *ReviewService
	net     domain.Connectivity
}

func NewRankingService(est *EstablishmentService, reviews *ReviewService, n domain.Connectivity) *RankingService {
	return &RankingService{est: est, reviews: reviews, net: n}
}

// Leaderboard ranks establishments near c by external or local rating.
func (s *RankingService) Leaderboard(ctx context.Context, c domain.Coords, by domain.RatingType) ([]domain.Establishment, domain.Source, error) {
	if by != domain.RatingExternal && by != domain.RatingLocal {
		return nil, "", fmt.Errorf("%w: rating type %q", domain.ErrInvalidArgument, by)
	}
	online := s.net.Online(ctx)
	candidates, src, err := readThrough(ctx, "leaderboard", online,
		func(ctx context.Context) ([]domain.Establishment, error) {
			places, err := s.est.places.Nearby(ctx, s.est.query(c))
			if err != nil {
				return nil, err
			}
			es, err := s.est.pullDocuments(ctx, places, false)
			if err != nil {
				return nil, err
			}
			if err := s.est.local.UpsertEstablishments(ctx, es); err != nil {
				return nil, err
			}
			return es, nil
		},
		s.est.local.ListEstablishments,
	)
	if err != nil {
		return nil, src, err
	}

	ranked := make([]domain.Establishment, 0, len(candidates))
	for _, cand := range candidates {
		e, err := s.est.local.GetEstablishment(ctx, cand.ID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Warn().Err(err).Str("establishment", cand.ID).Msg("leaderboard cache read")
			}
			e = cand
			e.AvgRating, e.TotalReviews = 0, 0
		}
		ranked = append(ranked, e)
	}

	key := func(e domain.Establishment) float64 {
		if by == domain.RatingExternal {
			return derefF(e.Rating)
		}
		return e.AvgRating
	}
	slices.SortStableFunc(ranked, func(a, b domain.Establishment) int {
		return cmp.Or(
			cmp.Compare(key(b), key(a)),
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.ID, b.ID),
		)
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, src, nil
}

// TopDocarias ranks (docaria, establishment) pairs by average review rating
// across every cached establishment.
func (s *RankingService) TopDocarias(ctx context.Context) ([]domain.DocariaStats, error) {
	online := s.net.Online(ctx)
	ests, err := s.est.local.ListEstablishments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cached establishments: %w", err)
	}

	perEst := make([][]domain.Review, len(ests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(docPullLimit)
	for i, e := range ests {
		g.Go(func() error {
			var (
				rs  []domain.Review
				err error
			)
			if online {
				rs, err = s.reviews.refreshEstablishmentReviews(gctx, e.ID)
			} else {
				rs, err = s.reviews.local.ReviewsByEstablishment(gctx, e.ID)
			}
			if err != nil {
				log.Warn().Err(err).Str("establishment", e.ID).Msg("docaria ranking: reviews unavailable")
				return nil
			}
			perEst[i] = rs
			return nil
		})
	}
	_ = g.Wait()
	if online {
		observability.ObserveRead("top_docarias", string(domain.SourceRemote))
	} else {
		observability.ObserveRead("top_docarias", string(domain.SourceCache))
	}

	return rankDocarias(ests, perEst), nil
}

// rankDocarias groups reviews by (docaria, establishment), skipping blank tags.
// Order: average desc, count desc, name asc, establishment id asc.
func rankDocarias(ests []domain.Establishment, perEst [][]domain.Review) []domain.DocariaStats {
	type groupKey struct{ name, est string }
	groups := map[groupKey]*domain.DocariaStats{}
	for i, e := range ests {
		for _, r := range perEst[i] {
			name := strings.TrimSpace(r.Docaria)
			if name == "" {
				continue
			}
			k := groupKey{name, e.ID}
			g, ok := groups[k]
			if !ok {
				g = &domain.DocariaStats{Name: name, EstablishmentID: e.ID, EstablishmentName: e.Name}
				groups[k] = g
			}
			g.TotalRating += r.Rating
			g.Count++
		}
	}

	out := make([]domain.DocariaStats, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b domain.DocariaStats) int {
		return cmp.Or(
			cmp.Compare(b.Avg(), a.Avg()),
			cmp.Compare(b.Count, a.Count),
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.EstablishmentID, b.EstablishmentID),
		)
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func sortByID(es []domain.Establishment) {
	slices.SortFunc(es, func(a, b domain.Establishment) int { return strings.Compare(a.ID, b.ID) })
}
