package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"docaria/internal/domain"
)

// docPullLimit bounds concurrent document store reads per request.
const docPullLimit = 8

type EstablishmentService struct {
	places    domain.PlacesSource
	docs      domain.DocumentStore
	local     domain.LocalCache
	net       domain.Connectivity
	radius    int
	placeType string
}

func NewEstablishmentService(p domain.PlacesSource, d domain.DocumentStore, l domain.LocalCache, n domain.Connectivity, radius int, placeType string) *EstablishmentService {
	if radius <= 0 {
		radius = 1000
	}
	if placeType == "" {
		placeType = "cafe"
	}
	return &EstablishmentService{places: p, docs: d, local: l, net: n, radius: radius, placeType: placeType}
}

func (s *EstablishmentService) query(c domain.Coords) domain.NearbyQuery {
	return domain.NearbyQuery{Center: c, Radius: s.radius, Type: s.placeType}
}

// Nearby lists establishments around c. Online, every candidate is merged into
// the document store and mirrored locally; offline, the whole local cache is
// returned.
func (s *EstablishmentService) Nearby(ctx context.Context, c domain.Coords) ([]domain.Establishment, domain.Source, error) {
	online := s.net.Online(ctx)
	return readThrough(ctx, "nearby", online,
		func(ctx context.Context) ([]domain.Establishment, error) {
			places, err := s.places.Nearby(ctx, s.query(c))
			if err != nil {
				return nil, err
			}
			es, err := s.pullDocuments(ctx, places, true)
			if err != nil {
				return nil, err
			}
			if err := s.local.UpsertEstablishments(ctx, es); err != nil {
				return nil, fmt.Errorf("cache establishments: %w", err)
			}
			return es, nil
		},
		s.local.ListEstablishments,
	)
}

// pullDocuments overlays the stored aggregate onto each place. With merge set
// the descriptive fields are written back to the document store as well.
func (s *EstablishmentService) pullDocuments(ctx context.Context, places []domain.Place, merge bool) ([]domain.Establishment, error) {
	out := make([]domain.Establishment, len(places))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(docPullLimit)
	for i, p := range places {
		g.Go(func() error {
			e := establishmentFromPlace(p)
			doc, err := s.docs.GetEstablishment(gctx, e.ID)
			switch {
			case err == nil:
				e = withAggregates(e, doc)
			case errors.Is(err, domain.ErrNotFound):
				// never reviewed: aggregate stays 0
			default:
				return fmt.Errorf("read establishment %s: %w", e.ID, err)
			}
			if merge {
				if err := s.docs.MergeEstablishment(gctx, e); err != nil {
					return err
				}
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one establishment, refreshed from the document store when online.
// The answer always comes from the local cache.
func (s *EstablishmentService) Get(ctx context.Context, id string) (domain.Establishment, error) {
	return s.get(ctx, s.net.Online(ctx), id)
}

func (s *EstablishmentService) get(ctx context.Context, online bool, id string) (domain.Establishment, error) {
	if online {
		doc, err := s.docs.GetEstablishment(ctx, id)
		switch {
		case err == nil:
			if err := s.local.UpsertEstablishments(ctx, []domain.Establishment{doc}); err != nil {
				log.Warn().Err(err).Str("establishment", id).Msg("cache establishment")
				return doc, nil
			}
		case errors.Is(err, domain.ErrNotFound):
		default:
			log.Warn().Err(err).Str("establishment", id).Msg("document store read failed, serving local cache")
		}
	}
	e, err := s.local.GetEstablishment(ctx, id)
	if err != nil {
		return domain.Establishment{}, err
	}
	return e, nil
}

// UserEstablishments lists the establishments a user has reviewed.
func (s *EstablishmentService) UserEstablishments(ctx context.Context, userID string) ([]domain.Establishment, domain.Source, error) {
	online := s.net.Online(ctx)
	return readThrough(ctx, "user_establishments", online,
		func(ctx context.Context) ([]domain.Establishment, error) {
			rs, err := s.docs.ListUserReviews(ctx, userID)
			if err != nil {
				return nil, err
			}
			ids := distinctEstablishments(rs)

			var (
				mu  sync.Mutex
				out = make([]domain.Establishment, 0, len(ids))
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(docPullLimit)
			for _, id := range ids {
				g.Go(func() error {
					e, err := s.docs.GetEstablishment(gctx, id)
					if errors.Is(err, domain.ErrNotFound) {
						return nil
					}
					if err != nil {
						return err
					}
					mu.Lock()
					out = append(out, e)
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			sortByID(out)

			rels := make([]domain.VisitedRelation, 0, len(out))
			for _, e := range out {
				rels = append(rels, domain.VisitedRelation{UserID: userID, EstablishmentID: e.ID})
			}
			if err := s.local.UpsertEstablishments(ctx, out); err != nil {
				return nil, err
			}
			if err := s.local.UpsertVisited(ctx, rels); err != nil {
				return nil, err
			}
			return out, nil
		},
		func(ctx context.Context) ([]domain.Establishment, error) {
			ids, err := s.local.VisitedEstablishmentIDs(ctx, userID)
			if err != nil {
				return nil, err
			}
			return s.local.EstablishmentsByIDs(ctx, ids)
		},
	)
}

func distinctEstablishments(rs []domain.Review) []string {
	seen := make(map[string]struct{}, len(rs))
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		if _, ok := seen[r.EstablishmentID]; ok {
			continue
		}
		seen[r.EstablishmentID] = struct{}{}
		ids = append(ids, r.EstablishmentID)
	}
	return ids
}
