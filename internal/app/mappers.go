package app

import (
	"strings"

	"docaria/internal/domain"
)

// establishmentFromPlace maps a nearby-search candidate. Aggregates start at
// zero; callers overlay what the document store holds.
func establishmentFromPlace(p domain.Place) domain.Establishment {
	lat, lon := p.Location.Lat, p.Location.Lon
	return domain.Establishment{
		ID:       p.PlaceID,
		Name:     strings.TrimSpace(p.Name),
		Address:  strings.TrimSpace(p.Vicinity),
		City:     cityFromVicinity(p.Vicinity),
		Rating:   p.Rating,
		Lat:      &lat,
		Lon:      &lon,
		ImageURL: p.PhotoURL,
	}
}

// withAggregates copies the document store's running aggregate onto e.
func withAggregates(e domain.Establishment, doc domain.Establishment) domain.Establishment {
	e.AvgRating = doc.AvgRating
	e.TotalReviews = doc.TotalReviews
	if e.City == nil {
		e.City = doc.City
	}
	return e
}

// cityFromVicinity takes the last comma separated part of a vicinity string
// ("12 Main St, Pittsburgh" -> "Pittsburgh").
func cityFromVicinity(v string) *string {
	i := strings.LastIndex(v, ",")
	if i < 0 {
		return nil
	}
	return ptrStr(strings.TrimSpace(v[i+1:]))
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefF(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
