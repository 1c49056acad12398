package domain

type Establishment struct {
	ID           string // places id; join key across places API, document store and cache
	Name         string
	Address      string
	City         *string
	Rating       *float64 // external (places API) rating
	Lat, Lon     *float64
	AvgRating    float64
	TotalReviews int64
	ImageURL     *string
}

// Coords returns the establishment position, or nil when either axis is unknown.
func (e Establishment) Coords() *Coords {
	if e.Lat == nil || e.Lon == nil {
		return nil
	}
	return &Coords{Lat: *e.Lat, Lon: *e.Lon}
}

type Coords struct{ Lat, Lon float64 }

// Place is a nearby-search candidate as returned by the places API.
type Place struct {
	PlaceID      string
	Name         string
	Vicinity     string
	Rating       *float64
	RatingsTotal *int
	PhotoURL     *string // resolved photo link, nil when the place has no photo
	Location     Coords
}

type NearbyQuery struct {
	Center Coords
	Radius int
	Type   string
}

type VisitedRelation struct {
	UserID          string
	EstablishmentID string
}
