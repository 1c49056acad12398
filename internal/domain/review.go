package domain

import (
	"strings"
	"time"
)

type Review struct {
	ID              string
	EstablishmentID string
	UserID          string
	Rating          int // 1..5, bounded by clients only
	Docaria         string
	Comment         string
	ImageRef        *string // local path before sync, durable URL after
	AudioRef        *string
	CreatedAt       time.Time
	Synced          bool
}

// Pending reports whether the review still has to reach the document store.
func (r Review) Pending() bool { return !r.Synced }

// IsRemoteRef reports whether a media reference already points at durable storage.
func IsRemoteRef(ref string) bool {
	l := strings.ToLower(ref)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// DocariaStats aggregates ratings of one category tag at one establishment.
type DocariaStats struct {
	Name              string
	TotalRating       int
	Count             int
	EstablishmentID   string
	EstablishmentName string
}

func (d DocariaStats) Avg() float64 {
	if d.Count == 0 {
		return 0
	}
	return float64(d.TotalRating) / float64(d.Count)
}

type User struct {
	ID        string
	Email     string
	Username  string
	CreatedAt time.Time
}

// FoldRating folds one new rating into a running aggregate:
// newAvg = (avg*count + rating) / (count+1).
func FoldRating(avg float64, count int64, rating int) (float64, int64) {
	next := count + 1
	return (avg*float64(count) + float64(rating)) / float64(next), next
}
