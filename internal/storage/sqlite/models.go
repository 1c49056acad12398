package sqlite

import (
	"time"

	"docaria/internal/domain"
)

type userRow struct {
	UID         string `gorm:"primaryKey;column:uid"`
	Email       string
	Username    string
	CreatedAtMs int64
}

func (userRow) TableName() string { return "users" }

type establishmentRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Address      string
	City         *string
	Rating       *float64
	Lat          *float64
	Lon          *float64
	AvgRating    float64
	TotalReviews int64
	ImageURL     *string
}

func (establishmentRow) TableName() string { return "establishments" }

type reviewRow struct {
	ID              string `gorm:"primaryKey"`
	EstablishmentID string `gorm:"index"`
	UserID          string `gorm:"index"`
	Rating          int
	Docaria         string
	Comment         string
	ImageURL        *string
	AudioURL        *string
	TimestampMs     int64 `gorm:"index"`
	Synced          bool  `gorm:"index"`
}

func (reviewRow) TableName() string { return "reviews" }

type visitedRow struct {
	UserID          string `gorm:"primaryKey"`
	EstablishmentID string `gorm:"primaryKey"`
}

func (visitedRow) TableName() string { return "user_visited" }

func toEstablishmentRow(e domain.Establishment) establishmentRow {
	return establishmentRow{
		ID: e.ID, Name: e.Name, Address: e.Address, City: e.City, Rating: e.Rating,
		Lat: e.Lat, Lon: e.Lon, AvgRating: e.AvgRating, TotalReviews: e.TotalReviews, ImageURL: e.ImageURL,
	}
}

func (r establishmentRow) toDomain() domain.Establishment {
	return domain.Establishment{
		ID: r.ID, Name: r.Name, Address: r.Address, City: r.City, Rating: r.Rating,
		Lat: r.Lat, Lon: r.Lon, AvgRating: r.AvgRating, TotalReviews: r.TotalReviews, ImageURL: r.ImageURL,
	}
}

func toReviewRow(r domain.Review) reviewRow {
	return reviewRow{
		ID:              r.ID,
		EstablishmentID: r.EstablishmentID,
		UserID:          r.UserID,
		Rating:          r.Rating,
		Docaria:         r.Docaria,
		Comment:         r.Comment,
		ImageURL:        r.ImageRef,
		AudioURL:        r.AudioRef,
		TimestampMs:     r.CreatedAt.UnixMilli(),
		Synced:          r.Synced,
	}
}

func (r reviewRow) toDomain() domain.Review {
	return domain.Review{
		ID:              r.ID,
		EstablishmentID: r.EstablishmentID,
		UserID:          r.UserID,
		Rating:          r.Rating,
		Docaria:         r.Docaria,
		Comment:         r.Comment,
		ImageRef:        r.ImageURL,
		AudioRef:        r.AudioURL,
		CreatedAt:       time.UnixMilli(r.TimestampMs).UTC(),
		Synced:          r.Synced,
	}
}

func reviewsToDomain(rows []reviewRow) []domain.Review {
	out := make([]domain.Review, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

func establishmentsToDomain(rows []establishmentRow) []domain.Establishment {
	out := make([]domain.Establishment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
