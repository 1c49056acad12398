package domain

import (
	"context"
	"io"
)

// PlacesSource queries the third-party places API.
type PlacesSource interface {
	Nearby(ctx context.Context, q NearbyQuery) ([]Place, error)
}

// DocumentStore is the authoritative remote store. It is only consulted while online.
type DocumentStore interface {
	GetEstablishment(ctx context.Context, id string) (Establishment, error)
	// MergeEstablishment upserts descriptive fields and leaves avgRating/totalReviews alone.
	MergeEstablishment(ctx context.Context, e Establishment) error
	// CommitReview writes the review and folds its rating into the parent aggregate
	// in one transaction. Re-committing an existing id only refreshes its media and
	// fails with ErrConflict when the id belongs to another user or establishment.
	CommitReview(ctx context.Context, r Review) error
	ListEstablishmentReviews(ctx context.Context, establishmentID string) ([]Review, error)
	ListUserReviews(ctx context.Context, userID string) ([]Review, error)
	// LastUserReview returns nil, nil when the user never reviewed the establishment.
	LastUserReview(ctx context.Context, userID, establishmentID string) (*Review, error)
	GetUser(ctx context.Context, id string) (User, error)
	PutUser(ctx context.Context, u User) error
}

// BlobStore keeps review media and returns a durable reference for each object.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// LocalCache is the non-authoritative on-device mirror. Writes are upserts by primary key.
type LocalCache interface {
	UpsertEstablishments(ctx context.Context, es []Establishment) error
	GetEstablishment(ctx context.Context, id string) (Establishment, error)
	ListEstablishments(ctx context.Context) ([]Establishment, error)
	EstablishmentsByIDs(ctx context.Context, ids []string) ([]Establishment, error)

	UpsertReviews(ctx context.Context, rs []Review) error
	GetReview(ctx context.Context, id string) (Review, error)
	ReviewsByEstablishment(ctx context.Context, establishmentID string) ([]Review, error)
	ReviewsByUser(ctx context.Context, userID string) ([]Review, error)
	PendingReviews(ctx context.Context) ([]Review, error)
	LastUserReview(ctx context.Context, userID, establishmentID string) (*Review, error)
	// ReplaceSyncedUserReviews swaps the user's synced rows for rs; pending rows survive.
	ReplaceSyncedUserReviews(ctx context.Context, userID string, rs []Review) error
	DeleteReview(ctx context.Context, id string) error
	DeleteAllReviews(ctx context.Context) error

	UpsertVisited(ctx context.Context, rels []VisitedRelation) error
	VisitedEstablishmentIDs(ctx context.Context, userID string) ([]string, error)

	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
}

// Connectivity reports network reachability. Query it once per logical operation.
type Connectivity interface {
	Online(ctx context.Context) bool
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Source tells callers where a read was answered from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

type RatingType string

const (
	RatingExternal RatingType = "external"
	RatingLocal    RatingType = "local"
)
