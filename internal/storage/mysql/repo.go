// Package mysql is the authoritative document store: establishments, their
// review sub-collection and user profiles.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"docaria/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
func nullF64(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) MergeEstablishment(ctx context.Context, e domain.Establishment) error {
	_, err := s.db.ExecContext(ctx, mergeEstablishmentSQL,
		e.ID,
		e.Name,
		e.Address,
		valStr(e.City),
		valF64(e.Rating),
		valF64(e.Lat),
		valF64(e.Lon),
		valStr(e.ImageURL),
	)
	if err != nil {
		return fmt.Errorf("merge establishment %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) GetEstablishment(ctx context.Context, id string) (domain.Establishment, error) {
	var (
		e           domain.Establishment
		city, image sql.NullString
		rating      sql.NullFloat64
		lat, lon    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, getEstablishmentSQL, id).Scan(
		&e.ID, &e.Name, &e.Address, &city, &rating, &lat, &lon, &image, &e.AvgRating, &e.TotalReviews,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Establishment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Establishment{}, fmt.Errorf("get establishment %s: %w", id, err)
	}
	e.City = nullStr(city)
	e.Rating = nullF64(rating)
	e.Lat = nullF64(lat)
	e.Lon = nullF64(lon)
	e.ImageURL = nullStr(image)
	return e, nil
}

// CommitReview writes establishments/{estId}/reviews/{id} and folds the rating
// into the parent's aggregate inside one transaction. The parent row is locked
// before it is read, so concurrent commits cannot lose an update. Committing an
// id that already exists only refreshes its media references, and fails with
// ErrConflict when that id belongs to another user or establishment.
func (s *Store) CommitReview(ctx context.Context, r domain.Review) (err error) {
	if r.ID == "" {
		return fmt.Errorf("commit review: %w: empty id", domain.ErrInvalidArgument)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warn().Err(rbErr).Str("review", r.ID).Msg("rollback failed")
			}
		}
	}()

	var (
		avg   float64
		count int64
	)
	if err = tx.QueryRowContext(ctx, lockAggregateSQL, r.EstablishmentID).Scan(&avg, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("establishment %s: %w", r.EstablishmentID, domain.ErrNotFound)
			return err
		}
		return fmt.Errorf("lock aggregate %s: %w", r.EstablishmentID, err)
	}

	var ownerUser, ownerEst string
	err = tx.QueryRowContext(ctx, reviewOwnerSQL, r.ID).Scan(&ownerUser, &ownerEst)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return fmt.Errorf("check review %s: %w", r.ID, err)
	case ownerUser != r.UserID || ownerEst != r.EstablishmentID:
		return fmt.Errorf("review %s: %w", r.ID, domain.ErrConflict)
	default:
		if _, err = tx.ExecContext(ctx, refreshReviewMediaSQL, valStr(r.ImageRef), valStr(r.AudioRef), r.ID); err != nil {
			return fmt.Errorf("refresh review %s: %w", r.ID, err)
		}
		log.Debug().Str("review", r.ID).Msg("review already committed; aggregate untouched")
		return tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, insertReviewSQL,
		r.ID,
		r.EstablishmentID,
		r.UserID,
		r.Rating,
		r.Docaria,
		r.Comment,
		valStr(r.ImageRef),
		valStr(r.AudioRef),
		r.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert review %s: %w", r.ID, err)
	}

	newAvg, newCount := domain.FoldRating(avg, count, r.Rating)
	if _, err = tx.ExecContext(ctx, updateAggregateSQL, newAvg, newCount, r.EstablishmentID); err != nil {
		return fmt.Errorf("update aggregate %s: %w", r.EstablishmentID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit review %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) ListEstablishmentReviews(ctx context.Context, establishmentID string) ([]domain.Review, error) {
	return s.queryReviews(ctx, listEstablishmentReviewsSQL, establishmentID)
}

func (s *Store) ListUserReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	return s.queryReviews(ctx, listUserReviewsSQL, userID)
}

func (s *Store) LastUserReview(ctx context.Context, userID, establishmentID string) (*domain.Review, error) {
	rs, err := s.queryReviews(ctx, lastUserReviewSQL, establishmentID, userID)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

func (s *Store) queryReviews(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		var (
			rv           domain.Review
			image, audio sql.NullString
			tsMs         int64
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.EstablishmentID,
			&rv.UserID,
			&rv.Rating,
			&rv.Docaria,
			&rv.Comment,
			&image,
			&audio,
			&tsMs,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.ImageRef = nullStr(image)
		rv.AudioRef = nullStr(audio)
		rv.CreatedAt = time.UnixMilli(tsMs).UTC()
		rv.Synced = true // anything read from the document store is canonical
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var (
		u    domain.User
		ctMs int64
	)
	err := s.db.QueryRowContext(ctx, getUserSQL, id).Scan(&u.ID, &u.Email, &u.Username, &ctMs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	u.CreatedAt = time.UnixMilli(ctMs).UTC()
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u domain.User) error {
	if _, err := s.db.ExecContext(ctx, putUserSQL, u.ID, u.Email, u.Username, u.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}
