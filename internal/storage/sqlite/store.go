// Package sqlite is the on-device relational cache mirroring establishments,
// reviews, users and visited relations.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"docaria/internal/domain"
)

type Store struct{ db *gorm.DB }

// Open opens (or creates) the cache database at path and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache %s: %w", path, err)
	}
	if err := db.AutoMigrate(&userRow{}, &establishmentRow{}, &reviewRow{}, &visitedRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite cache: %w", err)
	}
	log.Info().Str("path", path).Msg("local cache ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// upsert is INSERT ... ON CONFLICT DO UPDATE of every column: last write wins.
func (s *Store) upsert(ctx context.Context, v any) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error
}

// ---- establishments ----

func (s *Store) UpsertEstablishments(ctx context.Context, es []domain.Establishment) error {
	if len(es) == 0 {
		return nil
	}
	rows := make([]establishmentRow, 0, len(es))
	for _, e := range es {
		rows = append(rows, toEstablishmentRow(e))
	}
	return s.upsert(ctx, &rows)
}

func (s *Store) GetEstablishment(ctx context.Context, id string) (domain.Establishment, error) {
	var row establishmentRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Establishment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Establishment{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListEstablishments(ctx context.Context) ([]domain.Establishment, error) {
	var rows []establishmentRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return establishmentsToDomain(rows), nil
}

func (s *Store) EstablishmentsByIDs(ctx context.Context, ids []string) ([]domain.Establishment, error) {
	if len(ids) == 0 {
		return []domain.Establishment{}, nil
	}
	var rows []establishmentRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return establishmentsToDomain(rows), nil
}

// ---- reviews ----

func (s *Store) UpsertReviews(ctx context.Context, rs []domain.Review) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([]reviewRow, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, toReviewRow(r))
	}
	return s.upsert(ctx, &rows)
}

func (s *Store) GetReview(ctx context.Context, id string) (domain.Review, error) {
	var row reviewRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ReviewsByEstablishment(ctx context.Context, establishmentID string) ([]domain.Review, error) {
	var rows []reviewRow
	err := s.db.WithContext(ctx).
		Where("establishment_id = ?", establishmentID).
		Order("timestamp_ms DESC, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return reviewsToDomain(rows), nil
}

func (s *Store) ReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	var rows []reviewRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp_ms DESC, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return reviewsToDomain(rows), nil
}

func (s *Store) PendingReviews(ctx context.Context) ([]domain.Review, error) {
	var rows []reviewRow
	err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("timestamp_ms, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return reviewsToDomain(rows), nil
}

func (s *Store) LastUserReview(ctx context.Context, userID, establishmentID string) (*domain.Review, error) {
	var row reviewRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND establishment_id = ?", userID, establishmentID).
		Order("timestamp_ms DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := row.toDomain()
	return &r, nil
}

func (s *Store) ReplaceSyncedUserReviews(ctx context.Context, userID string, rs []domain.Review) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND synced = ?", userID, true).Delete(&reviewRow{}).Error; err != nil {
			return err
		}
		if len(rs) == 0 {
			return nil
		}
		rows := make([]reviewRow, 0, len(rs))
		for _, r := range rs {
			rows = append(rows, toReviewRow(r))
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	})
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&reviewRow{}).Error
}

func (s *Store) DeleteAllReviews(ctx context.Context) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&reviewRow{}).Error
}

// ---- visited relations ----

func (s *Store) UpsertVisited(ctx context.Context, rels []domain.VisitedRelation) error {
	if len(rels) == 0 {
		return nil
	}
	rows := make([]visitedRow, 0, len(rels))
	for _, r := range rels {
		rows = append(rows, visitedRow{UserID: r.UserID, EstablishmentID: r.EstablishmentID})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *Store) VisitedEstablishmentIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&visitedRow{}).
		Where("user_id = ?", userID).
		Order("establishment_id").
		Pluck("establishment_id", &ids).Error
	return ids, err
}

// ---- users ----

func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	row := userRow{UID: u.ID, Email: u.Email, Username: u.Username, CreatedAtMs: u.CreatedAt.UnixMilli()}
	return s.upsert(ctx, &row)
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("uid = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:        row.UID,
		Email:     row.Email,
		Username:  row.Username,
		CreatedAt: time.UnixMilli(row.CreatedAtMs).UTC(),
	}, nil
}
