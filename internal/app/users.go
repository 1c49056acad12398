package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docaria/internal/domain"
)

type UserService struct {
	docs  domain.DocumentStore
	local domain.LocalCache
	net   domain.Connectivity
	now   func() time.Time
}

func NewUserService(d domain.DocumentStore, l domain.LocalCache, n domain.Connectivity) *UserService {
	return &UserService{docs: d, local: l, net: n, now: time.Now}
}

// Profile reads users/{id}, mirroring it locally when online.
func (s *UserService) Profile(ctx context.Context, id string) (domain.User, domain.Source, error) {
	online := s.net.Online(ctx)
	return readThrough(ctx, "profile", online,
		func(ctx context.Context) (domain.User, error) {
			u, err := s.docs.GetUser(ctx, id)
			if err != nil {
				return domain.User{}, err
			}
			if err := s.local.UpsertUser(ctx, u); err != nil {
				return domain.User{}, fmt.Errorf("cache user: %w", err)
			}
			return u, nil
		},
		func(ctx context.Context) (domain.User, error) { return s.local.GetUser(ctx, id) },
	)
}

// Register creates or updates a profile. It needs the document store.
func (s *UserService) Register(ctx context.Context, u domain.User) (domain.User, error) {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return domain.User{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	if !s.net.Online(ctx) {
		return domain.User{}, domain.ErrOffline
	}
	if err := s.docs.PutUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("register user %s: %w", u.ID, err)
	}
	if err := s.local.UpsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("cache user: %w", err)
	}
	return u, nil
}
