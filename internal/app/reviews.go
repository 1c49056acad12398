package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"docaria/internal/adapters/observability"
	"docaria/internal/domain"
)

// SubmitResult says how far a submission got.
type SubmitResult string

const (
	// SubmitQueued: saved locally while offline, waiting for a sweep.
	SubmitQueued SubmitResult = "queued"
	// SubmitSynced: committed to the document store.
	SubmitSynced SubmitResult = "synced"
	// SubmitPending: online, but upload or commit failed; kept for the next sweep.
	SubmitPending SubmitResult = "pending"
)

// maxReviewIDLen matches the id column of the document store.
const maxReviewIDLen = 64

type SyncReport struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

type ReviewService struct {
	docs    domain.DocumentStore
	blobs   domain.BlobStore
	local   domain.LocalCache
	net     domain.Connectivity
	workers int64
	// mediaRoot confines local media references; empty rejects them all.
	mediaRoot string

	now   func() time.Time
	newID func() string
	open  func(path string) (io.ReadCloser, error)
}

func NewReviewService(d domain.DocumentStore, b domain.BlobStore, l domain.LocalCache, n domain.Connectivity, workers int) *ReviewService {
	if workers <= 0 {
		workers = 4
	}
	s := &ReviewService{
		docs:    d,
		blobs:   b,
		local:   l,
		net:     n,
		workers: int64(workers),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	s.open = func(p string) (io.ReadCloser, error) { return openMedia(s.mediaRoot, p) }
	return s
}

// WithMediaRoot sets the directory local media references must live in.
func (s *ReviewService) WithMediaRoot(root string) *ReviewService {
	s.mediaRoot = root
	return s
}

// WithMediaOpener replaces how local media paths are opened for upload.
func (s *ReviewService) WithMediaOpener(open func(path string) (io.ReadCloser, error)) *ReviewService {
	s.open = open
	return s
}

// Submit stores r locally as pending and, when online, pushes it right away.
// Failing to push is not an error: the review stays pending. A caller-chosen id
// already owned by another user or establishment fails with ErrConflict, and
// resubmitting an id that is already synced returns the stored review.
func (s *ReviewService) Submit(ctx context.Context, r domain.Review) (domain.Review, SubmitResult, error) {
	if r.EstablishmentID == "" || r.UserID == "" {
		return domain.Review{}, "", fmt.Errorf("%w: establishment and user are required", domain.ErrInvalidArgument)
	}
	if len(r.ID) > maxReviewIDLen {
		return domain.Review{}, "", fmt.Errorf("%w: review id longer than %d", domain.ErrInvalidArgument, maxReviewIDLen)
	}
	if err := s.resolveMedia(&r); err != nil {
		return domain.Review{}, "", err
	}
	if r.ID == "" {
		r.ID = s.newID()
	} else {
		cur, err := s.local.GetReview(ctx, r.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return domain.Review{}, "", fmt.Errorf("look up review %s: %w", r.ID, err)
		case cur.UserID != r.UserID || cur.EstablishmentID != r.EstablishmentID:
			return domain.Review{}, "", fmt.Errorf("review %s: %w", r.ID, domain.ErrConflict)
		case !cur.Pending():
			return cur, SubmitSynced, nil
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	r.Synced = false
	if err := s.local.UpsertReviews(ctx, []domain.Review{r}); err != nil {
		return domain.Review{}, "", fmt.Errorf("persist review locally: %w", err)
	}

	if !s.net.Online(ctx) {
		observability.ObserveSync(string(SubmitQueued))
		log.Info().Str("review", r.ID).Msg("offline, review queued")
		return r, SubmitQueued, nil
	}

	synced, err := s.push(ctx, r)
	if errors.Is(err, domain.ErrConflict) {
		s.dropConflicting(ctx, r.ID)
		return domain.Review{}, "", err
	}
	if err != nil {
		observability.ObserveSync(string(SubmitPending))
		log.Warn().Err(err).Str("review", r.ID).Msg("push failed, review left pending")
		return r, SubmitPending, nil
	}
	observability.ObserveSync(string(SubmitSynced))
	return synced, SubmitSynced, nil
}

// resolveMedia confines local media references to the media root and rewrites
// them to the resolved path.
func (s *ReviewService) resolveMedia(r *domain.Review) error {
	for _, ref := range []*string{r.ImageRef, r.AudioRef} {
		if ref == nil || domain.IsRemoteRef(*ref) {
			continue
		}
		p, err := MediaPath(s.mediaRoot, *ref)
		if err != nil {
			return err
		}
		*ref = p
	}
	return nil
}

// dropConflicting removes a local row whose id the document store assigns to
// someone else; it could never sync.
func (s *ReviewService) dropConflicting(ctx context.Context, id string) {
	observability.ObserveSync("conflict")
	log.Warn().Str("review", id).Msg("review id owned by another review, dropping local row")
	if err := s.local.DeleteReview(ctx, id); err != nil {
		log.Error().Err(err).Str("review", id).Msg("drop conflicting review")
	}
}

// push uploads local media, commits the review with its aggregate update and
// re-persists the row as synced. On any error the local row is not touched.
func (s *ReviewService) push(ctx context.Context, r domain.Review) (domain.Review, error) {
	out := r
	if r.ImageRef != nil && !domain.IsRemoteRef(*r.ImageRef) {
		u, err := s.upload(ctx, r.UserID, *r.ImageRef, mediaImage)
		if err != nil {
			return r, err
		}
		out.ImageRef = &u
	}
	if r.AudioRef != nil && !domain.IsRemoteRef(*r.AudioRef) {
		u, err := s.upload(ctx, r.UserID, *r.AudioRef, mediaAudio)
		if err != nil {
			return r, err
		}
		out.AudioRef = &u
	}

	out.Synced = true
	if err := s.docs.CommitReview(ctx, out); err != nil {
		return r, fmt.Errorf("commit review %s: %w", r.ID, err)
	}
	if err := s.local.UpsertReviews(ctx, []domain.Review{out}); err != nil {
		return r, fmt.Errorf("mark review %s synced: %w", r.ID, err)
	}
	if err := s.local.UpsertVisited(ctx, []domain.VisitedRelation{{UserID: r.UserID, EstablishmentID: r.EstablishmentID}}); err != nil {
		log.Warn().Err(err).Str("review", r.ID).Msg("record visited establishment")
	}
	return out, nil
}

type mediaKind int

const (
	mediaImage mediaKind = iota
	mediaAudio
)

// mediaObject picks the object extension and content type for a local file.
// Images are always stored as jpg; audio keeps 3gp when recorded that way.
func mediaObject(kind mediaKind, path string) (ext, contentType string) {
	if kind == mediaImage {
		return ".jpg", "image/jpeg"
	}
	if strings.EqualFold(filepath.Ext(path), ".3gp") {
		return ".3gp", "audio/3gpp"
	}
	return ".m4a", "audio/mp4"
}

func (s *ReviewService) upload(ctx context.Context, userID, ref string, kind mediaKind) (string, error) {
	path, err := MediaPath(s.mediaRoot, ref)
	if err != nil {
		return "", err
	}
	f, err := s.open(path)
	if err != nil {
		return "", fmt.Errorf("open media %s: %w", path, err)
	}
	defer f.Close()

	ext, ct := mediaObject(kind, path)
	key := fmt.Sprintf("reviews/%s/%s%s", userID, uuid.NewString(), ext)
	u, err := s.blobs.Put(ctx, key, f, ct)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return u, nil
}

// SyncPending pushes every pending review. Each review is independent: one
// failure never stops the others.
func (s *ReviewService) SyncPending(ctx context.Context) (SyncReport, error) {
	if !s.net.Online(ctx) {
		log.Debug().Msg("offline, sync skipped")
		return SyncReport{}, nil
	}
	pending, err := s.local.PendingReviews(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("list pending reviews: %w", err)
	}

	var (
		synced, failed atomic.Int64
		wg             sync.WaitGroup
		sem            = semaphore.NewWeighted(s.workers)
		attempted      int
	)
	for _, r := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		attempted++
		wg.Add(1)
		go func(r domain.Review) {
			defer wg.Done()
			defer sem.Release(1)
			if _, err := s.push(ctx, r); err != nil {
				failed.Add(1)
				if errors.Is(err, domain.ErrConflict) {
					s.dropConflicting(ctx, r.ID)
					return
				}
				observability.ObserveSync("failed")
				log.Warn().Err(err).Str("review", r.ID).Msg("sync review")
				return
			}
			synced.Add(1)
			observability.ObserveSync(string(SubmitSynced))
		}(r)
	}
	wg.Wait()

	rep := SyncReport{Attempted: attempted, Synced: int(synced.Load()), Failed: int(failed.Load())}
	log.Info().Int("attempted", rep.Attempted).Int("synced", rep.Synced).Int("failed", rep.Failed).Msg("sync sweep done")
	return rep, ctx.Err()
}

// EstablishmentReviews lists the reviews of one establishment.
func (s *ReviewService) EstablishmentReviews(ctx context.Context, establishmentID string) ([]domain.Review, domain.Source, error) {
	online := s.net.Online(ctx)
	return readThrough(ctx, "establishment_reviews", online,
		func(ctx context.Context) ([]domain.Review, error) {
			return s.refreshEstablishmentReviews(ctx, establishmentID)
		},
		func(ctx context.Context) ([]domain.Review, error) {
			return s.local.ReviewsByEstablishment(ctx, establishmentID)
		},
	)
}

func (s *ReviewService) refreshEstablishmentReviews(ctx context.Context, establishmentID string) ([]domain.Review, error) {
	rs, err := s.docs.ListEstablishmentReviews(ctx, establishmentID)
	if err != nil {
		return nil, err
	}
	for i := range rs {
		rs[i].Synced = true
	}
	if err := s.local.UpsertReviews(ctx, rs); err != nil {
		return nil, fmt.Errorf("cache reviews: %w", err)
	}
	return rs, nil
}

// UserReviews refreshes the user's synced reviews when online and answers from
// the local cache, newest first. Pending rows are always part of the answer.
func (s *ReviewService) UserReviews(ctx context.Context, userID string) ([]domain.Review, domain.Source, error) {
	src := domain.SourceCache
	if s.net.Online(ctx) {
		rs, err := s.docs.ListUserReviews(ctx, userID)
		if err == nil {
			for i := range rs {
				rs[i].Synced = true
			}
			err = s.local.ReplaceSyncedUserReviews(ctx, userID, rs)
		}
		if err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("refresh user reviews")
			observability.ObserveRead("user_reviews", "fallback")
		} else {
			src = domain.SourceRemote
			observability.ObserveRead("user_reviews", string(domain.SourceRemote))
		}
	}
	rs, err := s.local.ReviewsByUser(ctx, userID)
	if err != nil {
		return nil, src, err
	}
	return rs, src, nil
}

// LastUserReview returns the user's newest review of an establishment, or nil.
func (s *ReviewService) LastUserReview(ctx context.Context, userID, establishmentID string) (*domain.Review, error) {
	return s.lastUserReview(ctx, s.net.Online(ctx), userID, establishmentID)
}

func (s *ReviewService) lastUserReview(ctx context.Context, online bool, userID, establishmentID string) (*domain.Review, error) {
	local, err := s.local.LastUserReview(ctx, userID, establishmentID)
	if err != nil {
		return nil, err
	}
	if !online {
		return local, nil
	}
	remote, err := s.docs.LastUserReview(ctx, userID, establishmentID)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Str("establishment", establishmentID).Msg("last review lookup failed, using local cache")
		return local, nil
	}
	// a pending local row can be newer than anything committed
	if remote == nil || (local != nil && local.CreatedAt.After(remote.CreatedAt)) {
		return local, nil
	}
	remote.Synced = true
	return remote, nil
}

// ClearLocal drops every cached review. Used on sign-out.
func (s *ReviewService) ClearLocal(ctx context.Context) error {
	if err := s.local.DeleteAllReviews(ctx); err != nil {
		return fmt.Errorf("clear local reviews: %w", err)
	}
	log.Info().Msg("local reviews cleared")
	return nil
}
