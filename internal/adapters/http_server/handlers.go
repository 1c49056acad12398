package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"docaria/internal/app"
	"docaria/internal/domain"
)

type Establishments interface {
	Nearby(ctx context.Context, c domain.Coords) ([]domain.Establishment, domain.Source, error)
	Get(ctx context.Context, id string) (domain.Establishment, error)
	UserEstablishments(ctx context.Context, userID string) ([]domain.Establishment, domain.Source, error)
}

type Reviews interface {
	Submit(ctx context.Context, r domain.Review) (domain.Review, app.SubmitResult, error)
	SyncPending(ctx context.Context) (app.SyncReport, error)
	EstablishmentReviews(ctx context.Context, establishmentID string) ([]domain.Review, domain.Source, error)
	UserReviews(ctx context.Context, userID string) ([]domain.Review, domain.Source, error)
	ClearLocal(ctx context.Context) error
}

type Rankings interface {
	Leaderboard(ctx context.Context, c domain.Coords, by domain.RatingType) ([]domain.Establishment, domain.Source, error)
	TopDocarias(ctx context.Context) ([]domain.DocariaStats, error)
}

type Gate interface {
	Check(ctx context.Context, userID, establishmentID string, at *domain.Coords) (app.GateDecision, error)
}

type Users interface {
	Profile(ctx context.Context, id string) (domain.User, domain.Source, error)
	Register(ctx context.Context, u domain.User) (domain.User, error)
}

type Handlers struct {
	Est     Establishments
	Reviews Reviews
	Ranking Rankings
	Gate    Gate
	Users   Users
	// Default is used when a location query omits lat/lon.
	Default domain.Coords
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/establishments/nearby", h.nearby)
		r.Get("/establishments/{id}", h.getEstablishment)
		r.Get("/establishments/{id}/reviews", h.establishmentReviews)
		r.Post("/establishments/{id}/reviews", h.submitReview)
		r.Get("/establishments/{id}/eligibility", h.eligibility)

		r.Get("/leaderboard", h.leaderboard)
		r.Get("/rankings/docarias", h.topDocarias)

		r.Post("/users", h.register)
		r.Get("/users/{id}", h.profile)
		r.Get("/users/{id}/reviews", h.userReviews)
		r.Get("/users/{id}/establishments", h.userEstablishments)

		r.Post("/sync", h.sync)
		r.Delete("/session", h.clearSession)
	})
}

// ---- wire types ----

type establishmentDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	City         *string  `json:"city,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	AvgRating    float64  `json:"avg_rating"`
	TotalReviews int64    `json:"total_reviews"`
	ImageURL     *string  `json:"image_url,omitempty"`
}

func toEstablishmentDTO(e domain.Establishment) establishmentDTO {
	return establishmentDTO{
		ID: e.ID, Name: e.Name, Address: e.Address, City: e.City, Rating: e.Rating,
		Lat: e.Lat, Lon: e.Lon, AvgRating: e.AvgRating, TotalReviews: e.TotalReviews, ImageURL: e.ImageURL,
	}
}

func toEstablishmentDTOs(es []domain.Establishment) []establishmentDTO {
	out := make([]establishmentDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toEstablishmentDTO(e))
	}
	return out
}

type reviewDTO struct {
	ID              string    `json:"id"`
	EstablishmentID string    `json:"establishment_id"`
	UserID          string    `json:"user_id"`
	Rating          int       `json:"rating"`
	Docaria         string    `json:"docaria"`
	Comment         string    `json:"comment"`
	ImageURL        *string   `json:"image_url,omitempty"`
	AudioURL        *string   `json:"audio_url,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Synced          bool      `json:"synced"`
}

func toReviewDTOs(rs []domain.Review) []reviewDTO {
	out := make([]reviewDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReviewDTO(r))
	}
	return out
}

func toReviewDTO(r domain.Review) reviewDTO {
	return reviewDTO{
		ID: r.ID, EstablishmentID: r.EstablishmentID, UserID: r.UserID, Rating: r.Rating,
		Docaria: r.Docaria, Comment: r.Comment, ImageURL: r.ImageRef, AudioURL: r.AudioRef,
		Timestamp: r.CreatedAt, Synced: r.Synced,
	}
}

type userDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserDTO(u domain.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, Username: u.Username, CreatedAt: u.CreatedAt}
}

type listResponse[T any] struct {
	Source domain.Source `json:"source"`
	Items  []T           `json:"items"`
}

type docariaDTO struct {
	Name              string  `json:"name"`
	AvgRating         float64 `json:"avg_rating"`
	Count             int     `json:"count"`
	EstablishmentID   string  `json:"establishment_id"`
	EstablishmentName string  `json:"establishment_name"`
}

type submitRequest struct {
	ID       string   `json:"id,omitempty"`
	Rating   int      `json:"rating"`
	Docaria  string   `json:"docaria"`
	Comment  string   `json:"comment"`
	ImageRef *string  `json:"image_ref,omitempty"`
	AudioRef *string  `json:"audio_ref,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

type submitResponse struct {
	Result app.SubmitResult `json:"result"`
	Review reviewDTO        `json:"review"`
}

// ---- helpers ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain sentinels onto problem documents.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrOffline):
		writeProblem(w, http.StatusServiceUnavailable, "Offline", "document store unreachable")
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v with a weak ETag, answering 304 when the client has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func writeValue(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, body)
}

// coordsFrom parses lat/lon query parameters. Both absent yields (nil, nil).
func coordsFrom(r *http.Request) (*domain.Coords, error) {
	q := r.URL.Query()
	latS, lonS := q.Get("lat"), q.Get("lon")
	if latS == "" && lonS == "" {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(latS, 64)
	lon, err2 := strconv.ParseFloat(lonS, 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, errors.New("lat and lon must be valid coordinates")
	}
	return &domain.Coords{Lat: lat, Lon: lon}, nil
}

func (h *Handlers) locationOrDefault(w http.ResponseWriter, r *http.Request) (domain.Coords, bool) {
	c, err := coordsFrom(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid location", err.Error())
		return domain.Coords{}, false
	}
	if c == nil {
		return h.Default, true
	}
	return *c, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := UserID(r.Context())
	if uid == "" {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "X-User-ID header is required")
		return "", false
	}
	return uid, true
}

// ---- establishments ----

func (h *Handlers) nearby(w http.ResponseWriter, r *http.Request) {
	c, ok := h.locationOrDefault(w, r)
	if !ok {
		return
	}
	es, src, err := h.Est.Nearby(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, listResponse[establishmentDTO]{Source: src, Items: toEstablishmentDTOs(es)})
}

func (h *Handlers) getEstablishment(w http.ResponseWriter, r *http.Request) {
	e, err := h.Est.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, toEstablishmentDTO(e))
}

func (h *Handlers) establishmentReviews(w http.ResponseWriter, r *http.Request) {
	rs, src, err := h.Reviews.EstablishmentReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, listResponse[reviewDTO]{Source: src, Items: toReviewDTOs(rs)})
}

// submitReview re-checks the proximity gate when the body carries the
// caller's position; otherwise the client's earlier check stands.
func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeProblem(w, http.StatusBadRequest, "Invalid rating", "rating must be between 1 and 5")
		return
	}
	// client-chosen ids make offline retries idempotent; they must be UUIDs
	if req.ID != "" {
		if _, err := uuid.Parse(req.ID); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid id", "id must be a UUID")
			return
		}
	}
	estID := chi.URLParam(r, "id")

	if req.Lat != nil && req.Lon != nil {
		d, err := h.Gate.Check(r.Context(), uid, estID, &domain.Coords{Lat: *req.Lat, Lon: *req.Lon})
		if err != nil {
			writeError(w, err)
			return
		}
		if !d.Allowed {
			writeProblem(w, http.StatusForbidden, "Review not allowed", d.Reason)
			return
		}
	}

	rv, res, err := h.Reviews.Submit(r.Context(), domain.Review{
		ID:              req.ID,
		EstablishmentID: estID,
		UserID:          uid,
		Rating:          req.Rating,
		Docaria:         req.Docaria,
		Comment:         req.Comment,
		ImageRef:        req.ImageRef,
		AudioRef:        req.AudioRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if res == app.SubmitSynced {
		status = http.StatusCreated
	}
	writeValue(w, status, submitResponse{Result: res, Review: toReviewDTO(rv)})
}

func (h *Handlers) eligibility(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	c, err := coordsFrom(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid location", err.Error())
		return
	}
	d, err := h.Gate.Check(r.Context(), uid, chi.URLParam(r, "id"), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusOK, d)
}

// ---- rankings ----

func (h *Handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	c, ok := h.locationOrDefault(w, r)
	if !ok {
		return
	}
	by := domain.RatingType(r.URL.Query().Get("by"))
	if by == "" {
		by = domain.RatingLocal
	}
	es, src, err := h.Ranking.Leaderboard(r.Context(), c, by)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, listResponse[establishmentDTO]{Source: src, Items: toEstablishmentDTOs(es)})
}

func (h *Handlers) topDocarias(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Ranking.TopDocarias(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]docariaDTO, 0, len(stats))
	for _, s := range stats {
		out = append(out, docariaDTO{
			Name: s.Name, AvgRating: s.Avg(), Count: s.Count,
			EstablishmentID: s.EstablishmentID, EstablishmentName: s.EstablishmentName,
		})
	}
	writeCached(w, r, out)
}

// ---- users ----

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var in userDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if in.ID == "" {
		in.ID = UserID(r.Context())
	}
	u, err := h.Users.Register(r.Context(), domain.User{ID: in.ID, Email: in.Email, Username: in.Username})
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handlers) profile(w http.ResponseWriter, r *http.Request) {
	u, _, err := h.Users.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, toUserDTO(u))
}

func (h *Handlers) userReviews(w http.ResponseWriter, r *http.Request) {
	rs, src, err := h.Reviews.UserReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, listResponse[reviewDTO]{Source: src, Items: toReviewDTOs(rs)})
}

func (h *Handlers) userEstablishments(w http.ResponseWriter, r *http.Request) {
	es, src, err := h.Est.UserEstablishments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, listResponse[establishmentDTO]{Source: src, Items: toEstablishmentDTOs(es)})
}

// ---- session ----

func (h *Handlers) sync(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reviews.SyncPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusOK, rep)
}

func (h *Handlers) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Reviews.ClearLocal(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
