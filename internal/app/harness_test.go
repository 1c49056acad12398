package app_test

import (
	"time"

	"docaria/internal/app"
	"docaria/internal/domain"
)

const mediaRoot = "/data"

type harness struct {
	net     *fakeNet
	places  *fakePlaces
	docs    *fakeDocs
	blobs   *fakeBlobs
	local   *fakeLocal
	est     *app.EstablishmentService
	reviews *app.ReviewService
	ranking *app.RankingService
	gate    *app.SubmitGate
	users   *app.UserService
}

func newHarness(online bool) *harness {
	h := &harness{
		net:    &fakeNet{online: online},
		places: &fakePlaces{},
		docs:   newFakeDocs(),
		blobs:  &fakeBlobs{},
		local:  newFakeLocal(),
	}
	h.est = app.NewEstablishmentService(h.places, h.docs, h.local, h.net, 1000, "cafe")
	h.reviews = app.NewReviewService(h.docs, h.blobs, h.local, h.net, 2).
		WithMediaRoot(mediaRoot).
		WithMediaOpener(memOpener)
	h.ranking = app.NewRankingService(h.est, h.reviews, h.net)
	h.gate = app.NewSubmitGate(h.est, h.reviews, h.net, 50, 30*time.Minute)
	h.users = app.NewUserService(h.docs, h.local, h.net)
	return h
}

func (h *harness) seedEstablishment(id, name string, lat, lon float64) domain.Establishment {
	e := domain.Establishment{ID: id, Name: name, Address: "Street 1", Lat: &lat, Lon: &lon}
	h.docs.ests[id] = e
	return e
}

func pstr(s string) *string { return &s }
