package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"docaria/internal/domain"
)

func TestLeaderboard_SortsAndTrims(t *testing.T) {
	h := newHarness(true)
	var places []domain.Place
	for i := 0; i < 12; i++ {
		places = append(places, place(fmt.Sprintf("p%02d", i), fmt.Sprintf("Cafe %02d", i), 1, 1, float64(i%4)))
	}
	h.places.places = places
	h.docs.ests["p03"] = domain.Establishment{ID: "p03", AvgRating: 5, TotalReviews: 1}

	ext, src, err := h.ranking.Leaderboard(context.Background(), domain.Coords{}, domain.RatingExternal)
	if err != nil || src != domain.SourceRemote {
		t.Fatalf("Leaderboard: %s %v", src, err)
	}
	if len(ext) != 10 {
		t.Fatalf("len = %d", len(ext))
	}
	// rating 3 ties break by name
	if ext[0].ID != "p03" || ext[1].ID != "p07" || ext[2].ID != "p11" {
		t.Fatalf("external order: %s %s %s", ext[0].ID, ext[1].ID, ext[2].ID)
	}

	loc, _, err := h.ranking.Leaderboard(context.Background(), domain.Coords{}, domain.RatingLocal)
	if err != nil {
		t.Fatal(err)
	}
	if loc[0].ID != "p03" || loc[1].ID != "p00" {
		t.Fatalf("local order: %s %s", loc[0].ID, loc[1].ID)
	}
}

func TestLeaderboard_OfflineAndInvalidType(t *testing.T) {
	h := newHarness(false)
	r := 4.0
	_ = h.local.UpsertEstablishments(context.Background(), []domain.Establishment{{ID: "a", Name: "A", Rating: &r}, {ID: "b", Name: "B"}})

	got, src, err := h.ranking.Leaderboard(context.Background(), domain.Coords{}, domain.RatingExternal)
	if err != nil || src != domain.SourceCache || len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("got %+v %s %v", got, src, err)
	}
	if _, _, err := h.ranking.Leaderboard(context.Background(), domain.Coords{}, "stars"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestTopDocarias_TieBreak(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	_ = h.local.UpsertEstablishments(ctx, []domain.Establishment{{ID: "e1", Name: "One"}, {ID: "e2", Name: "Two"}})
	add := func(id, est, tag string, rating int) {
		_ = h.local.UpsertReviews(ctx, []domain.Review{{ID: id, EstablishmentID: est, UserID: "u", Docaria: tag, Rating: rating}})
	}
	add("1", "e1", "Nata", 5)
	add("2", "e1", "Nata", 5) // avg 5, count 2
	add("3", "e2", "Bola", 5) // avg 5, count 1
	add("4", "e1", "Bola", 5) // avg 5, count 1, same name as e2 group
	add("5", "e2", "Arroz", 4)
	add("6", "e2", "   ", 5) // blank tag skipped

	got, err := h.ranking.TopDocarias(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		name, est string
		count     int
	}{
		{"Nata", "e1", 2},
		{"Bola", "e1", 1},
		{"Bola", "e2", 1},
		{"Arroz", "e2", 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].EstablishmentID != w.est || got[i].Count != w.count {
			t.Fatalf("position %d: got %+v want %+v", i, got[i], w)
		}
	}
	if got[0].EstablishmentName != "One" || got[0].Avg() != 5 {
		t.Fatalf("stats %+v", got[0])
	}
}

func TestTopDocarias_AverageBeatsSingleReview(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()
	_ = h.local.UpsertEstablishments(ctx, []domain.Establishment{{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Beta"}})
	_ = h.local.UpsertReviews(ctx, []domain.Review{
		{ID: "1", EstablishmentID: "A", UserID: "u", Docaria: "flan", Rating: 5},
		{ID: "2", EstablishmentID: "A", UserID: "u", Docaria: "flan", Rating: 3},
		{ID: "3", EstablishmentID: "B", UserID: "u", Docaria: "tart", Rating: 4},
	})

	got, err := h.ranking.TopDocarias(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Name != "flan" || got[0].EstablishmentID != "A" || got[0].Count != 2 || got[0].Avg() != 4 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Name != "tart" || got[1].EstablishmentID != "B" || got[1].Count != 1 || got[1].Avg() != 4 {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestTopDocarias_OnlineFailureContributesNothing(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()
	_ = h.local.UpsertEstablishments(ctx, []domain.Establishment{{ID: "e1", Name: "One"}})
	h.docs.listErr = errors.New("down")

	got, err := h.ranking.TopDocarias(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %+v %v", got, err)
	}
}
