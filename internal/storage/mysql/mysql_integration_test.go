//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"docaria/internal/domain"
	mysqlstore "docaria/internal/storage/mysql"
)

func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations", "docstore")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir()

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=docaria",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Skipf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/docaria?parseTime=true&multiStatements=true&charset=utf8mb4&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func TestStore_MySQL_ConcurrentCommitsKeepAggregate(t *testing.T) {
	db := startMySQL(t)
	store := mysqlstore.New(db)
	ctx := context.Background()

	if err := store.MergeEstablishment(ctx, domain.Establishment{ID: "e1", Name: "Pastelaria", Address: "Rua 1"}); err != nil {
		t.Fatalf("MergeEstablishment: %v", err)
	}

	// seed one review so the aggregate starts non-empty
	seed := domain.Review{ID: "r0", EstablishmentID: "e1", UserID: "u0", Rating: 3, Docaria: "Nata", CreatedAt: time.Now()}
	if err := store.CommitReview(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i, rating := range []int{5, 4} {
		wg.Add(1)
		go func(i, rating int) {
			defer wg.Done()
			errs <- store.CommitReview(ctx, domain.Review{
				ID:              fmt.Sprintf("r%d", i+1),
				EstablishmentID: "e1",
				UserID:          fmt.Sprintf("u%d", i+1),
				Rating:          rating,
				Docaria:         "Nata",
				CreatedAt:       time.Now(),
			})
		}(i, rating)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CommitReview: %v", err)
		}
	}

	e, err := store.GetEstablishment(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEstablishment: %v", err)
	}
	if e.TotalReviews != 3 {
		t.Fatalf("total_reviews = %d, want 3", e.TotalReviews)
	}
	if d := e.AvgRating - 4.0; d > 1e-9 || d < -1e-9 {
		t.Fatalf("avg_rating = %v, want 4", e.AvgRating)
	}

	// recommitting an existing id must not count twice
	if err := store.CommitReview(ctx, seed); err != nil {
		t.Fatalf("recommit: %v", err)
	}
	e, _ = store.GetEstablishment(ctx, "e1")
	if e.TotalReviews != 3 {
		t.Fatalf("total_reviews after recommit = %d, want 3", e.TotalReviews)
	}

	// the same id from another user is refused and leaves the row alone
	hijack := seed
	hijack.UserID, hijack.Rating = "intruder", 1
	if err := store.CommitReview(ctx, hijack); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("hijack: %v", err)
	}
	e, _ = store.GetEstablishment(ctx, "e1")
	if e.TotalReviews != 3 {
		t.Fatalf("total_reviews after hijack = %d, want 3", e.TotalReviews)
	}

	rs, err := store.ListUserReviews(ctx, "u1")
	if err != nil || len(rs) != 1 {
		t.Fatalf("ListUserReviews: %v %v", rs, err)
	}
	last, err := store.LastUserReview(ctx, "u2", "e1")
	if err != nil || last == nil || last.Rating != 4 {
		t.Fatalf("LastUserReview: %+v %v", last, err)
	}
}

func TestStore_MySQL_MergeKeepsAggregate(t *testing.T) {
	db := startMySQL(t)
	store := mysqlstore.New(db)
	ctx := context.Background()

	city := "Pittsburgh"
	if err := store.MergeEstablishment(ctx, domain.Establishment{ID: "e9", Name: "A", Address: "x", City: &city}); err != nil {
		t.Fatal(err)
	}
	if err := store.CommitReview(ctx, domain.Review{ID: "r9", EstablishmentID: "e9", UserID: "u", Rating: 5, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	// a later places refresh without city must not wipe it nor the aggregate
	if err := store.MergeEstablishment(ctx, domain.Establishment{ID: "e9", Name: "B", Address: "y"}); err != nil {
		t.Fatal(err)
	}
	e, err := store.GetEstablishment(ctx, "e9")
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "B" || e.City == nil || *e.City != city || e.TotalReviews != 1 {
		t.Fatalf("unexpected establishment after merge: %+v", e)
	}
}
