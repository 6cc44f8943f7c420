package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"lunchbot/config"
	"lunchbot/models"
	"lunchbot/store"

	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("could not open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// setupFileDB opens a WAL database file with a real connection pool, so
// concurrent transactions actually overlap.
func setupFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDB(filepath.Join(t.TempDir(), "lunchbot.db"))
	if err != nil {
		t.Fatalf("could not open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func intPtr(n int) *int { return &n }

func TestCatalogMatchAndTags(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewCatalog(setupTestDB(t))

	for _, r := range []models.Restaurant{
		{Name: "Soba Ichi", DurationMinutes: 15, Rating: 4, Price: 600, Tags: []string{"japanese", "noodles"}},
		{Name: "Green Bowl", DurationMinutes: 10, Rating: 5, Price: 650, Tags: []string{"vegan", "salad"}},
		{Name: "Steak House", DurationMinutes: 60, Rating: 3, Price: 1800, Tags: []string{"meat"}},
		{Name: "Curry Stand", DurationMinutes: 20, Rating: 4, Price: 700, Tags: []string{"indian"}},
	} {
		r := r
		if err := catalog.Add(ctx, &r); err != nil {
			t.Fatalf("add %s: %v", r.Name, err)
		}
	}

	matches, err := catalog.Match(ctx, models.Criteria{
		TimeLimit:    intPtr(20),
		PriceLimit:   intPtr(700),
		ExcludedTags: []string{"vegan"},
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	var names []string
	for _, r := range matches {
		names = append(names, r.Name)
	}
	if len(names) != 2 || names[0] != "Soba Ichi" || names[1] != "Curry Stand" {
		t.Fatalf("unexpected matches in insertion order: %v", names)
	}

	all, err := catalog.Match(ctx, models.Criteria{})
	if err != nil {
		t.Fatalf("match unbounded: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected unbounded criteria to match all 4, got %d", len(all))
	}

	tags, err := catalog.Tags(ctx)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if len(tags) != 6 || tags[0] != "indian" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestCatalogCommitOnce(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewCatalog(setupTestDB(t))

	p := models.PendingRestaurant{StagedBy: "U1", Name: "Soba Ichi", Address: "Kanda", DurationMinutes: 20, Rating: 4, Price: 900, Tags: []string{"noodles"}}
	if err := catalog.Stage(ctx, &p); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if n, _ := catalog.Count(ctx); n != 0 {
		t.Fatalf("staging must not write the catalog, got %d restaurants", n)
	}

	r, err := catalog.Commit(ctx, p.ID)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if r.Name != "Soba Ichi" || r.AddedBy != "U1" || r.ID == 0 {
		t.Fatalf("unexpected committed restaurant: %+v", r)
	}
	if _, err := catalog.Commit(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second commit should be ErrNotFound, got %v", err)
	}
	if n, _ := catalog.Count(ctx); n != 1 {
		t.Fatalf("expected exactly 1 restaurant, got %d", n)
	}
}

func TestCatalogDiscardThenCommit(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewCatalog(setupTestDB(t))

	p := models.PendingRestaurant{StagedBy: "U1", Name: "Curry Stand", DurationMinutes: 20, Rating: 4, Price: 700}
	if err := catalog.Stage(ctx, &p); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := catalog.Discard(ctx, p.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := catalog.Commit(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("commit after discard should be ErrNotFound, got %v", err)
	}
	if n, _ := catalog.Count(ctx); n != 0 {
		t.Fatalf("expected empty catalog, got %d", n)
	}
}

func TestCatalogDelete(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewCatalog(setupTestDB(t))
	r := models.Restaurant{Name: "Soba Ichi", DurationMinutes: 20, Rating: 4, Price: 900}
	if err := catalog.Add(ctx, &r); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := catalog.Delete(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := catalog.Delete(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestFiltersLastWriteWins(t *testing.T) {
	ctx := context.Background()
	filters := store.NewFilters(setupTestDB(t))

	if err := filters.SetTimeLimit(ctx, "U1", 30); err != nil {
		t.Fatalf("set time: %v", err)
	}
	if err := filters.SetPriceLimit(ctx, "U1", 1000); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := filters.SetTimeLimit(ctx, "U1", 20); err != nil {
		t.Fatalf("set time again: %v", err)
	}
	f, err := filters.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f.TimeLimit == nil || *f.TimeLimit != 20 {
		t.Fatalf("expected time limit 20, got %v", f.TimeLimit)
	}
	if f.PriceLimit == nil || *f.PriceLimit != 1000 {
		t.Fatalf("price limit should survive a time update, got %v", f.PriceLimit)
	}

	if err := filters.Clear(ctx, "U1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	f, err = filters.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if f.TimeLimit != nil || f.PriceLimit != nil || len(f.ExcludedTags) != 0 {
		t.Fatalf("expected empty filter after clear, got %+v", f)
	}
}

func TestToggleExcludedTagTwiceRestoresSet(t *testing.T) {
	ctx := context.Background()
	filters := store.NewFilters(setupTestDB(t))

	if _, err := filters.ToggleExcludedTag(ctx, "U1", "meat"); err != nil {
		t.Fatalf("toggle meat: %v", err)
	}
	before, _ := filters.Get(ctx, "U1")

	if f, err := filters.ToggleExcludedTag(ctx, "U1", "vegan"); err != nil || !f.Excludes("vegan") {
		t.Fatalf("expected vegan excluded, got %+v (%v)", f, err)
	}
	after, err := filters.ToggleExcludedTag(ctx, "U1", "vegan")
	if err != nil {
		t.Fatalf("toggle vegan back: %v", err)
	}
	if len(after.ExcludedTags) != len(before.ExcludedTags) || !after.Excludes("meat") || after.Excludes("vegan") {
		t.Fatalf("expected %v, got %v", before.ExcludedTags, after.ExcludedTags)
	}
}

func TestSessionCompletesOnlyWhenAllFinished(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewSessions(setupTestDB(t))

	s, err := sessions.Create(ctx, "U0", "C1", []string{"UA", "UB"}, models.StateAwaitingTime)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := sessions.MarkFinished(ctx, s.ID, "UA")
	if err != nil {
		t.Fatalf("finish A: %v", err)
	}
	if claimed {
		t.Fatalf("session must not complete after only A finished")
	}
	got, _ := sessions.Get(ctx, s.ID)
	if store.IsComplete(*got) {
		t.Fatalf("IsComplete true with B unfinished")
	}

	claimed, err = sessions.MarkFinished(ctx, s.ID, "UB")
	if err != nil {
		t.Fatalf("finish B: %v", err)
	}
	if !claimed {
		t.Fatalf("last finisher should claim the dispatch")
	}
	got, _ = sessions.Get(ctx, s.ID)
	if !store.IsComplete(*got) || !got.Dispatched {
		t.Fatalf("expected complete dispatched session, got %+v", got)
	}

	claimed, err = sessions.MarkFinished(ctx, s.ID, "UB")
	if err != nil || claimed {
		t.Fatalf("repeated finish must not claim again (claimed=%v err=%v)", claimed, err)
	}
}

func TestSessionFinishRaceClaimsOnce(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewSessions(setupFileDB(t))

	users := []string{"UA", "UB", "UC"}
	for round := 0; round < 20; round++ {
		s, err := sessions.Create(ctx, "U0", "C1", users, models.StateAwaitingTime)
		if err != nil {
			t.Fatalf("round %d create: %v", round, err)
		}

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			claims int
		)
		start := make(chan struct{})
		for _, u := range users {
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(u string) {
					defer wg.Done()
					<-start
					claimed, err := sessions.MarkFinished(ctx, s.ID, u)
					if err != nil {
						t.Errorf("round %d finish %s: %v", round, u, err)
						return
					}
					if claimed {
						mu.Lock()
						claims++
						mu.Unlock()
					}
				}(u)
			}
		}
		close(start)
		wg.Wait()
		if claims != 1 {
			t.Fatalf("round %d: expected exactly one claim, got %d", round, claims)
		}
		if err := sessions.Delete(ctx, s.ID); err != nil {
			t.Fatalf("round %d delete: %v", round, err)
		}
	}
}

func TestToggleExcludedTagConcurrent(t *testing.T) {
	ctx := context.Background()
	filters := store.NewFilters(setupFileDB(t))

	tags := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, tag := range tags {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			<-start
			if _, err := filters.ToggleExcludedTag(ctx, "UA", tag); err != nil {
				t.Errorf("toggle %s: %v", tag, err)
			}
		}(tag)
	}
	close(start)
	wg.Wait()

	got, err := filters.Get(ctx, "UA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ExcludedTags) != len(tags) {
		t.Fatalf("lost toggles under concurrency: %v", got.ExcludedTags)
	}
	for i, tag := range tags {
		if got.ExcludedTags[i] != tag {
			t.Fatalf("expected %v, got %v", tags, got.ExcludedTags)
		}
	}
}

func TestSessionActiveForAndDelete(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewSessions(setupTestDB(t))

	s, err := sessions.Create(ctx, "U0", "C1", []string{"UA", "UB"}, models.StateAwaitingTime)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	active, err := sessions.ActiveFor(ctx, []string{"UB", "UC"})
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].UserID != "UB" || active[0].SessionID != s.ID {
		t.Fatalf("unexpected active participants: %+v", active)
	}

	if err := sessions.Advance(ctx, s.ID, "UA", models.StateAwaitingPrice); err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, _ := sessions.Get(ctx, s.ID)
	if p, _ := got.Participant("UA"); p.Step != models.StateAwaitingPrice {
		t.Fatalf("expected UA awaiting price, got %s", p.Step)
	}
	if got.UserIDs()[0] != "UA" || got.UserIDs()[1] != "UB" {
		t.Fatalf("participants out of order: %v", got.UserIDs())
	}

	if err := sessions.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := sessions.Get(ctx, s.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	active, _ = sessions.ActiveFor(ctx, []string{"UA", "UB"})
	if len(active) != 0 {
		t.Fatalf("expected no active participants after delete, got %d", len(active))
	}
}

func TestSessionLeave(t *testing.T) {
	ctx := context.Background()
	sessions := store.NewSessions(setupTestDB(t))

	s, err := sessions.Create(ctx, "U0", "C1", []string{"UA", "UB"}, models.StateAwaitingTime)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if claimed, err := sessions.MarkFinished(ctx, s.ID, "UA"); err != nil || claimed {
		t.Fatalf("finish A: claimed=%v err=%v", claimed, err)
	}

	// B leaving makes A the only, already finished, participant
	claimed, err := sessions.Leave(ctx, s.ID, "UB")
	if err != nil {
		t.Fatalf("leave B: %v", err)
	}
	if !claimed {
		t.Fatalf("leaving the last unfinished participant should claim the dispatch")
	}
	got, _ := sessions.Get(ctx, s.ID)
	if ids := got.UserIDs(); len(ids) != 1 || ids[0] != "UA" {
		t.Fatalf("unexpected participants after leave: %v", ids)
	}
	if _, err := sessions.Leave(ctx, s.ID, "UB"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound leaving twice, got %v", err)
	}

	if claimed, err := sessions.Leave(ctx, s.ID, "UA"); err != nil || claimed {
		t.Fatalf("last leave: claimed=%v err=%v", claimed, err)
	}
	if _, err := sessions.Get(ctx, s.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("empty session should be deleted, got %v", err)
	}
}
