package repo

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/shaiso/Bulksub/internal/domain"
)

// Общий набор проверок для любой реализации Repository.

func entries(ids ...string) []domain.Entry {
	out := make([]domain.Entry, len(ids))
	for i, id := range ids {
		out[i] = domain.Entry{ChannelID: id}
	}
	return out
}

func createRun(t *testing.T, r Repository, ids ...string) *domain.Run {
	t.Helper()
	run := domain.NewRun()
	if err := r.CreateRun(context.Background(), run, entries(ids...)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func assertCounters(t *testing.T, r Repository, run *domain.Run, processed, success, failed int) {
	t.Helper()
	got, err := r.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Processed != processed || got.Success != success || got.Error != failed {
		t.Errorf("counters = %d/%d/%d, want %d/%d/%d",
			got.Processed, got.Success, got.Error, processed, success, failed)
	}
	if got.Processed != got.Success+got.Error {
		t.Errorf("processed %d != success %d + error %d", got.Processed, got.Success, got.Error)
	}
}

func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("create dedups", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UCa", "UCb", "UCa")

		if run.Total != 2 {
			t.Errorf("Total = %d, want 2", run.Total)
		}
		got, err := r.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.Total != 2 || got.Status != domain.RunStatusPending {
			t.Errorf("unexpected run: %+v", got)
		}
	})

	t.Run("get missing run", func(t *testing.T) {
		r := newRepo(t)
		if _, err := r.GetRun(context.Background(), domain.NewRun().ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("next pending is fifo", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UCfirst", "UCsecond")
		ctx := context.Background()

		item, err := r.NextPendingItem(ctx, run.ID)
		if err != nil {
			t.Fatalf("NextPendingItem: %v", err)
		}
		if item.ChannelID != "UCfirst" {
			t.Errorf("expected UCfirst, got %s", item.ChannelID)
		}

		if err := r.RecordSuccess(ctx, item, time.Now()); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}
		if item.Status != domain.ItemStatusSuccess || item.Attempts != 1 {
			t.Errorf("item not updated in place: %+v", item)
		}

		item, err = r.NextPendingItem(ctx, run.ID)
		if err != nil {
			t.Fatalf("NextPendingItem: %v", err)
		}
		if item.ChannelID != "UCsecond" {
			t.Errorf("expected UCsecond, got %s", item.ChannelID)
		}

		if err := r.RecordFailure(ctx, item, domain.ErrorTagPermanent, "bad", time.Now()); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if _, err := r.NextPendingItem(ctx, run.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		assertCounters(t, r, run, 2, 1, 1)
	})

	t.Run("record twice is rejected", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UCa")
		ctx := context.Background()

		item, _ := r.NextPendingItem(ctx, run.ID)
		stale := *item
		if err := r.RecordSuccess(ctx, item, time.Now()); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}
		if err := r.RecordFailure(ctx, &stale, domain.ErrorTagQuota, "late", time.Now()); !errors.Is(err, ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
		assertCounters(t, r, run, 1, 1, 0)
	})

	t.Run("failure message truncated", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UCa")
		ctx := context.Background()

		item, _ := r.NextPendingItem(ctx, run.ID)
		long := strings.Repeat("x", 1500)
		if err := r.RecordFailure(ctx, item, domain.ErrorTagUnknown, long, time.Now()); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}

		recent, err := r.RecentItems(ctx, run.ID, 20)
		if err != nil {
			t.Fatalf("RecentItems: %v", err)
		}
		if len(recent) != 1 || recent[0].ErrorMessage == nil || len(*recent[0].ErrorMessage) != domain.MaxErrorMessageLen {
			t.Errorf("expected truncated message, got %+v", recent)
		}
	})

	t.Run("counts and retryable", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UC1", "UC2", "UC3", "UC4", "UC5")
		ctx := context.Background()
		now := time.Now()

		tags := []domain.ErrorTag{domain.ErrorTagQuota, domain.ErrorTagNetwork, domain.ErrorTagPermanent}
		for _, tag := range tags {
			item, err := r.NextPendingItem(ctx, run.ID)
			if err != nil {
				t.Fatalf("NextPendingItem: %v", err)
			}
			if err := r.RecordFailure(ctx, item, tag, string(tag), now); err != nil {
				t.Fatalf("RecordFailure: %v", err)
			}
		}
		item, _ := r.NextPendingItem(ctx, run.ID)
		if err := r.RecordSuccess(ctx, item, now); err != nil {
			t.Fatalf("RecordSuccess: %v", err)
		}

		counts, err := r.CountByRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("CountByRun: %v", err)
		}
		want := domain.ItemCounts{Pending: 1, Success: 1, Quota: 1, Network: 1, Permanent: 1}
		if counts != want {
			t.Errorf("counts = %+v, want %+v", counts, want)
		}

		n, err := r.CountRetryable(ctx, run.ID)
		if err != nil || n != 2 {
			t.Errorf("CountRetryable = (%d, %v), want 2", n, err)
		}

		recent, _ := r.RecentItems(ctx, run.ID, 20)
		if len(recent) != 4 {
			t.Errorf("expected 4 recent items, got %d", len(recent))
		}
	})

	t.Run("reset quota respects cool-down", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UCold", "UCnew")
		ctx := context.Background()
		now := time.Now()

		old, _ := r.NextPendingItem(ctx, run.ID)
		if err := r.RecordFailure(ctx, old, domain.ErrorTagQuota, "quota", now.Add(-5*time.Hour)); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		fresh, _ := r.NextPendingItem(ctx, run.ID)
		if err := r.RecordFailure(ctx, fresh, domain.ErrorTagQuota, "quota", now.Add(-time.Hour)); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		assertCounters(t, r, run, 2, 0, 2)

		reset, err := r.ResetQuotaErrors(ctx, run.ID, now.Add(-4*time.Hour))
		if err != nil {
			t.Fatalf("ResetQuotaErrors: %v", err)
		}
		if reset != 1 {
			t.Fatalf("reset = %d, want 1", reset)
		}

		next, err := r.NextPendingItem(ctx, run.ID)
		if err != nil {
			t.Fatalf("NextPendingItem: %v", err)
		}
		if next.ChannelID != "UCold" {
			t.Errorf("expected UCold back in PENDING, got %s", next.ChannelID)
		}
		assertCounters(t, r, run, 1, 0, 1)
	})

	t.Run("succeeded since is global", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()
		now := time.Now()

		a := createRun(t, r, "UCa")
		b := createRun(t, r, "UCb")

		item, _ := r.NextPendingItem(ctx, a.ID)
		_ = r.RecordSuccess(ctx, item, now.Add(-2*time.Hour))
		item, _ = r.NextPendingItem(ctx, b.ID)
		_ = r.RecordSuccess(ctx, item, now.Add(-10*time.Minute))

		n, err := r.CountSucceededSince(ctx, now.Add(-time.Hour))
		if err != nil {
			t.Fatalf("CountSucceededSince: %v", err)
		}
		if n < 1 {
			t.Errorf("expected at least 1 recent success, got %d", n)
		}
	})

	t.Run("mark started keeps first start", func(t *testing.T) {
		r := newRepo(t)
		run := createRun(t, r, "UCa")
		ctx := context.Background()
		first := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

		if err := r.MarkRunStarted(ctx, run.ID, first); err != nil {
			t.Fatalf("MarkRunStarted: %v", err)
		}
		if err := r.MarkRunStarted(ctx, run.ID, time.Now()); err != nil {
			t.Fatalf("MarkRunStarted: %v", err)
		}

		got, _ := r.GetRun(ctx, run.ID)
		if got.Status != domain.RunStatusRunning {
			t.Errorf("status = %s, want RUNNING", got.Status)
		}
		if got.StartedAt == nil || !got.StartedAt.Equal(first) {
			t.Errorf("started_at = %v, want %v", got.StartedAt, first)
		}

		if err := r.MarkRunCompleted(ctx, run.ID, time.Now()); err != nil {
			t.Fatalf("MarkRunCompleted: %v", err)
		}
		got, _ = r.GetRun(ctx, run.ID)
		if got.Status != domain.RunStatusCompleted || got.FinishedAt == nil {
			t.Errorf("unexpected completed run: %+v", got)
		}
	})

	t.Run("token keeps refresh token", func(t *testing.T) {
		r := newRepo(t)
		ctx := context.Background()

		if err := r.SaveToken(ctx, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
			t.Fatalf("SaveToken: %v", err)
		}
		if err := r.SaveToken(ctx, &oauth2.Token{AccessToken: "a2"}); err != nil {
			t.Fatalf("SaveToken: %v", err)
		}

		tok, err := r.LoadToken(ctx)
		if err != nil {
			t.Fatalf("LoadToken: %v", err)
		}
		if tok.AccessToken != "a2" || tok.RefreshToken != "r1" {
			t.Errorf("unexpected token: %+v", tok)
		}
	})
}

// --- MemoryStore Tests ---

func TestMemoryStore(t *testing.T) {
	runRepositoryTests(t, func(t *testing.T) Repository {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ListRuns(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := domain.NewRun()
		run.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if err := m.CreateRun(ctx, run, entries("UCa")); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := m.ListRuns(ctx, RunFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].CreatedAt.After(runs[1].CreatedAt) {
		t.Error("expected newest first")
	}

	runs, _ = m.ListRuns(ctx, RunFilter{Status: domain.RunStatusRunning})
	if len(runs) != 0 {
		t.Errorf("expected no running runs, got %d", len(runs))
	}
}

// --- Postgres Tests ---

// TestStore_Postgres запускается только при заданном BULKSUB_TEST_DB_URL.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("BULKSUB_TEST_DB_URL")
	if dsn == "" {
		t.Skip("BULKSUB_TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	runRepositoryTests(t, func(t *testing.T) Repository {
		if _, err := pool.Exec(ctx, `TRUNCATE runs, items, oauth_tokens`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewStore(pool)
	})
}
