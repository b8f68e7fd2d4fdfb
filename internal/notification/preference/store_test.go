package preference_test

import (
	"sync"
	"testing"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/preference"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/testutil"
)

func TestStoreGet(t *testing.T) {
	t.Parallel()

	t.Run("creates the default on first use", func(t *testing.T) {
		t.Parallel()
		store := preference.NewStore(repository.NewPreferenceRepository(testutil.NewTestDB(t)))

		pref, err := store.Get(t.Context(), "t1", "p1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !pref.AllowPush || pref.EmailFrequency != domain.EmailDaily {
			t.Errorf("got %+v, want allowPush=true daily", pref)
		}
	})

	t.Run("concurrent first uses converge on one row", func(t *testing.T) {
		t.Parallel()
		repo := repository.NewPreferenceRepository(testutil.NewTestDB(t))
		store := preference.NewStore(repo)

		var wg sync.WaitGroup
		ids := make([]string, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pref, err := store.Get(t.Context(), "t1", "p1")
				if err != nil {
					t.Errorf("get: %v", err)
					return
				}
				ids[i] = pref.ID
			}(i)
		}
		wg.Wait()

		for _, id := range ids[1:] {
			if id != ids[0] {
				t.Fatalf("got different preference ids %v", ids)
			}
		}
		rows, err := repo.LoadByPersonIDs(t.Context(), "t1", []string{"p1"})
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(rows) != 1 {
			t.Errorf("got %d preference rows, want 1", len(rows))
		}
	})
}

func TestStoreUpdate(t *testing.T) {
	t.Parallel()

	store := preference.NewStore(repository.NewPreferenceRepository(testutil.NewTestDB(t)))

	if _, err := store.Update(t.Context(), "t1", "p1", true, "weekly"); err == nil {
		t.Error("expected an error for an unknown frequency")
	}

	pref, err := store.Update(t.Context(), "t1", "p1", false, "never")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pref.AllowPush || pref.EmailFrequency != domain.EmailNever {
		t.Errorf("got %+v, want allowPush=false never", pref)
	}

	got, err := store.GetMany(t.Context(), "t1", []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if got["p1"].EmailFrequency != domain.EmailNever || got["p2"].EmailFrequency != domain.EmailDaily {
		t.Errorf("got p1=%s p2=%s", got["p1"].EmailFrequency, got["p2"].EmailFrequency)
	}
}

func TestRecordDigestResult(t *testing.T) {
	t.Parallel()

	store := preference.NewStore(repository.NewPreferenceRepository(testutil.NewTestDB(t)))
	ctx := t.Context()

	pref, err := store.Get(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for want := 1; want <= 2; want++ {
		got, err := store.RecordDigestResult(ctx, pref, false)
		if err != nil || got != want {
			t.Fatalf("failure %d: got %d, %v", want, got, err)
		}
	}
	if got, err := store.RecordDigestResult(ctx, pref, true); err != nil || got != 0 {
		t.Fatalf("success: got %d, %v; want reset to 0", got, err)
	}

	reloaded, err := store.Get(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FailedDigests != 0 {
		t.Errorf("persisted failures = %d, want 0", reloaded.FailedDigests)
	}
}

func TestUpdateResetsDigestFailures(t *testing.T) {
	t.Parallel()

	store := preference.NewStore(repository.NewPreferenceRepository(testutil.NewTestDB(t)))
	ctx := t.Context()

	pref, err := store.Get(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for range 3 {
		if _, err := store.RecordDigestResult(ctx, pref, false); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	updated, err := store.Update(ctx, "t1", "p1", true, "daily")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FailedDigests != 0 {
		t.Errorf("failed digests = %d after update, want 0", updated.FailedDigests)
	}
	reloaded, err := store.Get(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FailedDigests != 0 {
		t.Errorf("persisted failures = %d, want 0", reloaded.FailedDigests)
	}
}
