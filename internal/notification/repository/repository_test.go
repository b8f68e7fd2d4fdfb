package repository_test

import (
	"errors"
	"testing"
	"time"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/testutil"
)

func TestNotificationRepository(t *testing.T) {
	t.Parallel()

	t.Run("LoadExistingUnread only returns unread rows of the event", func(t *testing.T) {
		t.Parallel()
		repo := repository.NewNotificationRepository(testutil.NewTestDB(t))
		ctx := t.Context()
		now := time.Now()

		for _, n := range []*domain.Notification{
			domain.NewNotification("n1", "t1", "p1", "assignment", "X", "msg", "", now),
			domain.NewNotification("n2", "t1", "p2", "assignment", "X", "msg", "", now),
			domain.NewNotification("n3", "t1", "p3", "assignment", "Y", "msg", "", now),
			domain.NewNotification("n4", "t2", "p1", "assignment", "X", "msg", "", now),
		} {
			if err := repo.Create(ctx, n); err != nil {
				t.Fatalf("create %s: %v", n.ID, err)
			}
		}
		if err := repo.MarkRead(ctx, "t1", "p2", "n2"); err != nil {
			t.Fatalf("mark read: %v", err)
		}

		got, err := repo.LoadExistingUnread(ctx, "t1", "assignment", "X")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got) != 1 || got[0].ID != "n1" {
			t.Errorf("got %+v, want only n1", got)
		}
	})

	t.Run("MarkRead sets complete and rejects other tenants", func(t *testing.T) {
		t.Parallel()
		repo := repository.NewNotificationRepository(testutil.NewTestDB(t))
		ctx := t.Context()

		n := domain.NewNotification("n1", "t1", "p1", "notification", "c1", "msg", "", time.Now())
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}

		if err := repo.MarkRead(ctx, "t2", "p1", "n1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("cross-tenant mark read: got %v, want ErrNotFound", err)
		}
		if err := repo.MarkRead(ctx, "t1", "p1", "n1"); err != nil {
			t.Fatalf("mark read: %v", err)
		}

		list, total, err := repo.LoadForPerson(ctx, "t1", "p1", 10, 0)
		if err != nil {
			t.Fatalf("load for person: %v", err)
		}
		if total != 1 || list[0].IsNew || list[0].DeliveryMethod != domain.DeliveryComplete {
			t.Errorf("got %+v (total %d), want read and complete", list, total)
		}
	})

	t.Run("LoadUndelivered skips email, none, complete and read rows", func(t *testing.T) {
		t.Parallel()
		repo := repository.NewNotificationRepository(testutil.NewTestDB(t))
		ctx := t.Context()
		now := time.Now()

		methods := map[string]domain.DeliveryMethod{
			"a": domain.DeliveryPending,
			"b": domain.DeliverySocket,
			"c": domain.DeliveryPush,
			"d": domain.DeliveryEmail,
			"e": domain.DeliveryNone,
		}
		for id, m := range methods {
			n := domain.NewNotification(id, "t1", "p1", "notification", id, "msg", "", now)
			n.DeliveryMethod = m
			if err := repo.Create(ctx, n); err != nil {
				t.Fatalf("create %s: %v", id, err)
			}
		}
		read := domain.NewNotification("f", "t1", "p1", "notification", "f", "msg", "", now)
		read.IsNew = false
		if err := repo.Create(ctx, read); err != nil {
			t.Fatalf("create read: %v", err)
		}

		got, err := repo.LoadUndelivered(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		ids := map[string]bool{}
		for _, n := range got {
			ids[n.ID] = true
		}
		if len(ids) != 3 || !ids["a"] || !ids["b"] || !ids["c"] {
			t.Errorf("got %v, want a, b, c", ids)
		}
	})
}

func TestDeviceRepository(t *testing.T) {
	t.Parallel()

	repo := repository.NewDeviceRepository(testutil.NewTestDB(t))
	ctx := t.Context()

	if err := repo.Save(ctx, &domain.Device{TenantID: "t1", PersonID: "p1", PushToken: "tok-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Same token registered again moves to the newest owner instead of duplicating.
	if err := repo.Save(ctx, &domain.Device{TenantID: "t1", PersonID: "p2", PushToken: "tok-1"}); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	p1, err := repo.LoadForPerson(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("load p1: %v", err)
	}
	p2, err := repo.LoadForPerson(ctx, "t1", "p2")
	if err != nil {
		t.Fatalf("load p2: %v", err)
	}
	if len(p1) != 0 || len(p2) != 1 {
		t.Fatalf("p1=%d p2=%d devices, want 0 and 1", len(p1), len(p2))
	}

	if err := repo.DeleteByToken(ctx, "t1", "tok-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p2, err = repo.LoadForPerson(ctx, "t1", "p2")
	if err != nil {
		t.Fatalf("reload p2: %v", err)
	}
	if len(p2) != 0 {
		t.Errorf("device still resolves after delete: %+v", p2)
	}
}

func TestPreferenceRepository(t *testing.T) {
	t.Parallel()

	repo := repository.NewPreferenceRepository(testutil.NewTestDB(t))
	ctx := t.Context()

	first := domain.DefaultPreference("pref-1", "t1", "p1")
	if err := repo.CreateIfMissing(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := domain.DefaultPreference("pref-2", "t1", "p1")
	second.EmailFrequency = domain.EmailNever
	if err := repo.CreateIfMissing(ctx, second); err != nil {
		t.Fatalf("create duplicate: %v", err)
	}

	got, err := repo.LoadByPersonIDs(ctx, "t1", []string{"p1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "pref-1" || got[0].EmailFrequency != domain.EmailDaily {
		t.Fatalf("got %+v, want the first default row only", got)
	}

	upd := &domain.NotificationPreference{ID: "ignored", TenantID: "t1", PersonID: "p1", AllowPush: false, EmailFrequency: domain.EmailIndividual}
	if err := repo.Save(ctx, upd); err != nil {
		t.Fatalf("save: %v", err)
	}
	pref, err := repo.LoadByPersonID(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("load one: %v", err)
	}
	if pref == nil || pref.AllowPush || pref.EmailFrequency != domain.EmailIndividual {
		t.Errorf("got %+v, want allowPush=false individual", pref)
	}

	missing, err := repo.LoadByPersonID(ctx, "t1", "nobody")
	if err != nil || missing != nil {
		t.Errorf("missing person: got %+v, %v; want nil, nil", missing, err)
	}
}

func TestConversationRepository(t *testing.T) {
	t.Parallel()

	db := testutil.NewTestDB(t)
	repo := repository.NewConversationRepository(db)
	ctx := t.Context()

	for i, pid := range []string{"p1", "p2", "p1", "p3"} {
		m := &domain.Message{ID: string(rune('a' + i)), TenantID: "t1", ConversationID: "c1", PersonID: pid, TimeSent: time.Now()}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("create message: %v", err)
		}
	}
	other := &domain.Message{ID: "z", TenantID: "t1", ConversationID: "c2", PersonID: "p9", TimeSent: time.Now()}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("create other: %v", err)
	}

	ids, err := repo.LoadPosterIDs(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("load posters: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("got %v, want 3 distinct posters", ids)
	}
}
