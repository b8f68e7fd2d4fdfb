package deliverylog_test

import (
	"errors"
	"testing"

	"notify-backend/internal/notification/deliverylog"
	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/internal/testutil"

	"go.uber.org/zap"
)

func TestLogger_Log(t *testing.T) {
	t.Parallel()
	repo := repository.NewDeliveryLogRepository(testutil.NewTestDB(t))
	l := deliverylog.NewLogger(repo, zap.NewNop())

	entries := []deliverylog.Entry{
		{TenantID: "t1", PersonID: "p1", ContentType: "notification", ContentID: "n1", Method: domain.DeliverySocket, Address: "ch-1"},
		{TenantID: "t1", PersonID: "p1", ContentType: "notification", ContentID: "n1", Method: domain.DeliveryPush, Address: "ExponentPushToken[x]", Err: errors.New("DeviceNotRegistered")},
		{TenantID: "t2", PersonID: "p1", ContentType: "notification", ContentID: "n1", Method: domain.DeliveryEmail, Address: "p1@example.com"},
	}
	for _, e := range entries {
		if err := l.Log(t.Context(), e); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	logs, err := repo.LoadForContent(t.Context(), "t1", "notification", "n1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d rows for t1, want 2", len(logs))
	}

	byMethod := make(map[domain.DeliveryMethod]*domain.DeliveryLog)
	for _, row := range logs {
		if row.ID == "" || row.AttemptTime.IsZero() {
			t.Errorf("row missing id or time: %+v", row)
		}
		byMethod[row.DeliveryMethod] = row
	}
	if s := byMethod[domain.DeliverySocket]; s == nil || !s.Success || s.DeliveryAddress != "ch-1" {
		t.Errorf("socket row = %+v", s)
	}
	if p := byMethod[domain.DeliveryPush]; p == nil || p.Success || p.ErrorMessage != "DeviceNotRegistered" {
		t.Errorf("push row = %+v", p)
	}
}
