package deliverylog

import (
	"context"
	"fmt"
	"time"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"
	"notify-backend/pkg/metrics"

	"go.uber.org/zap"
)

// Entry describes one delivery attempt.
type Entry struct {
	TenantID    string
	PersonID    string
	ContentType string
	ContentID   string
	Method      domain.DeliveryMethod
	Address     string
	Err         error
}

// Logger appends delivery attempts to the audit trail. Rows are never updated.
type Logger struct {
	repo   repository.DeliveryLogRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(repo repository.DeliveryLogRepository, logger *zap.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logger.Named("delivery_log"),
		now:    time.Now,
	}
}

// Log records the attempt. A nil Err means success. Persistence errors are returned.
func (l *Logger) Log(ctx context.Context, e Entry) error {
	row := &domain.DeliveryLog{
		TenantID:        e.TenantID,
		PersonID:        e.PersonID,
		ContentType:     e.ContentType,
		ContentID:       e.ContentID,
		DeliveryMethod:  e.Method,
		DeliveryAddress: e.Address,
		Success:         e.Err == nil,
		AttemptTime:     l.now(),
	}
	if e.Err != nil {
		row.ErrorMessage = e.Err.Error()
	}

	metrics.Deliveries.WithLabelValues(string(e.Method), metrics.Status(row.Success)).Inc()

	if err := l.repo.Save(ctx, row); err != nil {
		return fmt.Errorf("save delivery log: %w", err)
	}

	if !row.Success {
		l.logger.Warn("delivery failed",
			zap.String("tenant_id", e.TenantID),
			zap.String("person_id", e.PersonID),
			zap.String("method", string(e.Method)),
			zap.String("content_type", e.ContentType),
			zap.String("content_id", e.ContentID),
			zap.Error(e.Err))
	}
	return nil
}
