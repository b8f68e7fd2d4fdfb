package repository

import (
	"context"
	"time"

	"notify-backend/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type deliveryLogRepository struct {
	db *gorm.DB
}

// NewDeliveryLogRepository creates a new GORM-based DeliveryLogRepository
func NewDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &deliveryLogRepository{db: db}
}

func (r *deliveryLogRepository) Save(ctx context.Context, l *domain.DeliveryLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.AttemptTime.IsZero() {
		l.AttemptTime = time.Now()
	}
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *deliveryLogRepository) LoadForContent(ctx context.Context, tenantID, contentType, contentID string) ([]*domain.DeliveryLog, error) {
	var logs []*domain.DeliveryLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND content_type = ? AND content_id = ?", tenantID, contentType, contentID).
		Order("attempt_time ASC").
		Find(&logs).Error
	return logs, err
}
