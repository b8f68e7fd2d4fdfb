package repository

import (
	"context"
	"errors"

	"notify-backend/internal/notification/domain"

	"gorm.io/gorm"
)

// gormNotificationRepository implements NotificationRepository using GORM
type gormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new GORM-based NotificationRepository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		return errors.New("notification id required")
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *gormNotificationRepository) UpdateDeliveryMethod(ctx context.Context, tenantID, id string, method domain.DeliveryMethod) error {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("delivery_method", method)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *gormNotificationRepository) UpdateDeliveryMethods(ctx context.Context, tenantID string, ids []string, method domain.DeliveryMethod) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Update("delivery_method", method).Error
}

func (r *gormNotificationRepository) LoadUndelivered(ctx context.Context) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	err := r.db.WithContext(ctx).
		Where("is_new = ? AND delivery_method IN ?", true, domain.AwaitingEmail).
		Order("tenant_id, person_id, time_sent").
		Find(&notifications).Error
	return notifications, err
}

func (r *gormNotificationRepository) LoadExistingUnread(ctx context.Context, tenantID, contentType, contentID string) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND content_type = ? AND content_id = ? AND is_new = ?", tenantID, contentType, contentID, true).
		Find(&notifications).Error
	return notifications, err
}

func (r *gormNotificationRepository) LoadForPerson(ctx context.Context, tenantID, personID string, limit, offset int) ([]*domain.Notification, int64, error) {
	var notifications []*domain.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("tenant_id = ? AND person_id = ?", tenantID, personID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("time_sent DESC").Limit(limit).Offset(offset).Find(&notifications).Error
	return notifications, total, err
}

func (r *gormNotificationRepository) CountUnread(ctx context.Context, tenantID, personID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("tenant_id = ? AND person_id = ? AND is_new = ?", tenantID, personID, true).
		Count(&count).Error
	return count, err
}

func (r *gormNotificationRepository) MarkRead(ctx context.Context, tenantID, personID, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("tenant_id = ? AND person_id = ? AND id = ?", tenantID, personID, id).
		Updates(map[string]interface{}{
			"is_new":          false,
			"delivery_method": domain.DeliveryComplete,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *gormNotificationRepository) MarkAllRead(ctx context.Context, tenantID, personID string) error {
	return r.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("tenant_id = ? AND person_id = ? AND is_new = ?", tenantID, personID, true).
		Updates(map[string]interface{}{
			"is_new":          false,
			"delivery_method": domain.DeliveryComplete,
		}).Error
}
