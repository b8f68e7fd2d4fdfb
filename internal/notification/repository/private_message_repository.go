package repository

import (
	"context"
	"errors"
	"time"

	"notify-backend/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormPrivateMessageRepository struct {
	db *gorm.DB
}

// NewPrivateMessageRepository creates a new GORM-based PrivateMessageRepository
func NewPrivateMessageRepository(db *gorm.DB) PrivateMessageRepository {
	return &gormPrivateMessageRepository{db: db}
}

func (r *gormPrivateMessageRepository) Save(ctx context.Context, pm *domain.PrivateMessage) error {
	if pm.ID == "" {
		pm.ID = uuid.New().String()
	}
	pm.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(pm).Error
}

func (r *gormPrivateMessageRepository) LoadByConversationID(ctx context.Context, tenantID, conversationID string) (*domain.PrivateMessage, error) {
	var pm domain.PrivateMessage
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		First(&pm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pm, nil
}

func (r *gormPrivateMessageRepository) LoadUndelivered(ctx context.Context) ([]*domain.PrivateMessage, error) {
	var messages []*domain.PrivateMessage
	err := r.db.WithContext(ctx).
		Where("notify_person_id <> ? AND delivery_method IN ?", "", domain.AwaitingEmail).
		Order("tenant_id, notify_person_id, updated_at").
		Find(&messages).Error
	return messages, err
}

func (r *gormPrivateMessageRepository) UpdateDeliveryMethods(ctx context.Context, tenantID string, ids []string, method domain.DeliveryMethod) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.PrivateMessage{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Updates(map[string]interface{}{
			"delivery_method": method,
			"updated_at":      time.Now(),
		}).Error
}

func (r *gormPrivateMessageRepository) MarkRead(ctx context.Context, tenantID, personID, conversationID string) error {
	res := r.db.WithContext(ctx).Model(&domain.PrivateMessage{}).
		Where("tenant_id = ? AND conversation_id = ? AND notify_person_id = ?", tenantID, conversationID, personID).
		Updates(map[string]interface{}{
			"notify_person_id": "",
			"delivery_method":  domain.DeliveryComplete,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
