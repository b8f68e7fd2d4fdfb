package repository

import (
	"context"

	"notify-backend/internal/notification/domain"

	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a ConversationRepository over the messages table
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) LoadPosterIDs(ctx context.Context, tenantID, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Distinct().
		Pluck("person_id", &ids).Error
	return ids, err
}
