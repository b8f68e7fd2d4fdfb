package people

import (
	"context"

	"notify-backend/internal/notification/domain"

	"gorm.io/gorm"
)

// Person is the slice of the membership table this service reads. The table
// itself is owned by the membership CRUD layer.
type Person struct {
	ID       string `gorm:"primaryKey"`
	TenantID string `gorm:"index"`
	Email    string
}

// Lookup resolves email addresses for people
type Lookup interface {
	EmailsForIDs(ctx context.Context, tenantID string, personIDs []string) ([]domain.PersonEmail, error)
}

// personRepository implements Lookup interface
type personRepository struct {
	db *gorm.DB
}

// NewPersonRepository creates a new instance of personRepository
func NewPersonRepository(db *gorm.DB) Lookup {
	return &personRepository{
		db: db,
	}
}

// EmailsForIDs batch-fetches addresses in one query. People without an email are skipped.
func (r *personRepository) EmailsForIDs(ctx context.Context, tenantID string, personIDs []string) ([]domain.PersonEmail, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}

	var rows []Person
	err := r.db.WithContext(ctx).
		Select("id", "email").
		Where("tenant_id = ? AND id IN ? AND email <> ?", tenantID, personIDs, "").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.PersonEmail, 0, len(rows))
	for _, p := range rows {
		result = append(result, domain.PersonEmail{ID: p.ID, Email: p.Email})
	}
	return result, nil
}
