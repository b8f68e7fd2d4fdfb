package repository

import (
	"context"
	"errors"

	"notify-backend/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type preferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository creates a new GORM-based PreferenceRepository
func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) LoadByPersonID(ctx context.Context, tenantID, personID string) (*domain.NotificationPreference, error) {
	var pref domain.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND person_id = ?", tenantID, personID).
		First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pref, nil
}

func (r *preferenceRepository) LoadByPersonIDs(ctx context.Context, tenantID string, personIDs []string) ([]*domain.NotificationPreference, error) {
	var prefs []*domain.NotificationPreference
	if len(personIDs) == 0 {
		return prefs, nil
	}
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND person_id IN ?", tenantID, personIDs).
		Find(&prefs).Error
	return prefs, err
}

// Save updates the row for (tenant, person), inserting it when absent.
func (r *preferenceRepository) Save(ctx context.Context, p *domain.NotificationPreference) error {
	res := r.db.WithContext(ctx).Model(&domain.NotificationPreference{}).
		Where("tenant_id = ? AND person_id = ?", p.TenantID, p.PersonID).
		Updates(map[string]interface{}{
			"allow_push":      p.AllowPush,
			"email_frequency": p.EmailFrequency,
			"failed_digests":  p.FailedDigests,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "person_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"allow_push", "email_frequency", "failed_digests"}),
	}).Create(p).Error
}

func (r *preferenceRepository) CreateIfMissing(ctx context.Context, p *domain.NotificationPreference) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "person_id"}},
		DoNothing: true,
	}).Create(p).Error
}
