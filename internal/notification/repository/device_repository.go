package repository

import (
	"context"
	"time"

	"notify-backend/internal/notification/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deviceRepository implements DeviceRepository interface
type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new instance of deviceRepository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{
		db: db,
	}
}

// Save registers or refreshes a device token (atomic upsert)
func (r *deviceRepository) Save(ctx context.Context, d *domain.Device) error {
	now := time.Now()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.RegistrationDate.IsZero() {
		d.RegistrationDate = now
	}
	d.LastActiveDate = now

	// INSERT ... ON CONFLICT (push_token) DO UPDATE: a token moving to another
	// person follows the latest login.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "push_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "person_id", "label", "last_active_date"}),
	}).Create(d).Error
}

// LoadForPerson returns all devices for a person
func (r *deviceRepository) LoadForPerson(ctx context.Context, tenantID, personID string) ([]*domain.Device, error) {
	var devices []*domain.Device
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND person_id = ?", tenantID, personID).
		Order("last_active_date DESC").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// DeleteByToken removes a specific device token
func (r *deviceRepository) DeleteByToken(ctx context.Context, tenantID, token string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND push_token = ?", tenantID, token).
		Delete(&domain.Device{}).Error
}
