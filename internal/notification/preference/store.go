package preference

import (
	"context"
	"fmt"

	"notify-backend/internal/notification/domain"
	"notify-backend/internal/notification/repository"

	"github.com/google/uuid"
)

// Store hands out notification preferences, creating the default the first
// time a person is consulted.
type Store struct {
	repo repository.PreferenceRepository
}

func NewStore(repo repository.PreferenceRepository) *Store {
	return &Store{repo: repo}
}

// Get returns the person's preference, lazily creating the default.
// Creation is insert-or-ignore on (tenant, person) followed by a re-read, so
// concurrent first uses converge on a single row.
func (s *Store) Get(ctx context.Context, tenantID, personID string) (*domain.NotificationPreference, error) {
	pref, err := s.repo.LoadByPersonID(ctx, tenantID, personID)
	if err != nil {
		return nil, fmt.Errorf("load preference: %w", err)
	}
	if pref != nil {
		return pref, nil
	}

	if err := s.repo.CreateIfMissing(ctx, domain.DefaultPreference(uuid.New().String(), tenantID, personID)); err != nil {
		return nil, fmt.Errorf("create default preference: %w", err)
	}

	pref, err = s.repo.LoadByPersonID(ctx, tenantID, personID)
	if err != nil {
		return nil, fmt.Errorf("reload preference: %w", err)
	}
	if pref == nil {
		return nil, fmt.Errorf("preference for %s vanished after create", personID)
	}
	return pref, nil
}

// GetMany loads preferences for many people in one query and lazily creates
// the missing ones. The result is keyed by person id.
func (s *Store) GetMany(ctx context.Context, tenantID string, personIDs []string) (map[string]*domain.NotificationPreference, error) {
	prefs, err := s.repo.LoadByPersonIDs(ctx, tenantID, personIDs)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	result := make(map[string]*domain.NotificationPreference, len(personIDs))
	for _, p := range prefs {
		result[p.PersonID] = p
	}

	for _, personID := range personIDs {
		if _, ok := result[personID]; ok {
			continue
		}
		pref, err := s.Get(ctx, tenantID, personID)
		if err != nil {
			return nil, err
		}
		result[personID] = pref
	}
	return result, nil
}

// Update validates and persists new settings for a person.
func (s *Store) Update(ctx context.Context, tenantID, personID string, allowPush bool, frequency string) (*domain.NotificationPreference, error) {
	freq, err := domain.ParseEmailFrequency(frequency)
	if err != nil {
		return nil, err
	}

	pref, err := s.Get(ctx, tenantID, personID)
	if err != nil {
		return nil, err
	}
	pref.AllowPush = allowPush
	pref.EmailFrequency = freq
	// Saving preferences lifts a suppression caused by failed digests.
	pref.FailedDigests = 0

	if err := s.repo.Save(ctx, pref); err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}
	return pref, nil
}

// RecordDigestResult tracks consecutive digest failures and returns the new count.
func (s *Store) RecordDigestResult(ctx context.Context, pref *domain.NotificationPreference, ok bool) (int, error) {
	next := 0
	if !ok {
		next = pref.FailedDigests + 1
	}
	if next == pref.FailedDigests {
		return next, nil
	}

	pref.FailedDigests = next
	if err := s.repo.Save(ctx, pref); err != nil {
		return next, fmt.Errorf("save digest failure count: %w", err)
	}
	return next, nil
}
