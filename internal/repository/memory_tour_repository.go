package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

type memoryTourRepository struct {
	mu    sync.RWMutex
	tours []domain.Tour
	now   func() time.Time
}

// NewMemoryTourRepository returns a process-local tour repository.
func NewMemoryTourRepository() TourRepository {
	return &memoryTourRepository{now: time.Now}
}

func (r *memoryTourRepository) Create(_ context.Context, tour *domain.Tour) error {
	if tour.Status == "" {
		tour.Status = domain.TourStatusUpcoming
	}
	tour.ID = uuid.NewString()
	if tour.CreatedAt.IsZero() {
		tour.CreatedAt = r.now().UTC()
	}
	tour.UpdatedAt = tour.CreatedAt

	stored := *tour
	stored.Plan = append([]domain.TourDay(nil), tour.Plan...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tours = append(r.tours, stored)
	return nil
}

func (r *memoryTourRepository) ListByAgency(_ context.Context, agencyID string) ([]domain.Tour, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.Tour{}
	for _, t := range r.tours {
		if t.AgencyID == agencyID {
			t.Plan = append([]domain.TourDay(nil), t.Plan...)
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
