package service

import (
	"context"
	"errors"

	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/repository"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

// TourService serves the agency-scoped tour read path.
type TourService struct {
	principals repository.CredentialStore
	tours      repository.TourRepository
}

// NewTourService builds the service.
func NewTourService(principals repository.CredentialStore, tours repository.TourRepository) *TourService {
	return &TourService{principals: principals, tours: tours}
}

// ListForAgency returns the agency's tours, newest first. Ownership is enforced
// by the gate before this is called; a missing agency is NOT_FOUND.
func (s *TourService) ListForAgency(ctx context.Context, agencyID string) ([]domain.Tour, error) {
	if _, err := s.principals.GetByID(ctx, domain.RoleAgency, agencyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agency", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	tours, err := s.tours.ListByAgency(ctx, agencyID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tours, nil
}
