package dto

import (
	"time"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

// TourDayResponse is one itinerary day.
type TourDayResponse struct {
	DayNumber   int    `json:"dayNumber"`
	Title       string `json:"title"`
	Information string `json:"information"`
}

// TourResponse is the listing view of a tour.
type TourResponse struct {
	ID                  string            `json:"id"`
	AgencyID            string            `json:"agencyId"`
	AgencyName          string            `json:"agencyName"`
	LocationName        string            `json:"locationName"`
	LocationImage       string            `json:"locationImage,omitempty"`
	StartDate           *time.Time        `json:"startDate,omitempty"`
	EndDate             *time.Time        `json:"endDate,omitempty"`
	RegistrationEndDate *time.Time        `json:"registrationEndDate,omitempty"`
	Information         string            `json:"information,omitempty"`
	Status              domain.TourStatus `json:"status"`
	Price               string            `json:"price,omitempty"`
	MaxSlots            int               `json:"maxSlots"`
	Plan                []TourDayResponse `json:"plan"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// NewTourResponses maps tours preserving order.
func NewTourResponses(tours []domain.Tour) []TourResponse {
	out := make([]TourResponse, 0, len(tours))
	for _, t := range tours {
		plan := make([]TourDayResponse, 0, len(t.Plan))
		for _, d := range t.Plan {
			plan = append(plan, TourDayResponse(d))
		}
		out = append(out, TourResponse{
			ID:                  t.ID,
			AgencyID:            t.AgencyID,
			AgencyName:          t.AgencyName,
			LocationName:        t.LocationName,
			LocationImage:       t.LocationImage,
			StartDate:           t.StartDate,
			EndDate:             t.EndDate,
			RegistrationEndDate: t.RegistrationEndDate,
			Information:         t.Information,
			Status:              t.Status,
			Price:               t.Price,
			MaxSlots:            t.MaxSlots,
			Plan:                plan,
			CreatedAt:           t.CreatedAt,
		})
	}
	return out
}
