package domain

import "time"

// TourStatus enumerates tour lifecycle states.
type TourStatus string

const (
	TourStatusUpcoming            TourStatus = "Upcoming"
	TourStatusRegistrationsOpened TourStatus = "Registrations-Opened"
	TourStatusActive              TourStatus = "Active"
	TourStatusCompleted           TourStatus = "Completed"
	TourStatusCancelled           TourStatus = "Cancelled"
)

// TourDay is one entry of a tour itinerary.
type TourDay struct {
	DayNumber   int
	Title       string
	Information string
}

// Tour is a trip published by an agency.
type Tour struct {
	ID                  string
	AgencyID            string
	AgencyName          string
	LocationName        string
	LocationImage       string
	StartDate           *time.Time
	EndDate             *time.Time
	RegistrationEndDate *time.Time
	Information         string
	Status              TourStatus
	Price               string
	MaxSlots            int
	Plan                []TourDay
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
