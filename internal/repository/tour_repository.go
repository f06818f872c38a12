package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

// TourRepository reads tours owned by agencies.
type TourRepository interface {
	Create(ctx context.Context, tour *domain.Tour) error
	// ListByAgency returns the agency's tours, newest first.
	ListByAgency(ctx context.Context, agencyID string) ([]domain.Tour, error)
}

type tourDay struct {
	DayNumber   int    `json:"dayNumber" bson:"dayNumber"`
	Title       string `json:"title" bson:"title"`
	Information string `json:"information" bson:"information"`
}

func planToRows(plan []domain.TourDay) []tourDay {
	rows := make([]tourDay, 0, len(plan))
	for _, d := range plan {
		rows = append(rows, tourDay(d))
	}
	return rows
}

func planFromRows(rows []tourDay) []domain.TourDay {
	plan := make([]domain.TourDay, 0, len(rows))
	for _, d := range rows {
		plan = append(plan, domain.TourDay(d))
	}
	return plan
}

type tourRepository struct {
	pool *pgxpool.Pool
}

// NewTourRepository instantiates the Postgres repository.
func NewTourRepository(pool *pgxpool.Pool) TourRepository {
	return &tourRepository{pool: pool}
}

func (r *tourRepository) Create(ctx context.Context, tour *domain.Tour) error {
	if tour.Status == "" {
		tour.Status = domain.TourStatusUpcoming
	}
	const query = `
        INSERT INTO tours (agency_id, agency_name, location_name, location_image, start_date, end_date,
            registration_end_date, information, status, price, max_slots, plan)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id::text, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		tour.AgencyID,
		tour.AgencyName,
		tour.LocationName,
		tour.LocationImage,
		tour.StartDate,
		tour.EndDate,
		tour.RegistrationEndDate,
		tour.Information,
		tour.Status,
		tour.Price,
		tour.MaxSlots,
		planToRows(tour.Plan),
	).Scan(&tour.ID, &tour.CreatedAt, &tour.UpdatedAt)
	return mapPgError(err)
}

func (r *tourRepository) ListByAgency(ctx context.Context, agencyID string) ([]domain.Tour, error) {
	const query = `
        SELECT id::text, agency_id::text, agency_name, location_name, location_image, start_date, end_date,
               registration_end_date, information, status, price, max_slots, plan, created_at, updated_at
        FROM tours
        WHERE agency_id=$1
        ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, agencyID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	tours, err := scanTours(rows)
	if err != nil {
		return nil, mapPgError(err)
	}
	return tours, nil
}

func scanTours(rows pgx.Rows) ([]domain.Tour, error) {
	result := []domain.Tour{}
	for rows.Next() {
		var (
			tour domain.Tour
			plan []tourDay
		)
		if err := rows.Scan(
			&tour.ID,
			&tour.AgencyID,
			&tour.AgencyName,
			&tour.LocationName,
			&tour.LocationImage,
			&tour.StartDate,
			&tour.EndDate,
			&tour.RegistrationEndDate,
			&tour.Information,
			&tour.Status,
			&tour.Price,
			&tour.MaxSlots,
			&plan,
			&tour.CreatedAt,
			&tour.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tour.Plan = planFromRows(plan)
		result = append(result, tour)
	}
	return result, rows.Err()
}
