package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

type tourDoc struct {
	ID                  string            `bson:"_id"`
	AgencyID            string            `bson:"agencyId"`
	AgencyName          string            `bson:"agencyName"`
	LocationName        string            `bson:"locationName"`
	LocationImage       string            `bson:"locationImage"`
	StartDate           *time.Time        `bson:"startDate,omitempty"`
	EndDate             *time.Time        `bson:"endDate,omitempty"`
	RegistrationEndDate *time.Time        `bson:"registrationEndDate,omitempty"`
	Information         string            `bson:"information"`
	Status              domain.TourStatus `bson:"status"`
	Price               string            `bson:"price"`
	MaxSlots            int               `bson:"maxSlots"`
	Plan                []tourDay         `bson:"plan"`
	CreatedAt           time.Time         `bson:"createdAt"`
	UpdatedAt           time.Time         `bson:"updatedAt"`
}

type mongoTourRepository struct {
	coll *mongo.Collection
}

// NewMongoTourRepository returns a MongoDB-backed tour repository.
func NewMongoTourRepository(db *mongo.Database) TourRepository {
	return &mongoTourRepository{coll: db.Collection("tours")}
}

// EnsureTourIndexes creates the listing index on (agencyId, createdAt desc).
func EnsureTourIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("tours").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "agencyId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

func (r *mongoTourRepository) Create(ctx context.Context, tour *domain.Tour) error {
	if tour.Status == "" {
		tour.Status = domain.TourStatusUpcoming
	}
	now := time.Now().UTC()
	tour.ID = uuid.NewString()
	tour.CreatedAt = now
	tour.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, tourDoc{
		ID:                  tour.ID,
		AgencyID:            tour.AgencyID,
		AgencyName:          tour.AgencyName,
		LocationName:        tour.LocationName,
		LocationImage:       tour.LocationImage,
		StartDate:           tour.StartDate,
		EndDate:             tour.EndDate,
		RegistrationEndDate: tour.RegistrationEndDate,
		Information:         tour.Information,
		Status:              tour.Status,
		Price:               tour.Price,
		MaxSlots:            tour.MaxSlots,
		Plan:                planToRows(tour.Plan),
		CreatedAt:           tour.CreatedAt,
		UpdatedAt:           tour.UpdatedAt,
	})
	return err
}

func (r *mongoTourRepository) ListByAgency(ctx context.Context, agencyID string) ([]domain.Tour, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"agencyId": agencyID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []tourDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	result := make([]domain.Tour, 0, len(docs))
	for _, d := range docs {
		result = append(result, domain.Tour{
			ID:                  d.ID,
			AgencyID:            d.AgencyID,
			AgencyName:          d.AgencyName,
			LocationName:        d.LocationName,
			LocationImage:       d.LocationImage,
			StartDate:           d.StartDate,
			EndDate:             d.EndDate,
			RegistrationEndDate: d.RegistrationEndDate,
			Information:         d.Information,
			Status:              d.Status,
			Price:               d.Price,
			MaxSlots:            d.MaxSlots,
			Plan:                planFromRows(d.Plan),
			CreatedAt:           d.CreatedAt,
			UpdatedAt:           d.UpdatedAt,
		})
	}
	return result, nil
}
