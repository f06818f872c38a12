package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

var mongoCollections = map[domain.Role]string{
	domain.RoleTourist: "tourists",
	domain.RoleAgency:  "agencies",
	domain.RoleAdmin:   "admins",
}

// principalDoc is the stored shape shared by the three collections; fields that
// do not belong to a role are omitted.
type principalDoc struct {
	ID               string    `bson:"_id"`
	Email            string    `bson:"email"`
	Password         string    `bson:"password"`
	RefreshTokenHash *string   `bson:"refreshTokenHash"`
	Name             string    `bson:"name,omitempty"`
	ContactNo        string    `bson:"contactNo,omitempty"`
	AdminName        string    `bson:"adminName,omitempty"`
	CompanyName      string    `bson:"companyName,omitempty"`
	AdminCNIC        string    `bson:"adminCNIC,omitempty"`
	CompanyNTN       string    `bson:"companyNTN,omitempty"`
	License          string    `bson:"license,omitempty"`
	City             string    `bson:"city,omitempty"`
	Province         string    `bson:"province,omitempty"`
	OfficeAddress    string    `bson:"officeAddress,omitempty"`
	Active           *bool     `bson:"active,omitempty"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

type mongoCredentialStore struct {
	db *mongo.Database
}

// NewMongoCredentialStore returns a MongoDB-backed implementation storing each
// role in its own collection.
func NewMongoCredentialStore(db *mongo.Database) CredentialStore {
	return &mongoCredentialStore{db: db}
}

// EnsureCredentialIndexes creates the unique indexes the store relies on.
func EnsureCredentialIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(field + "_unique"),
		}
	}
	indexes := map[string][]mongo.IndexModel{
		"tourists": {unique("email")},
		"agencies": {unique("email"), unique("companyName"), unique("adminCNIC"), unique("companyNTN")},
		"admins":   {unique("email")},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (s *mongoCredentialStore) collection(role domain.Role) (*mongo.Collection, error) {
	name, ok := mongoCollections[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return s.db.Collection(name), nil
}

func (s *mongoCredentialStore) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.CheckVariant(); err != nil {
		return err
	}
	coll, err := s.collection(p.Role)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Email = domain.NormalizeEmail(p.Email)
	p.CreatedAt = now
	p.UpdatedAt = now

	if _, err := coll.InsertOne(ctx, toPrincipalDoc(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.Email)
		}
		return err
	}
	return nil
}

func (s *mongoCredentialStore) GetByID(ctx context.Context, role domain.Role, id string) (*domain.Principal, error) {
	return s.findOne(ctx, role, bson.M{"_id": id})
}

func (s *mongoCredentialStore) GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Principal, error) {
	return s.findOne(ctx, role, bson.M{"email": domain.NormalizeEmail(email)})
}

func (s *mongoCredentialStore) HasConflict(ctx context.Context, p *domain.Principal) (bool, error) {
	coll, err := s.collection(p.Role)
	if err != nil {
		return false, err
	}
	keys := bson.A{bson.M{"email": domain.NormalizeEmail(p.Email)}}
	if p.Role == domain.RoleAgency && p.Agency != nil {
		keys = append(keys,
			bson.M{"companyName": p.Agency.CompanyName},
			bson.M{"adminCNIC": p.Agency.AdminCNIC},
			bson.M{"companyNTN": p.Agency.CompanyNTN},
		)
	}
	count, err := coll.CountDocuments(ctx, bson.M{"$or": keys}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *mongoCredentialStore) SetRefreshToken(ctx context.Context, role domain.Role, id string, fingerprint *string) error {
	coll, err := s.collection(role)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"refreshTokenHash": fingerprint, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoCredentialStore) RotateRefreshToken(ctx context.Context, role domain.Role, id, current, next string) error {
	coll, err := s.collection(role)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "refreshTokenHash": current},
		bson.M{"$set": bson.M{"refreshTokenHash": next, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrStaleRefreshToken
	}
	return nil
}

func (s *mongoCredentialStore) findOne(ctx context.Context, role domain.Role, filter bson.M) (*domain.Principal, error) {
	coll, err := s.collection(role)
	if err != nil {
		return nil, err
	}
	var doc principalDoc
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toPrincipal(role), nil
}

func toPrincipalDoc(p *domain.Principal) principalDoc {
	doc := principalDoc{
		ID:               p.ID,
		Email:            p.Email,
		Password:         p.PasswordHash,
		RefreshTokenHash: p.RefreshTokenHash,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	switch {
	case p.Tourist != nil:
		doc.Name = p.Tourist.Name
		doc.ContactNo = p.Tourist.ContactNo
	case p.Agency != nil:
		a := p.Agency
		active := a.Active
		doc.AdminName = a.AdminName
		doc.CompanyName = a.CompanyName
		doc.AdminCNIC = a.AdminCNIC
		doc.CompanyNTN = a.CompanyNTN
		doc.License = a.License
		doc.City = a.City
		doc.Province = a.Province
		doc.OfficeAddress = a.OfficeAddress
		doc.ContactNo = a.ContactNo
		doc.Active = &active
	case p.Admin != nil:
		doc.Name = p.Admin.Name
	}
	return doc
}

func (d principalDoc) toPrincipal(role domain.Role) *domain.Principal {
	p := &domain.Principal{
		ID:               d.ID,
		Email:            d.Email,
		PasswordHash:     d.Password,
		Role:             role,
		RefreshTokenHash: d.RefreshTokenHash,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	switch role {
	case domain.RoleTourist:
		p.Tourist = &domain.TouristProfile{Name: d.Name, ContactNo: d.ContactNo}
	case domain.RoleAgency:
		p.Agency = &domain.AgencyProfile{
			AdminName:     d.AdminName,
			CompanyName:   d.CompanyName,
			AdminCNIC:     d.AdminCNIC,
			CompanyNTN:    d.CompanyNTN,
			License:       d.License,
			City:          d.City,
			Province:      d.Province,
			OfficeAddress: d.OfficeAddress,
			ContactNo:     d.ContactNo,
			Active:        d.Active == nil || *d.Active,
		}
	case domain.RoleAdmin:
		p.Admin = &domain.AdminProfile{Name: d.Name}
	}
	return p
}
