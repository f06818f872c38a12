package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgInvalidTextSyntax   = "22P02"
	principalCommonFields = "id::text, email, password_hash, refresh_token_hash"
)

var principalTables = map[domain.Role]string{
	domain.RoleTourist: "tourists",
	domain.RoleAgency:  "agencies",
	domain.RoleAdmin:   "admins",
}

var principalSelects = map[domain.Role]string{
	domain.RoleTourist: `SELECT ` + principalCommonFields + `, name, contact_no, created_at, updated_at FROM tourists`,
	domain.RoleAgency: `SELECT ` + principalCommonFields + `, admin_name, company_name, admin_cnic, company_ntn,
        license, city, province, office_address, contact_no, active, created_at, updated_at FROM agencies`,
	domain.RoleAdmin: `SELECT ` + principalCommonFields + `, name, created_at, updated_at FROM admins`,
}

type postgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialStore returns a Postgres-backed implementation.
func NewPostgresCredentialStore(pool *pgxpool.Pool) CredentialStore {
	return &postgresCredentialStore{pool: pool}
}

func (s *postgresCredentialStore) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.CheckVariant(); err != nil {
		return err
	}
	p.Email = domain.NormalizeEmail(p.Email)

	var row pgx.Row
	switch p.Role {
	case domain.RoleTourist:
		const query = `
        INSERT INTO tourists (email, password_hash, name, contact_no)
        VALUES ($1, $2, $3, $4)
        RETURNING id::text, created_at, updated_at`
		row = s.pool.QueryRow(ctx, query, p.Email, p.PasswordHash, p.Tourist.Name, p.Tourist.ContactNo)
	case domain.RoleAgency:
		const query = `
        INSERT INTO agencies (email, password_hash, admin_name, company_name, admin_cnic, company_ntn,
            license, city, province, office_address, contact_no, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id::text, created_at, updated_at`
		a := p.Agency
		row = s.pool.QueryRow(ctx, query, p.Email, p.PasswordHash, a.AdminName, a.CompanyName, a.AdminCNIC,
			a.CompanyNTN, a.License, a.City, a.Province, a.OfficeAddress, a.ContactNo, a.Active)
	case domain.RoleAdmin:
		const query = `
        INSERT INTO admins (email, password_hash, name)
        VALUES ($1, $2, $3)
        RETURNING id::text, created_at, updated_at`
		row = s.pool.QueryRow(ctx, query, p.Email, p.PasswordHash, p.Admin.Name)
	}

	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *postgresCredentialStore) GetByID(ctx context.Context, role domain.Role, id string) (*domain.Principal, error) {
	query, ok := principalSelects[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return scanPrincipal(role, s.pool.QueryRow(ctx, query+` WHERE id=$1`, id))
}

func (s *postgresCredentialStore) GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Principal, error) {
	query, ok := principalSelects[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return scanPrincipal(role, s.pool.QueryRow(ctx, query+` WHERE email=$1`, domain.NormalizeEmail(email)))
}

func (s *postgresCredentialStore) HasConflict(ctx context.Context, p *domain.Principal) (bool, error) {
	email := domain.NormalizeEmail(p.Email)
	var exists bool
	var err error
	switch {
	case p.Role == domain.RoleAgency && p.Agency != nil:
		const query = `
        SELECT EXISTS (
            SELECT 1 FROM agencies
            WHERE email=$1 OR company_name=$2 OR admin_cnic=$3 OR company_ntn=$4)`
		err = s.pool.QueryRow(ctx, query, email, p.Agency.CompanyName, p.Agency.AdminCNIC, p.Agency.CompanyNTN).Scan(&exists)
	default:
		table, ok := principalTables[p.Role]
		if !ok {
			return false, fmt.Errorf("unknown role %q", p.Role)
		}
		err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE email=$1)`, email).Scan(&exists)
	}
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *postgresCredentialStore) SetRefreshToken(ctx context.Context, role domain.Role, id string, fingerprint *string) error {
	table, ok := principalTables[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET refresh_token_hash=$1, updated_at=NOW() WHERE id=$2`,
		fingerprint, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresCredentialStore) RotateRefreshToken(ctx context.Context, role domain.Role, id, current, next string) error {
	table, ok := principalTables[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET refresh_token_hash=$1, updated_at=NOW() WHERE id=$2 AND refresh_token_hash=$3`,
		next, id, current)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleRefreshToken
	}
	return nil
}

func scanPrincipal(role domain.Role, row pgx.Row) (*domain.Principal, error) {
	p := domain.Principal{Role: role}
	var err error
	switch role {
	case domain.RoleTourist:
		t := &domain.TouristProfile{}
		err = row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.RefreshTokenHash,
			&t.Name, &t.ContactNo, &p.CreatedAt, &p.UpdatedAt)
		p.Tourist = t
	case domain.RoleAgency:
		a := &domain.AgencyProfile{}
		err = row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.RefreshTokenHash,
			&a.AdminName, &a.CompanyName, &a.AdminCNIC, &a.CompanyNTN, &a.License, &a.City,
			&a.Province, &a.OfficeAddress, &a.ContactNo, &a.Active, &p.CreatedAt, &p.UpdatedAt)
		p.Agency = a
	case domain.RoleAdmin:
		a := &domain.AdminProfile{}
		err = row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.RefreshTokenHash,
			&a.Name, &p.CreatedAt, &p.UpdatedAt)
		p.Admin = a
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return &p, nil
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case pgInvalidTextSyntax:
			return ErrNotFound
		}
	}
	return err
}
