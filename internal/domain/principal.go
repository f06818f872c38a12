package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role tags the principal variant. It never changes after registration.
type Role string

const (
	RoleTourist Role = "tourist"
	RoleAgency  Role = "agency"
	RoleAdmin   Role = "admin"
)

// Roles lists every principal variant.
var Roles = []Role{RoleTourist, RoleAgency, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTourist, RoleAgency, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts external input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// TouristProfile holds tourist-only attributes.
type TouristProfile struct {
	Name      string
	ContactNo string
}

// AgencyProfile holds agency-only attributes.
type AgencyProfile struct {
	AdminName     string
	CompanyName   string
	AdminCNIC     string
	CompanyNTN    string
	License       string
	City          string
	Province      string
	OfficeAddress string
	ContactNo     string
	Active        bool
}

// Address renders the postal address embedded in agency access tokens.
func (a AgencyProfile) Address() string {
	return fmt.Sprintf("%s, %s, %s, Pakistan", a.OfficeAddress, a.City, a.Province)
}

// AdminProfile holds admin-only attributes.
type AdminProfile struct {
	Name string
}

// Principal is an account able to authenticate. Exactly one of Tourist, Agency
// or Admin is set and it matches Role.
type Principal struct {
	ID               string
	Email            string
	PasswordHash     string
	Role             Role
	RefreshTokenHash *string
	Tourist          *TouristProfile
	Agency           *AgencyProfile
	Admin            *AdminProfile
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive is false only for agencies that have been disabled.
func (p *Principal) IsActive() bool {
	if p.Role == RoleAgency && p.Agency != nil {
		return p.Agency.Active
	}
	return true
}

// DisplayName returns the human-facing name for the variant.
func (p *Principal) DisplayName() string {
	switch p.Role {
	case RoleTourist:
		if p.Tourist != nil {
			return p.Tourist.Name
		}
	case RoleAgency:
		if p.Agency != nil {
			return p.Agency.CompanyName
		}
	case RoleAdmin:
		if p.Admin != nil {
			return p.Admin.Name
		}
	}
	return ""
}

// CheckVariant verifies the payload matches the role tag.
func (p *Principal) CheckVariant() error {
	set := 0
	if p.Tourist != nil {
		set++
	}
	if p.Agency != nil {
		set++
	}
	if p.Admin != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("principal must carry exactly one profile, has %d", set)
	}
	ok := (p.Role == RoleTourist && p.Tourist != nil) ||
		(p.Role == RoleAgency && p.Agency != nil) ||
		(p.Role == RoleAdmin && p.Admin != nil)
	if !ok {
		return fmt.Errorf("profile does not match role %q", p.Role)
	}
	return nil
}

// NormalizeEmail lower-cases and trims a login handle.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
