package dto

import (
	"time"

	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/service"
)

// RegisterRequest is the registration payload of every role; each role reads
// only its own fields.
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	ContactNo     string `json:"contactNo"`
	AdminName     string `json:"adminName"`
	CompanyName   string `json:"companyName"`
	AdminCNIC     string `json:"adminCNIC"`
	CompanyNTN    string `json:"companyNTN"`
	License       string `json:"license"`
	City          string `json:"city"`
	Province      string `json:"province"`
	OfficeAddress string `json:"officeAddress"`
}

// ToInput converts the payload for role.
func (r RegisterRequest) ToInput(role domain.Role) service.RegisterInput {
	return service.RegisterInput{
		Role:          role,
		Email:         r.Email,
		Password:      r.Password,
		Name:          r.Name,
		ContactNo:     r.ContactNo,
		AdminName:     r.AdminName,
		CompanyName:   r.CompanyName,
		AdminCNIC:     r.AdminCNIC,
		CompanyNTN:    r.CompanyNTN,
		License:       r.License,
		City:          r.City,
		Province:      r.Province,
		OfficeAddress: r.OfficeAddress,
	}
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPairResponse carries both tokens for clients that cannot use cookies.
type TokenPairResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// NewTokenPairResponse maps a domain pair.
func NewTokenPairResponse(pair domain.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// PrincipalResponse is the public identity summary.
type PrincipalResponse struct {
	ID        string      `json:"id"`
	Role      domain.Role `json:"role"`
	Email     string      `json:"email"`
	Name      string      `json:"name,omitempty"`
	ContactNo string      `json:"contactNo,omitempty"`
	AdminName string      `json:"adminName,omitempty"`
	NTN       string      `json:"ntn,omitempty"`
	License   string      `json:"license,omitempty"`
	Address   string      `json:"address,omitempty"`
	Active    *bool       `json:"active,omitempty"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
}

// NewPrincipalResponse maps a service summary.
func NewPrincipalResponse(s service.Summary) PrincipalResponse {
	return PrincipalResponse{
		ID:        s.ID,
		Role:      s.Role,
		Email:     s.Email,
		Name:      s.Name,
		ContactNo: s.ContactNo,
		AdminName: s.AdminName,
		NTN:       s.NTN,
		License:   s.License,
		Address:   s.Address,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
	}
}

// LoginResponse is returned by login.
type LoginResponse struct {
	Principal PrincipalResponse  `json:"principal"`
	Tokens    *TokenPairResponse `json:"tokens,omitempty"`
}
