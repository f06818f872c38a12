package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

type memoryCredentialStore struct {
	mu         sync.Mutex
	principals map[domain.Role]map[string]*domain.Principal
}

// NewMemoryCredentialStore returns a process-local store for tests and local runs.
func NewMemoryCredentialStore() CredentialStore {
	s := &memoryCredentialStore{principals: make(map[domain.Role]map[string]*domain.Principal)}
	for _, role := range domain.Roles {
		s.principals[role] = make(map[string]*domain.Principal)
	}
	return s
}

func (s *memoryCredentialStore) Create(_ context.Context, p *domain.Principal) error {
	if err := p.CheckVariant(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflictLocked(p) {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.Email)
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Email = domain.NormalizeEmail(p.Email)
	p.CreatedAt = now
	p.UpdatedAt = now
	s.principals[p.Role][p.ID] = clonePrincipal(p)
	return nil
}

func (s *memoryCredentialStore) GetByID(_ context.Context, role domain.Role, id string) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[role][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (s *memoryCredentialStore) GetByEmail(_ context.Context, role domain.Role, email string) (*domain.Principal, error) {
	email = domain.NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals[role] {
		if p.Email == email {
			return clonePrincipal(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryCredentialStore) HasConflict(_ context.Context, p *domain.Principal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflictLocked(p), nil
}

func (s *memoryCredentialStore) SetRefreshToken(_ context.Context, role domain.Role, id string, fingerprint *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[role][id]
	if !ok {
		return ErrNotFound
	}
	p.RefreshTokenHash = copyString(fingerprint)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryCredentialStore) RotateRefreshToken(_ context.Context, role domain.Role, id, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[role][id]
	if !ok {
		return ErrNotFound
	}
	if p.RefreshTokenHash == nil || *p.RefreshTokenHash != current {
		return ErrStaleRefreshToken
	}
	p.RefreshTokenHash = &next
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryCredentialStore) conflictLocked(p *domain.Principal) bool {
	email := domain.NormalizeEmail(p.Email)
	for _, existing := range s.principals[p.Role] {
		if existing.Email == email {
			return true
		}
		if p.Role == domain.RoleAgency && p.Agency != nil && existing.Agency != nil {
			a, b := existing.Agency, p.Agency
			if a.CompanyName == b.CompanyName || a.AdminCNIC == b.AdminCNIC || a.CompanyNTN == b.CompanyNTN {
				return true
			}
		}
	}
	return false
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	clone := *p
	clone.RefreshTokenHash = copyString(p.RefreshTokenHash)
	if p.Tourist != nil {
		t := *p.Tourist
		clone.Tourist = &t
	}
	if p.Agency != nil {
		a := *p.Agency
		clone.Agency = &a
	}
	if p.Admin != nil {
		a := *p.Admin
		clone.Admin = &a
	}
	return &clone
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
