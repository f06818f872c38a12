package repository

import (
	"context"
	"errors"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

var (
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique-key collision.
	ErrDuplicate = errors.New("record already exists")
	// ErrStaleRefreshToken reports that the stored refresh fingerprint no longer
	// matches the one presented, so rotation did not happen.
	ErrStaleRefreshToken = errors.New("refresh token superseded")
)

// CredentialStore persists principals of every role. Writes to one principal are
// single-record operations, so no caller needs its own locking.
type CredentialStore interface {
	// Create inserts p and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, p *domain.Principal) error
	GetByID(ctx context.Context, role domain.Role, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, role domain.Role, email string) (*domain.Principal, error)
	// HasConflict reports whether any unique key of p is already taken.
	HasConflict(ctx context.Context, p *domain.Principal) (bool, error)
	// SetRefreshToken overwrites the stored fingerprint; nil clears it.
	SetRefreshToken(ctx context.Context, role domain.Role, id string, fingerprint *string) error
	// RotateRefreshToken replaces current with next only if current is still stored.
	RotateRefreshToken(ctx context.Context, role domain.Role, id, current, next string) error
}
