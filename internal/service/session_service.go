package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tourbook/tour-booking-service/internal/auth"
	"github.com/tourbook/tour-booking-service/internal/config"
	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/events"
	"github.com/tourbook/tour-booking-service/internal/repository"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

const rejectedRefreshMessage = "invalid or expired token"

// RegisterInput carries the fields of every role; only those of Role are read.
type RegisterInput struct {
	Role      domain.Role
	Email     string
	Password  string
	Name      string
	ContactNo string

	AdminName     string
	CompanyName   string
	AdminCNIC     string
	CompanyNTN    string
	License       string
	City          string
	Province      string
	OfficeAddress string
}

// LoginInput carries login credentials for one role.
type LoginInput struct {
	Role     domain.Role
	Email    string
	Password string
}

// LoginResult is a fresh token pair plus the public profile.
type LoginResult struct {
	Summary Summary
	Tokens  domain.TokenPair
}

// SessionService coordinates registration, login, refresh and logout for every
// role.
type SessionService struct {
	store        repository.CredentialStore
	tokens       *auth.TokenManager
	hasher       *auth.PasswordHasher
	attempts     auth.AttemptLimiter
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	allowReentry bool
	dummyHash    string
}

// SessionDependencies encapsulates collaborators of the session service.
type SessionDependencies struct {
	Store      repository.CredentialStore
	Tokens     *auth.TokenManager
	Hasher     *auth.PasswordHasher
	Attempts   auth.AttemptLimiter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewSessionService builds the service. Attempts, Dispatcher and Logger are
// optional.
func NewSessionService(cfg config.AuthConfig, deps SessionDependencies) (*SessionService, error) {
	if deps.Store == nil || deps.Tokens == nil || deps.Hasher == nil {
		return nil, errors.New("session service requires a store, token manager and hasher")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = events.NewInMemoryDispatcher()
	}

	// Compared against on unknown handles so both login failures cost one bcrypt run.
	dummy, err := deps.Hasher.Hash("tourbook-dummy-secret")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &SessionService{
		store:        deps.Store,
		tokens:       deps.Tokens,
		hasher:       deps.Hasher,
		attempts:     deps.Attempts,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		allowReentry: cfg.AllowSessionReentry,
		dummyHash:    dummy,
	}, nil
}

// Register validates the role's required fields, rejects collisions on any
// unique key and persists the principal with a hashed secret.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*domain.Principal, error) {
	principal, err := buildPrincipal(in)
	if err != nil {
		return nil, err
	}

	conflict, err := s.store.HasConflict(ctx, principal)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if conflict {
		return nil, duplicateError(in.Role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperrors.NewValidationError("password must be at most 72 bytes", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	principal.PasswordHash = hash

	if err := s.store.Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicateError(in.Role)
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventRegistered, principal.Role, principal.ID, nil))
	return principal, nil
}

// Login verifies the secret and rotates the stored refresh fingerprint. Unknown
// handles and wrong secrets fail identically.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if missing := missingFields(map[string]string{"email": email, "password": in.Password}); len(missing) > 0 {
		return nil, missingFieldsError(missing)
	}
	if !in.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", nil)
	}

	key := string(in.Role) + ":" + email
	if s.attempts != nil {
		wait, err := s.attempts.Locked(ctx, key)
		if err != nil {
			s.logger.Warn("login attempt limiter unavailable", zap.Error(err))
		} else if wait > 0 {
			s.publish(ctx, events.NewEvent(events.EventLoginFailed, in.Role, "", events.LoginFailedPayload{Reason: "locked"}))
			return nil, apperrors.NewTooManyAttempts(int(math.Ceil(wait.Seconds())))
		}
	}

	principal, err := s.store.GetByEmail(ctx, in.Role, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
		s.hasher.Verify(in.Password, s.dummyHash)
		return nil, s.loginFailed(ctx, in.Role, key, "")
	}
	if !principal.IsActive() {
		s.publish(ctx, events.NewEvent(events.EventLoginFailed, in.Role, principal.ID, events.LoginFailedPayload{Reason: "inactive"}))
		return nil, apperrors.NewInactive("account is inactive")
	}
	if !s.hasher.Verify(in.Password, principal.PasswordHash) {
		return nil, s.loginFailed(ctx, in.Role, key, principal.ID)
	}

	pair, err := s.tokens.IssuePair(principal)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	fingerprint := auth.FingerprintToken(pair.RefreshToken)
	if err := s.store.SetRefreshToken(ctx, principal.Role, principal.ID, &fingerprint); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, key); err != nil {
			s.logger.Warn("reset login attempts", zap.Error(err))
		}
	}
	s.publish(ctx, events.NewEvent(events.EventLoginSucceeded, principal.Role, principal.ID, nil))
	return &LoginResult{Summary: SummaryFromPrincipal(principal), Tokens: pair}, nil
}

// Reenter returns the caller's existing identity when re-entry is enabled and
// the caller already holds a valid access token for role.
func (s *SessionService) Reenter(caller *auth.Principal, role domain.Role) (Summary, bool) {
	if !s.allowReentry || caller == nil || caller.Role != role {
		return Summary{}, false
	}
	return s.Current(caller), true
}

// Refresh mints a new pair for a caller whose refresh token the gate already
// verified. The stored fingerprint is swapped only if it still matches the
// inbound token, so a replayed or revoked token never yields a second pair.
func (s *SessionService) Refresh(ctx context.Context, caller *auth.Principal, inbound string) (domain.TokenPair, error) {
	if caller == nil || inbound == "" {
		return domain.TokenPair{}, apperrors.NewAuthRejected("authentication required")
	}

	principal, err := s.store.GetByID(ctx, caller.Role, caller.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, s.refreshRejected(ctx, caller, "not_found")
		}
		return domain.TokenPair{}, apperrors.NewInternalError(err)
	}
	if !principal.IsActive() {
		return domain.TokenPair{}, s.refreshRejected(ctx, caller, "inactive")
	}

	pair, err := s.tokens.IssuePair(principal)
	if err != nil {
		return domain.TokenPair{}, apperrors.NewInternalError(err)
	}

	err = s.store.RotateRefreshToken(ctx, principal.Role, principal.ID,
		auth.FingerprintToken(inbound), auth.FingerprintToken(pair.RefreshToken))
	switch {
	case errors.Is(err, repository.ErrStaleRefreshToken):
		return domain.TokenPair{}, s.refreshRejected(ctx, caller, "stale")
	case errors.Is(err, repository.ErrNotFound):
		return domain.TokenPair{}, s.refreshRejected(ctx, caller, "not_found")
	case err != nil:
		return domain.TokenPair{}, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventTokenRefreshed, principal.Role, principal.ID, nil))
	return pair, nil
}

// Logout clears the stored refresh fingerprint. Already-issued access tokens
// stay valid until they expire.
func (s *SessionService) Logout(ctx context.Context, caller *auth.Principal) error {
	if caller == nil {
		return apperrors.NewAuthRejected("authentication required")
	}
	err := s.store.SetRefreshToken(ctx, caller.Role, caller.ID, nil)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.NewEvent(events.EventLoggedOut, caller.Role, caller.ID, nil))
	return nil
}

// Current projects the verified claims; it does not touch the store.
func (s *SessionService) Current(caller *auth.Principal) Summary {
	if caller == nil {
		return Summary{}
	}
	return SummaryFromClaims(caller.Claims)
}

// EnsureBootstrapAdmin creates the first admin when email is set and no admin
// with that email exists.
func (s *SessionService) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	_, err := s.store.GetByEmail(ctx, domain.RoleAdmin, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	admin, err := s.Register(ctx, RegisterInput{Role: domain.RoleAdmin, Email: email, Password: password, Name: "Administrator"})
	if err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", zap.String("admin_id", admin.ID))
	return true, nil
}

func (s *SessionService) loginFailed(ctx context.Context, role domain.Role, key, principalID string) error {
	if s.attempts != nil {
		if err := s.attempts.RecordFailure(ctx, key); err != nil {
			s.logger.Warn("record login failure", zap.Error(err))
		}
	}
	s.publish(ctx, events.NewEvent(events.EventLoginFailed, role, principalID,
		events.LoginFailedPayload{Reason: "invalid_credentials"}))
	return apperrors.NewInvalidCredentials()
}

func (s *SessionService) refreshRejected(ctx context.Context, caller *auth.Principal, reason string) error {
	s.publish(ctx, events.NewEvent(events.EventRefreshRejected, caller.Role, caller.ID,
		events.RefreshRejectedPayload{Reason: reason}))
	return apperrors.NewAuthRejected(rejectedRefreshMessage)
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("session event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func buildPrincipal(in RegisterInput) (*domain.Principal, error) {
	email := domain.NormalizeEmail(in.Email)
	var required map[string]string
	principal := &domain.Principal{Email: email, Role: in.Role}

	switch in.Role {
	case domain.RoleTourist:
		required = map[string]string{
			"name": in.Name, "email": email, "password": in.Password, "contactNo": in.ContactNo,
		}
		principal.Tourist = &domain.TouristProfile{Name: strings.TrimSpace(in.Name), ContactNo: strings.TrimSpace(in.ContactNo)}
	case domain.RoleAgency:
		required = map[string]string{
			"adminName": in.AdminName, "companyName": in.CompanyName, "email": email, "password": in.Password,
			"adminCNIC": in.AdminCNIC, "companyNTN": in.CompanyNTN, "license": in.License, "city": in.City,
			"province": in.Province, "officeAddress": in.OfficeAddress, "contactNo": in.ContactNo,
		}
		principal.Agency = &domain.AgencyProfile{
			AdminName:     strings.TrimSpace(in.AdminName),
			CompanyName:   strings.TrimSpace(in.CompanyName),
			AdminCNIC:     strings.TrimSpace(in.AdminCNIC),
			CompanyNTN:    strings.TrimSpace(in.CompanyNTN),
			License:       strings.TrimSpace(in.License),
			City:          strings.TrimSpace(in.City),
			Province:      strings.TrimSpace(in.Province),
			OfficeAddress: strings.TrimSpace(in.OfficeAddress),
			ContactNo:     strings.TrimSpace(in.ContactNo),
			Active:        true,
		}
	case domain.RoleAdmin:
		required = map[string]string{"email": email, "password": in.Password}
		principal.Admin = &domain.AdminProfile{Name: strings.TrimSpace(in.Name)}
	default:
		return nil, apperrors.NewValidationError("unknown role", nil)
	}

	if missing := missingFields(required); len(missing) > 0 {
		return nil, missingFieldsError(missing)
	}
	if !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"fields": []string{"email"}})
	}
	return principal, nil
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func missingFieldsError(missing []string) error {
	return apperrors.NewValidationError("all fields are required", map[string]any{"fields": missing})
}

func duplicateError(role domain.Role) error {
	if role == domain.RoleAgency {
		return apperrors.NewDuplicate("agency with this email, company name, CNIC or NTN already exists")
	}
	return apperrors.NewDuplicate(fmt.Sprintf("%s with this email already exists", role))
}

// Summary is the public identity returned by login, register and current.
type Summary struct {
	ID        string
	Role      domain.Role
	Email     string
	Name      string
	ContactNo string
	AdminName string
	NTN       string
	License   string
	Address   string
	Active    *bool
	CreatedAt *time.Time
}

// SummaryFromPrincipal projects a stored principal.
func SummaryFromPrincipal(p *domain.Principal) Summary {
	summary := Summary{ID: p.ID, Role: p.Role, Email: p.Email, Name: p.DisplayName()}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		summary.CreatedAt = &created
	}
	switch {
	case p.Tourist != nil:
		summary.ContactNo = p.Tourist.ContactNo
	case p.Agency != nil:
		active := p.Agency.Active
		summary.ContactNo = p.Agency.ContactNo
		summary.AdminName = p.Agency.AdminName
		summary.NTN = p.Agency.CompanyNTN
		summary.License = p.Agency.License
		summary.Address = p.Agency.Address()
		summary.Active = &active
	}
	return summary
}

// SummaryFromClaims projects verified access-token claims.
func SummaryFromClaims(c *auth.Claims) Summary {
	if c == nil {
		return Summary{}
	}
	summary := Summary{ID: c.PrincipalID(), Role: c.Role, Email: c.Email()}
	switch {
	case c.Tourist != nil:
		summary.Name = c.Tourist.Name
		summary.ContactNo = c.Tourist.ContactNo
	case c.Agency != nil:
		summary.Name = c.Agency.Name
		summary.ContactNo = c.Agency.ContactNo
		summary.AdminName = c.Agency.AdminName
		summary.NTN = c.Agency.NTN
		summary.License = c.Agency.License
		summary.Address = c.Agency.Address
	case c.Admin != nil:
		summary.Name = c.Admin.Name
	}
	return summary
}
