package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourbook/tour-booking-service/internal/auth"
	"github.com/tourbook/tour-booking-service/internal/config"
	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/events"
	"github.com/tourbook/tour-booking-service/internal/repository"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

type testEnv struct {
	svc      *SessionService
	store    repository.CredentialStore
	tokens   *auth.TokenManager
	hasher   *auth.PasswordHasher
	attempts *auth.MemoryAttemptLimiter

	mu     sync.Mutex
	events []events.Event
}

func newTestEnv(t *testing.T, cfg config.AuthConfig) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokenManager("access-secret", "refresh-secret", 50*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		store:    repository.NewMemoryCredentialStore(),
		tokens:   tokens,
		hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		attempts: auth.NewMemoryAttemptLimiter(3, time.Minute, nil),
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range events.SessionEventTypes {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.events = append(env.events, e)
			return nil
		})
	}

	env.svc, err = NewSessionService(cfg, SessionDependencies{
		Store:      env.store,
		Tokens:     tokens,
		Hasher:     env.hasher,
		Attempts:   env.attempts,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) eventTypes() []events.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var types []events.EventType
	for _, ev := range e.events {
		types = append(types, ev.Type)
	}
	return types
}

func agencyInput() RegisterInput {
	return RegisterInput{
		Role:          domain.RoleAgency,
		Email:         "a@x.com",
		Password:      "s",
		AdminName:     "Ali",
		CompanyName:   "Karakoram Trails",
		AdminCNIC:     "35202-1",
		CompanyNTN:    "NTN-1",
		License:       "LIC-1",
		City:          "Gilgit",
		Province:      "GB",
		OfficeAddress: "12 Mall Road",
		ContactNo:     "0300",
	}
}

func touristInput() RegisterInput {
	return RegisterInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw", Name: "Sara", ContactNo: "0311"}
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	require.Equal(t, code, de.Code, de.Message)
	return de
}

func callerFor(t *testing.T, tokens *auth.TokenManager, token string, refresh bool) *auth.Principal {
	t.Helper()
	verify := tokens.VerifyAccess
	if refresh {
		verify = tokens.VerifyRefresh
	}
	claims, err := verify(token)
	require.NoError(t, err)
	return &auth.Principal{ID: claims.PrincipalID(), Role: claims.Role, Claims: claims}
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()

	in := agencyInput()
	in.License = ""
	in.City = "  "
	de := requireCode(t, mustFail(env.svc.Register(ctx, in)), apperrors.CodeValidation)
	assert.Equal(t, 400, de.HTTPStatus)
	assert.Equal(t, []string{"city", "license"}, de.Details["fields"])

	tourist := touristInput()
	tourist.ContactNo = ""
	requireCode(t, mustFail(env.svc.Register(ctx, tourist)), apperrors.CodeValidation)

	requireCode(t, mustFail(env.svc.Register(ctx, RegisterInput{Role: domain.RoleAdmin, Email: "x"})), apperrors.CodeValidation)
	requireCode(t, mustFail(env.svc.Register(ctx, RegisterInput{Role: "guide", Email: "g@x.com", Password: "p"})), apperrors.CodeValidation)

	long := touristInput()
	long.Password = strings.Repeat("x", 73)
	requireCode(t, mustFail(env.svc.Register(ctx, long)), apperrors.CodeValidation)
}

func mustFail(_ *domain.Principal, err error) error { return err }

func TestRegister_HashesAndRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()

	p, err := env.svc.Register(ctx, agencyInput())
	require.NoError(t, err)
	assert.NotEqual(t, "s", p.PasswordHash)
	assert.True(t, env.hasher.Verify("s", p.PasswordHash))
	assert.Nil(t, p.RefreshTokenHash)
	assert.True(t, p.Agency.Active)

	dupNTN := agencyInput()
	dupNTN.Email = "b@x.com"
	dupNTN.CompanyName = "Other"
	dupNTN.AdminCNIC = "35202-2"
	de := requireCode(t, mustFail(env.svc.Register(ctx, dupNTN)), apperrors.CodeDuplicate)
	assert.Equal(t, 400, de.HTTPStatus)

	sameEmailOtherRole := touristInput()
	sameEmailOtherRole.Email = "A@X.com"
	_, err = env.svc.Register(ctx, sameEmailOtherRole)
	require.NoError(t, err, "roles are independent namespaces")

	_, err = env.svc.Register(ctx, sameEmailOtherRole)
	requireCode(t, err, apperrors.CodeDuplicate)

	_, err = env.svc.Register(ctx, touristInput())
	require.NoError(t, err)
	_, err = env.svc.Register(ctx, touristInput())
	requireCode(t, err, apperrors.CodeDuplicate)
}

func TestLogin_IssuesPairForRegisteredRole(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()

	for _, in := range []RegisterInput{agencyInput(), touristInput(), {Role: domain.RoleAdmin, Email: "root@x.com", Password: "pw"}} {
		t.Run(string(in.Role), func(t *testing.T) {
			p, err := env.svc.Register(ctx, in)
			require.NoError(t, err)

			res, err := env.svc.Login(ctx, LoginInput{Role: in.Role, Email: in.Email, Password: in.Password})
			require.NoError(t, err)
			assert.Equal(t, p.ID, res.Summary.ID)

			claims, err := env.tokens.VerifyAccess(res.Tokens.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, in.Role, claims.Role)
			assert.Equal(t, p.ID, claims.PrincipalID())

			stored, err := env.store.GetByID(ctx, in.Role, p.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.RefreshTokenHash)
			assert.Equal(t, auth.FingerprintToken(res.Tokens.RefreshToken), *stored.RefreshTokenHash)
		})
	}
}

func TestLogin_AgencyProfileInToken(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, agencyInput())
	require.NoError(t, err)

	res, err := env.svc.Login(ctx, LoginInput{Role: domain.RoleAgency, Email: " A@x.com", Password: "s"})
	require.NoError(t, err)
	assert.Equal(t, "12 Mall Road, Gilgit, GB, Pakistan", res.Summary.Address)

	claims, err := env.tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, claims.Agency)
	assert.Equal(t, "Karakoram Trails", claims.Agency.Name)
	assert.Equal(t, "LIC-1", claims.Agency.License)
}

func TestLogin_UnknownAndWrongSecretAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, agencyInput())
	require.NoError(t, err)

	for _, role := range domain.Roles {
		_, wrong := env.svc.Login(ctx, LoginInput{Role: role, Email: "a@x.com", Password: "S"})
		_, unknown := env.svc.Login(ctx, LoginInput{Role: role, Email: "nobody@x.com", Password: "s"})

		w := requireCode(t, wrong, apperrors.CodeInvalidCredentials)
		u := requireCode(t, unknown, apperrors.CodeInvalidCredentials)
		assert.Equal(t, 404, w.HTTPStatus)
		assert.Equal(t, w.Message, u.Message)
		assert.Equal(t, w.Details, u.Details)
	}
}

func TestLogin_Validation(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	_, err := env.svc.Login(context.Background(), LoginInput{Role: domain.RoleTourist, Email: "t@x.com"})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestLogin_InactiveAgency(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()

	hash, err := env.hasher.Hash("s")
	require.NoError(t, err)
	require.NoError(t, env.store.Create(ctx, &domain.Principal{
		Email:        "off@x.com",
		PasswordHash: hash,
		Role:         domain.RoleAgency,
		Agency:       &domain.AgencyProfile{CompanyName: "Off", AdminCNIC: "c", CompanyNTN: "n", Active: false},
	}))

	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleAgency, Email: "off@x.com", Password: "s"})
	de := requireCode(t, err, apperrors.CodeInactive)
	assert.Equal(t, 400, de.HTTPStatus)

	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleAgency, Email: "off@x.com", Password: "wrong"})
	requireCode(t, err, apperrors.CodeInactive)

	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleAgency, Email: "nobody@x.com", Password: "wrong"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, touristInput())
	require.NoError(t, err)

	bad := LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "nope"}
	for i := 0; i < 3; i++ {
		_, err := env.svc.Login(ctx, bad)
		requireCode(t, err, apperrors.CodeInvalidCredentials)
	}

	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"})
	de := requireCode(t, err, apperrors.CodeTooManyAttempts)
	assert.Equal(t, 429, de.HTTPStatus)

	// Other roles with the same handle are throttled separately.
	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleAgency, Email: "t@x.com", Password: "pw"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)
}

func TestLogin_SuccessResetsFailures(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, touristInput())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _ = env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "nope"})
	}
	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"})
	require.NoError(t, err)

	wait, err := env.attempts.Locked(ctx, "tourist:t@x.com")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, agencyInput())
	require.NoError(t, err)

	login, err := env.svc.Login(ctx, LoginInput{Role: domain.RoleAgency, Email: "a@x.com", Password: "s"})
	require.NoError(t, err)
	oldRefresh := login.Tokens.RefreshToken
	caller := callerFor(t, env.tokens, oldRefresh, true)

	pair, err := env.svc.Refresh(ctx, caller, oldRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, oldRefresh, pair.RefreshToken)
	_, err = env.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, caller, oldRefresh)
	de := requireCode(t, err, apperrors.CodeAuthRejected)
	assert.Equal(t, 401, de.HTTPStatus)

	_, err = env.svc.Refresh(ctx, callerFor(t, env.tokens, pair.RefreshToken, true), pair.RefreshToken)
	require.NoError(t, err)

	assert.Contains(t, env.eventTypes(), events.EventRefreshRejected)
}

func TestRefresh_ConcurrentCallsRotateOnce(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, touristInput())
	require.NoError(t, err)
	login, err := env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"})
	require.NoError(t, err)
	caller := callerFor(t, env.tokens, login.Tokens.RefreshToken, true)

	const n = 8
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.svc.Refresh(ctx, caller, login.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestRefresh_UnknownPrincipal(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	pair, err := env.tokens.IssuePair(&domain.Principal{
		ID: "ghost", Role: domain.RoleTourist, Tourist: &domain.TouristProfile{},
	})
	require.NoError(t, err)

	_, err = env.svc.Refresh(context.Background(), callerFor(t, env.tokens, pair.RefreshToken, true), pair.RefreshToken)
	requireCode(t, err, apperrors.CodeAuthRejected)
}

func TestLogout_RevokesRefresh(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, touristInput())
	require.NoError(t, err)
	login, err := env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"})
	require.NoError(t, err)

	accessCaller := callerFor(t, env.tokens, login.Tokens.AccessToken, false)
	require.NoError(t, env.svc.Logout(ctx, accessCaller))
	require.NoError(t, env.svc.Logout(ctx, accessCaller), "logout is idempotent")

	_, err = env.svc.Refresh(ctx, callerFor(t, env.tokens, login.Tokens.RefreshToken, true), login.Tokens.RefreshToken)
	requireCode(t, err, apperrors.CodeAuthRejected)

	// The access token itself stays valid until it expires.
	_, err = env.tokens.VerifyAccess(login.Tokens.AccessToken)
	require.NoError(t, err)
}

func TestLogin_SupersedesPreviousRefresh(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, touristInput())
	require.NoError(t, err)

	in := LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"}
	first, err := env.svc.Login(ctx, in)
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, in)
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, callerFor(t, env.tokens, first.Tokens.RefreshToken, true), first.Tokens.RefreshToken)
	requireCode(t, err, apperrors.CodeAuthRejected)
}

func TestReenter(t *testing.T) {
	ctx := context.Background()
	for _, allow := range []bool{false, true} {
		env := newTestEnv(t, config.AuthConfig{AllowSessionReentry: allow})
		_, err := env.svc.Register(ctx, touristInput())
		require.NoError(t, err)
		login, err := env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"})
		require.NoError(t, err)
		caller := callerFor(t, env.tokens, login.Tokens.AccessToken, false)

		summary, ok := env.svc.Reenter(caller, domain.RoleTourist)
		assert.Equal(t, allow, ok)
		if allow {
			assert.Equal(t, caller.ID, summary.ID)
			assert.Equal(t, "Sara", summary.Name)
		}

		_, ok = env.svc.Reenter(caller, domain.RoleAgency)
		assert.False(t, ok, "a token of another role never short-circuits")
		_, ok = env.svc.Reenter(nil, domain.RoleTourist)
		assert.False(t, ok)
	}
}

func TestCurrent_ProjectsClaims(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	pair, err := env.tokens.IssuePair(&domain.Principal{
		ID: "admin-1", Email: "root@x.com", Role: domain.RoleAdmin, Admin: &domain.AdminProfile{Name: "Root"},
	})
	require.NoError(t, err)

	summary := env.svc.Current(callerFor(t, env.tokens, pair.AccessToken, false))
	assert.Equal(t, "admin-1", summary.ID)
	assert.Equal(t, domain.RoleAdmin, summary.Role)
	assert.Equal(t, "root@x.com", summary.Email)
	assert.Equal(t, "Root", summary.Name)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()

	created, err := env.svc.EnsureBootstrapAdmin(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = env.svc.EnsureBootstrapAdmin(ctx, "root@x.com", "pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.svc.EnsureBootstrapAdmin(ctx, "ROOT@x.com", "other")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = env.svc.Login(ctx, LoginInput{Role: domain.RoleAdmin, Email: "root@x.com", Password: "pw"})
	require.NoError(t, err)
}

func TestSessionEvents(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})
	ctx := context.Background()
	_, err := env.svc.Register(ctx, touristInput())
	require.NoError(t, err)
	_, _ = env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "bad"})
	login, err := env.svc.Login(ctx, LoginInput{Role: domain.RoleTourist, Email: "t@x.com", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Logout(ctx, callerFor(t, env.tokens, login.Tokens.AccessToken, false)))

	assert.Equal(t, []events.EventType{
		events.EventRegistered,
		events.EventLoginFailed,
		events.EventLoginSucceeded,
		events.EventLoggedOut,
	}, env.eventTypes())
}
