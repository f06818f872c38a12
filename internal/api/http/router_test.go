package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourbook/tour-booking-service/internal/api/http/handlers"
	"github.com/tourbook/tour-booking-service/internal/auth"
	"github.com/tourbook/tour-booking-service/internal/config"
	"github.com/tourbook/tour-booking-service/internal/domain"
	"github.com/tourbook/tour-booking-service/internal/events"
	"github.com/tourbook/tour-booking-service/internal/observability"
	"github.com/tourbook/tour-booking-service/internal/repository"
	"github.com/tourbook/tour-booking-service/internal/service"
	"github.com/tourbook/tour-booking-service/internal/worker"
	apperrors "github.com/tourbook/tour-booking-service/pkg/util/errorutil"
)

type testServer struct {
	app   *fiber.App
	store repository.CredentialStore
	tours repository.TourRepository
}

func newTestServer(t *testing.T, rl config.RateLimitConfig) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	tokens, err := auth.NewTokenManager("access-secret", "refresh-secret", 50*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	store := repository.NewMemoryCredentialStore()
	tours := repository.NewMemoryTourRepository()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(dispatcher, logger, metrics)

	sessions, err := service.NewSessionService(config.AuthConfig{}, service.SessionDependencies{
		Store:      store,
		Tokens:     tokens,
		Hasher:     auth.NewPasswordHasher(bcrypt.MinCost),
		Attempts:   auth.NewMemoryAttemptLimiter(5, time.Minute, nil),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	require.NoError(t, err)
	_, err = sessions.EnsureBootstrapAdmin(context.Background(), "root@x.com", "root-pw")
	require.NoError(t, err)

	sessionHandlers := map[domain.Role]*handlers.SessionHandler{}
	for _, role := range domain.Roles {
		sessionHandlers[role] = handlers.NewSessionHandler(sessions, role, true)
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:    handlers.NewHealthHandler("tour-booking-service", "test", nil),
		Sessions:  sessionHandlers,
		Tours:     handlers.NewToursHandler(service.NewTourService(store, tours)),
		Gate:      auth.NewAuthGate(tokens, logger, metrics),
		Metrics:   metrics,
		RateLimit: rl,
	})
	return &testServer{app: app, store: store, tours: tours}
}

func generousLimit() config.RateLimitConfig {
	return config.RateLimitConfig{RequestsPerMinute: 10000, Burst: 10000}
}

type response struct {
	status  int
	body    []byte
	cookies map[string]*nethttp.Cookie
	header  nethttp.Header
}

type requestOpt func(*nethttp.Request)

func withBearer(token string) requestOpt {
	return func(r *nethttp.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name, value string) requestOpt {
	return func(r *nethttp.Request) { r.AddCookie(&nethttp.Cookie{Name: name, Value: value}) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOpt) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	cookies := map[string]*nethttp.Cookie{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c
	}
	return response{status: resp.StatusCode, body: raw, cookies: cookies, header: resp.Header}
}

type loginBody struct {
	Data struct {
		Principal struct {
			ID      string `json:"id"`
			Role    string `json:"role"`
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"principal"`
		Tokens struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"tokens"`
	} `json:"data"`
}

type pairBody struct {
	Data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func agencyPayload() map[string]string {
	return map[string]string{
		"adminName":     "Ali",
		"companyName":   "Karakoram Trails",
		"email":         "a@x.com",
		"password":      "s",
		"adminCNIC":     "35202-1",
		"companyNTN":    "NTN-1",
		"license":       "LIC-1",
		"city":          "Gilgit",
		"province":      "GB",
		"officeAddress": "12 Mall Road",
		"contactNo":     "0300",
	}
}

func (s *testServer) login(t *testing.T, prefix, email, password string) loginBody {
	t.Helper()
	resp := s.do(t, nethttp.MethodPost, "/api/"+prefix+"/login", map[string]string{"email": email, "password": password})
	require.Equal(t, nethttp.StatusOK, resp.status, string(resp.body))
	return decode[loginBody](t, resp.body)
}

func TestAgencySessionScenario(t *testing.T) {
	s := newTestServer(t, generousLimit())

	resp := s.do(t, nethttp.MethodPost, "/api/agencies/register", agencyPayload())
	require.Equal(t, nethttp.StatusCreated, resp.status, string(resp.body))

	resp = s.do(t, nethttp.MethodPost, "/api/agencies/login", map[string]string{"email": "a@x.com", "password": "s"})
	require.Equal(t, nethttp.StatusOK, resp.status, string(resp.body))
	login := decode[loginBody](t, resp.body)
	assert.Equal(t, "agency", login.Data.Principal.Role)
	assert.Equal(t, "12 Mall Road, Gilgit, GB, Pakistan", login.Data.Principal.Address)
	require.NotEmpty(t, login.Data.Tokens.RefreshToken)

	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie} {
		cookie, ok := resp.cookies[name]
		require.True(t, ok, name)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, nethttp.SameSiteStrictMode, cookie.SameSite)
	}
	assert.Equal(t, login.Data.Tokens.RefreshToken, resp.cookies[auth.RefreshTokenCookie].Value)

	oldRefresh := login.Data.Tokens.RefreshToken
	resp = s.do(t, nethttp.MethodPost, "/api/agencies/refresh-token", map[string]string{"refreshToken": oldRefresh})
	require.Equal(t, nethttp.StatusOK, resp.status, string(resp.body))
	fresh := decode[pairBody](t, resp.body)
	assert.NotEqual(t, oldRefresh, fresh.Data.RefreshToken)

	resp = s.do(t, nethttp.MethodPost, "/api/agencies/refresh-token", nil, withCookie(auth.RefreshTokenCookie, oldRefresh))
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status)
	assert.Equal(t, apperrors.CodeAuthRejected, decode[errorBody](t, resp.body).Error.Code)

	resp = s.do(t, nethttp.MethodGet, "/api/agencies/current-agency", nil, withCookie(auth.AccessTokenCookie, fresh.Data.AccessToken))
	require.Equal(t, nethttp.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), `"name":"Karakoram Trails"`)
}

func TestLogoutThenRefreshIsRejected(t *testing.T) {
	s := newTestServer(t, generousLimit())
	resp := s.do(t, nethttp.MethodPost, "/api/tourists/register",
		map[string]string{"name": "Sara", "email": "t@x.com", "password": "pw", "contactNo": "0311"})
	require.Equal(t, nethttp.StatusCreated, resp.status, string(resp.body))
	login := s.login(t, "tourists", "t@x.com", "pw")

	resp = s.do(t, nethttp.MethodPost, "/api/tourists/logout", nil, withBearer(login.Data.Tokens.AccessToken))
	require.Equal(t, nethttp.StatusOK, resp.status, string(resp.body))
	cleared, ok := resp.cookies[auth.RefreshTokenCookie]
	require.True(t, ok)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Expires.Before(time.Now()))

	resp = s.do(t, nethttp.MethodPost, "/api/tourists/refresh-token", nil,
		func(r *nethttp.Request) { r.Header.Set(auth.RefreshTokenHeader, login.Data.Tokens.RefreshToken) })
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status)
}

func TestRoleMismatchIsRejected(t *testing.T) {
	s := newTestServer(t, generousLimit())
	resp := s.do(t, nethttp.MethodPost, "/api/tourists/register",
		map[string]string{"name": "Sara", "email": "t@x.com", "password": "pw", "contactNo": "0311"})
	require.Equal(t, nethttp.StatusCreated, resp.status)
	login := s.login(t, "tourists", "t@x.com", "pw")

	resp = s.do(t, nethttp.MethodGet, "/api/agencies/current-agency", nil, withBearer(login.Data.Tokens.AccessToken))
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status)
	assert.Equal(t, apperrors.CodeAuthRejected, decode[errorBody](t, resp.body).Error.Code)

	resp = s.do(t, nethttp.MethodPost, "/api/agencies/refresh-token",
		map[string]string{"refreshToken": login.Data.Tokens.RefreshToken})
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status)

	resp = s.do(t, nethttp.MethodGet, "/api/tourists/current-tourist", nil, withBearer(login.Data.Tokens.RefreshToken))
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status, "refresh token is not an access token")
}

func TestCurrentRoutesAreNamedPerRole(t *testing.T) {
	s := newTestServer(t, generousLimit())
	resp := s.do(t, nethttp.MethodPost, "/api/tourists/register",
		map[string]string{"name": "Sara", "email": "t@x.com", "password": "pw", "contactNo": "0311"})
	require.Equal(t, nethttp.StatusCreated, resp.status)
	login := s.login(t, "tourists", "t@x.com", "pw")

	resp = s.do(t, nethttp.MethodGet, "/api/tourists/current-tourist", nil, withBearer(login.Data.Tokens.AccessToken))
	assert.Equal(t, nethttp.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), `"email":"t@x.com"`)

	resp = s.do(t, nethttp.MethodGet, "/api/tourists/current", nil, withBearer(login.Data.Tokens.AccessToken))
	assert.Equal(t, nethttp.StatusNotFound, resp.status)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, generousLimit())
	resp := s.do(t, nethttp.MethodPost, "/api/agencies/register", agencyPayload())
	require.Equal(t, nethttp.StatusCreated, resp.status)

	wrong := s.do(t, nethttp.MethodPost, "/api/agencies/login", map[string]string{"email": "a@x.com", "password": "nope"})
	unknown := s.do(t, nethttp.MethodPost, "/api/agencies/login", map[string]string{"email": "b@x.com", "password": "s"})

	assert.Equal(t, nethttp.StatusNotFound, wrong.status)
	assert.Equal(t, nethttp.StatusNotFound, unknown.status)
	assert.JSONEq(t, string(wrong.body), string(unknown.body))
	assert.Equal(t, apperrors.CodeInvalidCredentials, decode[errorBody](t, wrong.body).Error.Code)

	resp = s.do(t, nethttp.MethodPost, "/api/agencies/login", map[string]string{"email": "a@x.com"})
	assert.Equal(t, nethttp.StatusBadRequest, resp.status)
}

func TestRegisterValidationAndDuplicate(t *testing.T) {
	s := newTestServer(t, generousLimit())

	payload := agencyPayload()
	delete(payload, "license")
	resp := s.do(t, nethttp.MethodPost, "/api/agencies/register", payload)
	assert.Equal(t, nethttp.StatusBadRequest, resp.status)
	assert.Equal(t, apperrors.CodeValidation, decode[errorBody](t, resp.body).Error.Code)

	resp = s.do(t, nethttp.MethodPost, "/api/agencies/register", agencyPayload())
	require.Equal(t, nethttp.StatusCreated, resp.status)
	resp = s.do(t, nethttp.MethodPost, "/api/agencies/register", agencyPayload())
	assert.Equal(t, nethttp.StatusBadRequest, resp.status)
	assert.Equal(t, apperrors.CodeDuplicate, decode[errorBody](t, resp.body).Error.Code)
}

func TestQueryTokenIsRejected(t *testing.T) {
	s := newTestServer(t, generousLimit())
	login := s.login(t, "admins", "root@x.com", "root-pw")

	resp := s.do(t, nethttp.MethodGet, "/api/admins/current-admin?access_token="+login.Data.Tokens.AccessToken, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status)
}

func TestAdminRegistrationRequiresAdmin(t *testing.T) {
	s := newTestServer(t, generousLimit())
	payload := map[string]string{"email": "second@x.com", "password": "pw", "name": "Second"}

	resp := s.do(t, nethttp.MethodPost, "/api/admins/register", payload)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status)

	login := s.login(t, "admins", "root@x.com", "root-pw")
	resp = s.do(t, nethttp.MethodPost, "/api/admins/register", payload, withBearer(login.Data.Tokens.AccessToken))
	assert.Equal(t, nethttp.StatusCreated, resp.status, string(resp.body))

	s.login(t, "admins", "second@x.com", "pw")
}

func TestListOwnedTours(t *testing.T) {
	s := newTestServer(t, generousLimit())
	resp := s.do(t, nethttp.MethodPost, "/api/agencies/register", agencyPayload())
	require.Equal(t, nethttp.StatusCreated, resp.status)
	login := s.login(t, "agencies", "a@x.com", "s")
	agencyID := login.Data.Principal.ID

	ctx := context.Background()
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.tours.Create(ctx, &domain.Tour{AgencyID: agencyID, LocationName: "Hunza", CreatedAt: base}))
	require.NoError(t, s.tours.Create(ctx, &domain.Tour{AgencyID: agencyID, LocationName: "Skardu", CreatedAt: base.Add(time.Hour)}))

	resp = s.do(t, nethttp.MethodGet, "/api/agencies/current-agency/tours/"+agencyID, nil, withBearer(login.Data.Tokens.AccessToken))
	require.Equal(t, nethttp.StatusOK, resp.status, string(resp.body))
	list := decode[struct {
		Data []struct {
			LocationName string `json:"locationName"`
		} `json:"data"`
	}](t, resp.body)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "Skardu", list.Data[0].LocationName)

	resp = s.do(t, nethttp.MethodGet, "/api/agencies/current-agency/tours/someone-else", nil, withBearer(login.Data.Tokens.AccessToken))
	assert.Equal(t, nethttp.StatusUnauthorized, resp.status, "ownership mismatch must not look like not found")
}

func TestUnknownRouteRendersError(t *testing.T) {
	s := newTestServer(t, generousLimit())
	resp := s.do(t, nethttp.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, nethttp.StatusNotFound, resp.status)
	assert.Equal(t, apperrors.CodeNotFound, decode[errorBody](t, resp.body).Error.Code)
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	s := newTestServer(t, config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2})
	creds := map[string]string{"email": "root@x.com", "password": "wrong"}

	for i := 0; i < 2; i++ {
		resp := s.do(t, nethttp.MethodPost, "/api/admins/login", creds)
		assert.Equal(t, nethttp.StatusNotFound, resp.status)
	}
	resp := s.do(t, nethttp.MethodPost, "/api/admins/login", creds)
	assert.Equal(t, nethttp.StatusTooManyRequests, resp.status)
	assert.Equal(t, apperrors.CodeRateLimited, decode[errorBody](t, resp.body).Error.Code)
	assert.NotEmpty(t, resp.header.Get(fiber.HeaderRetryAfter))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, generousLimit())

	resp := s.do(t, nethttp.MethodGet, "/health/live", nil)
	assert.Equal(t, nethttp.StatusOK, resp.status)
	resp = s.do(t, nethttp.MethodGet, "/health/ready", nil)
	assert.Equal(t, nethttp.StatusOK, resp.status)

	s.do(t, nethttp.MethodGet, "/api/tourists/current-tourist", nil)
	resp = s.do(t, nethttp.MethodGet, "/metrics", nil)
	require.Equal(t, nethttp.StatusOK, resp.status)
	assert.Contains(t, string(resp.body), `tourbook_auth_rejections_total{reason="missing"} 1`)
	assert.Contains(t, string(resp.body), `tourbook_auth_events_total{event="registered",role="admin"} 1`)
}
