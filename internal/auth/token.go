package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

// TokenKind distinguishes access from refresh tokens inside the payload.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Verification failures. Callers at the HTTP boundary collapse all of them into
// one rejection; the distinction exists for metrics and tests.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenMalformed    = errors.New("token malformed")
)

// TouristClaims is the tourist profile embedded in access tokens.
type TouristClaims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	ContactNo string `json:"contactNo,omitempty"`
}

// AgencyClaims is the agency profile embedded in access tokens.
type AgencyClaims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	AdminName string `json:"adminName"`
	NTN       string `json:"ntn"`
	License   string `json:"license"`
	Address   string `json:"address"`
	ContactNo string `json:"contactNo"`
}

// AdminClaims is the admin profile embedded in access tokens.
type AdminClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Claims describes the JWT payload. Refresh tokens carry only the registered
// claims plus role and kind; access tokens also carry the profile variant that
// matches Role.
type Claims struct {
	Role    domain.Role    `json:"role"`
	Kind    TokenKind      `json:"typ"`
	Tourist *TouristClaims `json:"tourist,omitempty"`
	Agency  *AgencyClaims  `json:"agency,omitempty"`
	Admin   *AdminClaims   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject the token was minted for.
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// Email returns the handle carried by the access profile, if any.
func (c *Claims) Email() string {
	switch {
	case c.Tourist != nil:
		return c.Tourist.Email
	case c.Agency != nil:
		return c.Agency.Email
	case c.Admin != nil:
		return c.Admin.Email
	}
	return ""
}

func (c *Claims) checkShape(kind TokenKind) error {
	if c.Kind != kind {
		return fmt.Errorf("%w: expected %s token", ErrTokenMalformed, kind)
	}
	if !c.Role.Valid() {
		return fmt.Errorf("%w: unknown role", ErrTokenMalformed)
	}
	if c.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	profiles := 0
	for _, set := range []bool{c.Tourist != nil, c.Agency != nil, c.Admin != nil} {
		if set {
			profiles++
		}
	}
	if kind == TokenKindRefresh {
		if profiles != 0 {
			return fmt.Errorf("%w: refresh token carries profile", ErrTokenMalformed)
		}
		return nil
	}

	matches := (c.Role == domain.RoleTourist && c.Tourist != nil) ||
		(c.Role == domain.RoleAgency && c.Agency != nil) ||
		(c.Role == domain.RoleAdmin && c.Admin != nil)
	if profiles != 1 || !matches {
		return fmt.Errorf("%w: profile does not match role", ErrTokenMalformed)
	}
	return nil
}

// AccessClaimsFor builds the access payload for a principal.
func AccessClaimsFor(p *domain.Principal) Claims {
	claims := Claims{Role: p.Role, RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID}}
	switch p.Role {
	case domain.RoleTourist:
		tc := &TouristClaims{Email: p.Email}
		if p.Tourist != nil {
			tc.Name = p.Tourist.Name
			tc.ContactNo = p.Tourist.ContactNo
		}
		claims.Tourist = tc
	case domain.RoleAgency:
		ac := &AgencyClaims{Email: p.Email}
		if p.Agency != nil {
			ac.Name = p.Agency.CompanyName
			ac.AdminName = p.Agency.AdminName
			ac.NTN = p.Agency.CompanyNTN
			ac.License = p.Agency.License
			ac.Address = p.Agency.Address()
			ac.ContactNo = p.Agency.ContactNo
		}
		claims.Agency = ac
	case domain.RoleAdmin:
		ad := &AdminClaims{Email: p.Email}
		if p.Admin != nil {
			ad.Name = p.Admin.Name
		}
		claims.Admin = ad
	}
	return claims
}

// RefreshClaimsFor builds the minimal refresh payload for a principal.
func RefreshClaimsFor(p *domain.Principal) Claims {
	return Claims{Role: p.Role, RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID}}
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(tc *TokenCodec) {
		if now != nil {
			tc.now = now
		}
	}
}

// TokenCodec signs and verifies one kind of token with its own secret and lifetime.
type TokenCodec struct {
	kind   TokenKind
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec for kind.
func NewTokenCodec(kind TokenKind, secret string, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%s token secret is empty", kind)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s token ttl must be positive", kind)
	}
	tc := &TokenCodec{kind: kind, secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(tc)
	}
	return tc, nil
}

// TTL returns the configured lifetime.
func (tc *TokenCodec) TTL() time.Duration {
	return tc.ttl
}

// Mint stamps iat, exp, jti and kind onto claims and signs them.
func (tc *TokenCodec) Mint(claims Claims) (string, time.Time, error) {
	now := tc.now()
	claims.Kind = tc.kind
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(tc.ttl))
	if err := claims.checkShape(tc.kind); err != nil {
		return "", time.Time{}, err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(tc.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tc.kind, err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, then expiry, then payload shape.
func (tc *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tc.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	if !tc.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if err := claims.checkShape(tc.kind); err != nil {
		return nil, err
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

// RejectReason maps a verification error to a metrics label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	}
	return "other"
}

// TokenManager owns the access and refresh codecs.
type TokenManager struct {
	access  *TokenCodec
	refresh *TokenCodec
}

// NewTokenManager builds both codecs. The two secrets must differ so neither can
// forge the other kind.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) (*TokenManager, error) {
	if accessSecret != "" && accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	access, err := NewTokenCodec(TokenKindAccess, accessSecret, accessTTL, opts...)
	if err != nil {
		return nil, err
	}
	refresh, err := NewTokenCodec(TokenKindRefresh, refreshSecret, refreshTTL, opts...)
	if err != nil {
		return nil, err
	}
	return &TokenManager{access: access, refresh: refresh}, nil
}

// IssuePair mints a fresh access/refresh pair for p.
func (tm *TokenManager) IssuePair(p *domain.Principal) (domain.TokenPair, error) {
	accessToken, accessExp, err := tm.access.Mint(AccessClaimsFor(p))
	if err != nil {
		return domain.TokenPair{}, err
	}
	refreshToken, refreshExp, err := tm.refresh.Mint(RefreshClaimsFor(p))
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess verifies an access token.
func (tm *TokenManager) VerifyAccess(token string) (*Claims, error) {
	return tm.access.Verify(token)
}

// VerifyRefresh verifies a refresh token.
func (tm *TokenManager) VerifyRefresh(token string) (*Claims, error) {
	return tm.refresh.Verify(token)
}

// FingerprintToken returns the SHA-256 fingerprint stored in place of a raw
// refresh token.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
