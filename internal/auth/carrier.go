package auth

import (
	"encoding/json"
	"errors"
	"strings"
)

// Cookie names used to carry the token pair.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	RefreshTokenHeader = "X-Refresh-Token"
)

// ErrTokenInQuery is returned when a token is offered as a URL query parameter.
var ErrTokenInQuery = errors.New("token supplied in query string")

var queryTokenKeys = []string{"access_token", "refresh_token", "accessToken", "refreshToken", "token"}

// Carrier reads named values from an inbound request. *fiber.Ctx satisfies it.
type Carrier interface {
	Cookies(key string, defaultValue ...string) string
	Get(key string, defaultValue ...string) string
	Query(key string, defaultValue ...string) string
	Body() []byte
}

// AccessTokenFrom extracts the access token: cookie first, then bearer header.
func AccessTokenFrom(c Carrier) (string, error) {
	if err := rejectQueryTokens(c); err != nil {
		return "", err
	}
	if token := strings.TrimSpace(c.Cookies(AccessTokenCookie)); token != "" {
		return token, nil
	}
	return bearerToken(c.Get("Authorization")), nil
}

// RefreshTokenFrom extracts the refresh token: cookie, then JSON body field
// refreshToken, then the X-Refresh-Token header.
func RefreshTokenFrom(c Carrier) (string, error) {
	if err := rejectQueryTokens(c); err != nil {
		return "", err
	}
	if token := strings.TrimSpace(c.Cookies(RefreshTokenCookie)); token != "" {
		return token, nil
	}
	if body := c.Body(); len(body) > 0 {
		var payload struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if token := strings.TrimSpace(payload.RefreshToken); token != "" {
				return token, nil
			}
		}
	}
	return strings.TrimSpace(c.Get(RefreshTokenHeader)), nil
}

func rejectQueryTokens(c Carrier) error {
	for _, key := range queryTokenKeys {
		if c.Query(key) != "" {
			return ErrTokenInQuery
		}
	}
	return nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
