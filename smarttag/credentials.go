package smarttag

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the access/refresh token pair held by a Client. The zero
// value means unauthenticated. The pair is updated only by Login and the
// internal refresh; hosts persist it across restarts and hand it back via
// WithCredentials or SetCredentials.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Authenticated reports whether an access token is held.
func (c Credentials) Authenticated() bool {
	return c.AccessToken != ""
}

// canRefresh reports whether both tokens needed by the refresh endpoint are
// held.
func (c Credentials) canRefresh() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// AccessTokenExpiry reads the exp claim from the bearer token without
// verifying its signature. The provider signs its tokens with a key we never
// see, so this is only usable as a scheduling hint, never for validation.
func (c Credentials) AccessTokenExpiry() (time.Time, error) {
	if c.AccessToken == "" {
		return time.Time{}, ErrAuth
	}
	token, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, err
	}
	return exp.Time, nil
}
