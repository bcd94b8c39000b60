package smarttag_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/grimsteel/smarttag-go/smarttag"
)

func TestCredentialsAuthenticated(t *testing.T) {
	require.False(t, smarttag.Credentials{}.Authenticated())
	require.True(t, smarttag.Credentials{AccessToken: "tok"}.Authenticated())
}

func TestAccessTokenExpiry(t *testing.T) {
	expiry := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	// The provider signs with its own key; only the exp claim matters here.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": expiry.Unix(),
		"sub": "parent@example.com",
	})
	signed, err := token.SignedString([]byte("not-the-real-key"))
	require.NoError(t, err)

	creds := smarttag.Credentials{AccessToken: signed}
	got, err := creds.AccessTokenExpiry()
	require.NoError(t, err)
	require.True(t, expiry.Equal(got))
}

func TestAccessTokenExpiryNotAuthenticated(t *testing.T) {
	_, err := smarttag.Credentials{}.AccessTokenExpiry()
	require.ErrorIs(t, err, smarttag.ErrAuth)
}

func TestAccessTokenExpiryOpaqueToken(t *testing.T) {
	creds := smarttag.Credentials{AccessToken: "not-a-jwt"}
	_, err := creds.AccessTokenExpiry()
	require.Error(t, err)
}
