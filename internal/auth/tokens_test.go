package auth

import (
	"strconv"
	"testing"
	"time"

	"parley/internal/config"
	"parley/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer(&config.Config{
		AccessTokenSecret:  "test-access-secret-test-access-secret",
		RefreshTokenSecret: "test-refresh-secret-test-refresh-secret",
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.IssueAccessToken(42)
	require.NoError(t, err)

	userID, err := issuer.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, userID)
}

func TestRefreshTokenCarriesSession(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.IssueRefreshToken(7, 99)
	require.NoError(t, err)

	userID, sessionID, err := issuer.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 7, userID)
	assert.EqualValues(t, 99, sessionID)
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	issuer := testIssuer()

	access, err := issuer.IssueAccessToken(1)
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken(1, 2)
	require.NoError(t, err)

	_, _, err = issuer.VerifyRefreshToken(access)
	require.Error(t, err)

	_, err = issuer.VerifyAccessToken(refresh)
	require.Error(t, err)
}

func TestExpiredTokenIsDistinguishable(t *testing.T) {
	issuer := testIssuer()

	now := time.Now().Add(-time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(3, 10),
			Issuer:    "parley-api",
			Audience:  jwt.ClaimStrings{"parley-client"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.accessSecret)
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(expired)
	require.Error(t, err)
	assert.Equal(t, "ExpiredCredential", models.AsAppError(err).Code)
}

func TestTamperedTokenRejected(t *testing.T) {
	issuer := testIssuer()

	token, err := issuer.IssueAccessToken(5)
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = issuer.VerifyAccessToken(tampered)
	require.Error(t, err)
	assert.NotEqual(t, "ExpiredCredential", models.AsAppError(err).Code)
}
