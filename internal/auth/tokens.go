// Package auth issues and verifies the credentials that gate every entry
// point: short-lived access tokens for requests and socket handshakes, and
// long-lived refresh tokens bound to a session.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"parley/internal/config"
	"parley/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = models.SessionTTL
)

const (
	issuer         = "parley-api"
	accessAudience = "parley-client"
)

// TokenIssuer signs and verifies JWTs. Access and refresh tokens use
// separate secrets so a leaked access secret cannot mint refresh tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
}

// NewTokenIssuer creates a token issuer from the configured secrets.
func NewTokenIssuer(cfg *config.Config) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
	}
}

// Claims carried by both token kinds. SessionID ties a refresh token to the
// session row it can renew.
type Claims struct {
	SessionID uint `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (i *TokenIssuer) sign(userID uint, sessionID uint, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{accessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// IssueAccessToken mints a short-lived access token for the user.
func (i *TokenIssuer) IssueAccessToken(userID uint) (string, error) {
	return i.sign(userID, 0, i.accessSecret, AccessTokenTTL)
}

// IssueRefreshToken mints a refresh token bound to the given session.
func (i *TokenIssuer) IssueRefreshToken(userID, sessionID uint) (string, error) {
	return i.sign(userID, sessionID, i.refreshSecret, RefreshTokenTTL)
}

func (i *TokenIssuer) verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(accessAudience))
	if err != nil {
		// Expired-but-otherwise-valid is a distinct outcome so clients know
		// to refresh instead of re-authenticating.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.NewExpiredCredentialError()
		}
		return nil, models.NewUnauthorizedError("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, models.NewUnauthorizedError("invalid token claims")
	}
	return claims, nil
}

// VerifyAccessToken validates an access token and returns the user ID.
func (i *TokenIssuer) VerifyAccessToken(tokenString string) (uint, error) {
	claims, err := i.verify(tokenString, i.accessSecret)
	if err != nil {
		return 0, err
	}
	return parseSubject(claims)
}

// VerifyRefreshToken validates a refresh token and returns the user and
// session it renews.
func (i *TokenIssuer) VerifyRefreshToken(tokenString string) (userID, sessionID uint, err error) {
	claims, err := i.verify(tokenString, i.refreshSecret)
	if err != nil {
		return 0, 0, err
	}
	userID, err = parseSubject(claims)
	if err != nil {
		return 0, 0, err
	}
	return userID, claims.SessionID, nil
}

func parseSubject(claims *Claims) (uint, error) {
	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return 0, models.NewUnauthorizedError("invalid token subject")
	}
	return uint(id), nil
}
