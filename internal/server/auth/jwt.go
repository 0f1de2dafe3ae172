// Package auth issues and verifies the signed tokens of the session
// lifecycle: short-lived access tokens carrying display claims and
// long-lived refresh tokens carrying only the account id. Access and
// refresh tokens are signed with separate secrets. Verification is
// stateless; checking a refresh token against the stored slot is the
// session service's job.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/viewtube/accounts/internal/common"
	"github.com/viewtube/accounts/internal/server/models"
)

// now is a test seam for time.Now.
var now = time.Now

// AccessClaims is the payload of an access token. It carries exactly the
// identity attributes handlers may rely on without touching storage.
type AccessClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
}

// RefreshClaims is the payload of a refresh token. The claim surface is kept
// minimal to limit the replay value of a leaked token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"accountId"`
}

// GenerateAccessToken signs an access token for the account with
// expiry = now + validityDuration (HS256). The jti claim makes every token
// unique even when two are minted within the same second.
func GenerateAccessToken(account *models.Account, secretKey []byte, validityDuration time.Duration) (string, error) {
	issued := now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(validityDuration)),
		},
		AccountID: account.ID,
		Username:  account.Username,
		Email:     account.Email,
		FullName:  account.FullName,
	})
	return token.SignedString(secretKey)
}

// GenerateRefreshToken signs a refresh token carrying only the account id.
// Rotation depends on successive tokens never colliding, so the jti claim is
// set here as well.
func GenerateRefreshToken(accountID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	issued := now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(validityDuration)),
		},
		AccountID: accountID,
	})
	return token.SignedString(secretKey)
}

// VerifyAccessToken checks signature and expiry and returns the decoded
// claims. Expired tokens yield common.ErrTokenExpired, anything else that
// fails validation yields common.ErrInvalidToken.
func VerifyAccessToken(tokenString string, secretKey []byte) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parseToken(tokenString, secretKey, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry of a refresh token and
// returns the decoded claims. Errors follow VerifyAccessToken.
func VerifyRefreshToken(tokenString string, secretKey []byte) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parseToken(tokenString, secretKey, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseToken(tokenString string, secretKey []byte, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}
	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
