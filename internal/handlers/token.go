package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codearena-oj/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "codearena"

var errInvalidToken = errors.New("invalid token")

// accessClaims carries the username alongside the registered claims so
// clients can display the identity without a second request.
type accessClaims struct {
	Username string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

func signAccessToken(user types.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verifyAccessToken checks the signature, method, issuer and expiry, and
// returns the user ID from the subject claim.
func verifyAccessToken(raw string, secret []byte) (int, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errInvalidToken
	}
	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return 0, errInvalidToken
	}
	return userID, nil
}

func bearerToken(r *http.Request) (string, error) {
	scheme, raw, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(strings.TrimSpace(scheme), "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty bearer token")
	}
	return raw, nil
}
