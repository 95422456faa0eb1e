package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(t *testing.T, auth *Authenticator) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.GET("/whoami", auth.Middleware(), func(c *gin.Context) {
		actor, ok := actorFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, Response{Success: true, Data: actor})
	})
	return r
}

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}, nil)
	assert.Error(t, err)
}

func TestAuthenticator_Middleware(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{Secret: "s3cret", Issuer: "approval"}, nil)
	require.NoError(t, err)
	router := newAuthRouter(t, auth)

	valid, err := auth.IssueToken(42, time.Minute)
	require.NoError(t, err)

	now := time.Now()
	claims := func(sub, iss string, exp time.Time) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    iss,
			ExpiresAt: jwt.NewNumericDate(exp),
		}
	}

	tests := []struct {
		name   string
		header string
		status int
		reason string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"no header", "", http.StatusUnauthorized, "missing bearer token"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "missing bearer token"},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("s3cret"), claims("42", "approval", now.Add(-time.Hour))),
			http.StatusUnauthorized, "token expired"},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), claims("42", "approval", now.Add(time.Hour))),
			http.StatusUnauthorized, "invalid token signature"},
		{"wrong issuer", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("s3cret"), claims("42", "elsewhere", now.Add(time.Hour))),
			http.StatusUnauthorized, "invalid token issuer"},
		{"non numeric subject", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("s3cret"), claims("alice", "approval", now.Add(time.Hour))),
			http.StatusUnauthorized, "invalid token subject"},
		{"other algorithm", "Bearer " + sign(t, jwt.SigningMethodHS512, []byte("s3cret"), claims("42", "approval", now.Add(time.Hour))),
			http.StatusUnauthorized, "invalid token signature"},
		{"no expiry", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.RegisteredClaims{Subject: "42", Issuer: "approval"}),
			http.StatusUnauthorized, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec, nil)
			if tt.status == http.StatusOK {
				assert.Equal(t, "42", string(env.Data))
				return
			}
			assert.Equal(t, tt.reason, env.Error)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestAuthenticator_IssueTokenRejectsInvalidUser(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{Secret: "s3cret"}, nil)
	require.NoError(t, err)
	_, err = auth.IssueToken(0, time.Minute)
	assert.Error(t, err)
}
