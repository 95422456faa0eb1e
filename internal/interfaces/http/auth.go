package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const actorKey = "actor_id"

// AuthConfig configures bearer token verification
type AuthConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// Authenticator verifies HS256 bearer tokens whose subject is a directory user id
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. The secret must not be empty.
func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		logger: logger,
		now:    time.Now,
	}, nil
}

// IssueToken signs a token for userID valid for ttl
func (a *Authenticator) IssueToken(userID int64, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's user id on the context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenStr) == "" {
			abortUnauthenticated(c, "missing bearer token")
			return
		}

		actorID, err := a.verify(strings.TrimSpace(tokenStr))
		if err != nil {
			a.logger.Info("Rejected bearer token",
				zap.String("reason", classifyJWTError(err)),
				zap.String("request_id", c.GetString(requestIDKey)))
			abortUnauthenticated(c, classifyJWTError(err))
			return
		}

		c.Set(actorKey, actorID)
		c.Next()
	}
}

func (a *Authenticator) verify(tokenStr string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidSubject
	}
	return id, nil
}

var errInvalidSubject = errors.New("token subject is not a user id")

func classifyJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid token signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid token issuer"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	case errors.Is(err, errInvalidSubject):
		return "invalid token subject"
	default:
		return "invalid token"
	}
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="approval"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: msg})
}

// actorFrom returns the authenticated caller's user id
func actorFrom(c *gin.Context) (int64, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
