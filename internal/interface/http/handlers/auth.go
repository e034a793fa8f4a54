package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// HeaderAdminToken carries the operator token for admin routes.
	HeaderAdminToken = "X-Admin-Token"

	ctxKeyUserID = "user_id"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// UserID returns the authenticated user set by Authenticator.RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}

// ══════════════════════════════════════════════════════════════════════════════
// JWT
// ══════════════════════════════════════════════════════════════════════════════

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Secret is the HS256 key shared with the auth provider.
	Secret string

	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// Authenticator verifies access tokens issued by the auth provider.
// The token subject is the user UUID.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. The secret must not be empty.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Verify parses the token and returns the user ID from its subject.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return id.String(), nil
}

// Issue signs a token for userID. Used by local tooling and tests; production
// tokens come from the auth provider.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireUser rejects requests without a valid token. The token is read from
// the Authorization header or, for EventSource clients, the token query
// parameter.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			Fail(c, http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: ErrMissingToken.Error()})
			return
		}

		userID, err := a.Verify(raw)
		if err != nil {
			Fail(c, http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: ErrInvalidToken.Error()})
			return
		}

		c.Set(ctxKeyUserID, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN TOKEN
// ══════════════════════════════════════════════════════════════════════════════

// RequireAdmin guards operator routes with a static token. An empty token
// disables the routes.
func RequireAdmin(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			Fail(c, http.StatusForbidden, APIError{Code: CodeForbidden, Message: "admin routes are disabled"})
			return
		}
		got := []byte(c.GetHeader(HeaderAdminToken))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			Fail(c, http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "invalid admin token"})
			return
		}
		c.Next()
	}
}
