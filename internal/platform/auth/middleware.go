package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const sessionKey contextKey = "session"

// Session is the authenticated caller, derived from the bearer token once per
// request and passed explicitly to services.
type Session struct {
	UserID      string   `json:"uid"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
}

// HasRole reports whether the session holds any of roles. Admin holds every role.
func (s Session) HasRole(roles ...string) bool {
	for _, has := range s.Roles {
		if has == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if has == want {
				return true
			}
		}
	}
	return false
}

// Name returns the display name, then the email, then "".
func (s Session) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Email
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// FromEcho returns the request session or a 401 error.
func FromEcho(c echo.Context) (Session, error) {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok || s.UserID == "" {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	return s, nil
}

// Claims are the token claims issued by the identity provider. Role is the
// single custom claim set by role assignment; Roles is accepted as well.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

func (c *Claims) session() Session {
	roles := append([]string(nil), c.Roles...)
	if c.Role != "" {
		roles = append(roles, c.Role)
	}
	return Session{UserID: c.Subject, DisplayName: c.Name, Email: c.Email, Roles: roles}
}

type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey verifies HS256 tokens.
	SigningKey []byte
	// PublicKey verifies RS256 tokens.
	PublicKey *rsa.PublicKey
}

// LoadPublicKey reads a PEM encoded RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

func (cfg JWTConfig) keyFunc(t *jwt.Token) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(cfg.SigningKey) == 0 {
			return nil, fmt.Errorf("hmac tokens not accepted")
		}
		return cfg.SigningKey, nil
	case *jwt.SigningMethodRSA:
		if cfg.PublicKey == nil {
			return nil, fmt.Errorf("rsa tokens not accepted")
		}
		return cfg.PublicKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}

func (cfg JWTConfig) parse(header string) (Session, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, cfg.keyFunc, opts...)
	if err != nil || !token.Valid || claims.Subject == "" {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return claims.session(), nil
}

// JWTMiddleware requires a valid bearer token and stores its Session on the
// request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			s, err := cfg.parse(header)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
			return next(c)
		}
	}
}

// Dev session defaults, overridable per request with X-Dev-User, X-Dev-Name,
// X-Dev-Email and X-Dev-Roles (comma separated).
const (
	DevUserID = "dev-user"
	DevName   = "Dev Visitor"
	DevEmail  = "dev@example.com"
)

// DevAuthMiddleware is a permissive middleware for development. Requests
// without an Authorization header get a dev session; requests with one are
// verified by cfg when a key is configured.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			header := req.Header.Get("Authorization")

			var s Session
			if header != "" && (len(cfg.SigningKey) > 0 || cfg.PublicKey != nil) {
				parsed, err := cfg.parse(header)
				if err != nil {
					return err
				}
				s = parsed
			} else {
				s = Session{
					UserID:      headerOr(req, "X-Dev-User", DevUserID),
					DisplayName: headerOr(req, "X-Dev-Name", DevName),
					Email:       headerOr(req, "X-Dev-Email", DevEmail),
					Roles:       strings.Split(headerOr(req, "X-Dev-Roles", RoleAdmin), ","),
				}
			}
			c.SetRequest(req.WithContext(WithSession(req.Context(), s)))
			return next(c)
		}
	}
}

func headerOr(r *http.Request, name, def string) string {
	if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
		return v
	}
	return def
}
