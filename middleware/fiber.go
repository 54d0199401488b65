// Package middleware exposes Engine entry points as Fiber handlers.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/oarkflow/tenantauthz"
	"github.com/oarkflow/tenantauthz/logger"
)

// LocalsKey is the fiber.Ctx locals key holding the *tenantauthz.AuthContext.
const LocalsKey = "tenantauthz_context"

// TokenExtractor returns the verified identity token of a request.
type TokenExtractor func(c *fiber.Ctx) (*tenantauthz.IdentityToken, error)

// Options configures an Authorizer.
type Options struct {
	Engine *tenantauthz.Engine
	// Token extracts the identity token (required).
	Token TokenExtractor
	// Organization returns the organization hint of a request. Optional.
	Organization func(c *fiber.Ctx) string
	// OnError writes the response for a failed evaluation. Defaults to
	// WriteError.
	OnError func(c *fiber.Ctx, err error) error
	// Logger receives token extraction failures at debug level. Defaults to
	// the engine's logger.
	Logger logger.Logger
}

// Authorizer builds route guards around one Engine.
type Authorizer struct {
	opts Options
}

func New(opts Options) (*Authorizer, error) {
	if opts.Engine == nil {
		return nil, errors.New("middleware: engine is required")
	}
	if opts.Token == nil {
		return nil, errors.New("middleware: token extractor is required")
	}
	if opts.OnError == nil {
		opts.OnError = WriteError
	}
	if opts.Logger == nil {
		opts.Logger = opts.Engine.Logger()
	}
	return &Authorizer{opts: opts}, nil
}

// token returns nil when extraction fails so the engine reports and audits
// the request as unauthenticated.
func (a *Authorizer) token(c *fiber.Ctx) *tenantauthz.IdentityToken {
	tok, err := a.opts.Token(c)
	if err != nil {
		a.opts.Logger.Debug("token extraction failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err.Error(),
		)
		return nil
	}
	return tok
}

func (a *Authorizer) hint(c *fiber.Ctx) string {
	if a.opts.Organization == nil {
		return ""
	}
	return a.opts.Organization(c)
}

func (a *Authorizer) complete(c *fiber.Ctx, ac *tenantauthz.AuthContext, err error) error {
	if err != nil {
		return a.opts.OnError(c, err)
	}
	c.Locals(LocalsKey, ac)
	c.SetUserContext(tenantauthz.ContextWithAuth(c.UserContext(), ac))
	return c.Next()
}

// RequirePermission guards a route with a "resource:action" capability.
func (a *Authorizer) RequirePermission(capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := a.opts.Engine.ValidatePermission(c.UserContext(), a.token(c), a.hint(c), capability)
		return a.complete(c, ac, err)
	}
}

// RequireRole guards a route with a set of allowed roles.
func (a *Authorizer) RequireRole(roles ...string) fiber.Handler {
	allowed := append([]string(nil), roles...)
	return func(c *fiber.Ctx) error {
		ac, err := a.opts.Engine.ValidateRole(c.UserContext(), a.token(c), a.hint(c), allowed)
		return a.complete(c, ac, err)
	}
}

// RequireOrganization guards a route whose path parameter names the target
// organization, e.g. /orgs/:org/settings.
func (a *Authorizer) RequireOrganization(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := a.opts.Engine.ValidateOrganizationMember(c.UserContext(), a.token(c), c.Params(param))
		return a.complete(c, ac, err)
	}
}

// RequireOrganizationOf guards a route with a fixed target organization.
func (a *Authorizer) RequireOrganizationOf(organizationID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, err := a.opts.Engine.ValidateOrganizationMember(c.UserContext(), a.token(c), organizationID)
		return a.complete(c, ac, err)
	}
}

// AuthContext returns the context stored by a passing guard.
func AuthContext(c *fiber.Ctx) (*tenantauthz.AuthContext, bool) {
	ac, ok := c.Locals(LocalsKey).(*tenantauthz.AuthContext)
	return ac, ok && ac != nil
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind tenantauthz.ErrorKind) int {
	switch kind {
	case tenantauthz.KindUnauthenticated:
		return http.StatusUnauthorized
	case tenantauthz.KindPermissionDenied:
		return http.StatusForbidden
	case tenantauthz.KindNotFound:
		return http.StatusNotFound
	case tenantauthz.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case tenantauthz.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError responds with the public message only. Detail stays in logs.
func WriteError(c *fiber.Ctx, err error) error {
	kind := tenantauthz.KindOf(err)
	return c.Status(StatusFor(kind)).JSON(fiber.Map{
		"error":     tenantauthz.PublicMessage(err),
		"kind":      string(kind),
		"retryable": tenantauthz.Retryable(err),
	})
}

// BearerJWT verifies an "Authorization: Bearer" JWT with keyFunc and adapts
// its claims. methods restricts the accepted signing algorithms.
func BearerJWT(keyFunc jwt.Keyfunc, methods ...string) TokenExtractor {
	var parserOpts []jwt.ParserOption
	if len(methods) > 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods(methods))
	}
	return func(c *fiber.Ctx) (*tenantauthz.IdentityToken, error) {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, errors.New("missing bearer token")
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc, parserOpts...)
		if err != nil {
			return nil, fmt.Errorf("parse bearer token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("invalid bearer token")
		}
		return tenantauthz.TokenFromJWT(claims), nil
	}
}

// HMACKey returns a jwt.Keyfunc for a shared secret.
func HMACKey(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}
}
