package middleware

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/oarkflow/tenantauthz"
	"github.com/oarkflow/tenantauthz/logger"
	"github.com/oarkflow/tenantauthz/stores"
)

var testSecret = []byte("test-secret")

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	store := stores.NewMemoryRecordStore(
		tenantauthz.NewRecordBuilder("org-1", "alice").Role("admin").Version(2).Grant("invoices", "read").Build(),
		tenantauthz.NewRecordBuilder("org-1", "bob").Role("viewer").Version(1).Active(false).Build(),
	)
	eng, err := tenantauthz.NewEngine(store, tenantauthz.WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	authz, err := New(Options{
		Engine:       eng,
		Token:        BearerJWT(HMACKey(testSecret), jwt.SigningMethodHS256.Alg()),
		Organization: func(c *fiber.Ctx) string { return c.Get("X-Organization") },
	})
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	app := fiber.New()
	handler := func(c *fiber.Ctx) error {
		ac, ok := AuthContext(c)
		if !ok {
			return c.SendStatus(http.StatusTeapot)
		}
		fromCtx, ok := tenantauthz.AuthFromContext(c.UserContext())
		if !ok || fromCtx != ac {
			return c.SendStatus(http.StatusTeapot)
		}
		return c.JSON(fiber.Map{"organization": ac.OrganizationID, "role": ac.Role})
	}
	app.Get("/invoices", authz.RequirePermission("invoices:read"), handler)
	app.Delete("/invoices", authz.RequirePermission("invoices:delete"), handler)
	app.Get("/admin", authz.RequireRole("admin", "owner"), handler)
	app.Get("/orgs/:org", authz.RequireOrganization("org"), handler)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body
}

func aliceToken(t *testing.T, version int) string {
	return signed(t, jwt.MapClaims{
		"sub":           "alice",
		"orgId":         "org-1",
		"claimsVersion": version,
		"exp":           time.Now().Add(time.Hour).Unix(),
	})
}

func TestRequirePermissionAllows(t *testing.T) {
	app := newTestApp(t)
	status, body := do(t, app, http.MethodGet, "/invoices", aliceToken(t, 2), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	if body["role"] != "admin" || body["organization"] != "org-1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRequirePermissionDeniedHidesCapability(t *testing.T) {
	app := newTestApp(t)
	status, body := do(t, app, http.MethodDelete, "/invoices", aliceToken(t, 2), nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if body["error"] != "permission denied" {
		t.Fatalf("expected generic denial, got %v", body["error"])
	}
}

func TestStaleTokenIsPreconditionFailed(t *testing.T) {
	app := newTestApp(t)
	status, body := do(t, app, http.MethodGet, "/invoices", aliceToken(t, 1), nil)
	if status != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", status)
	}
	if body["retryable"] != true {
		t.Fatalf("expected retryable, got %v", body)
	}
}

func TestMissingOrInvalidTokenIsUnauthorized(t *testing.T) {
	app := newTestApp(t)
	if status, _ := do(t, app, http.MethodGet, "/invoices", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "orgId": "org-1"}).SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if status, _ := do(t, app, http.MethodGet, "/invoices", forged, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", status)
	}
}

func TestOrganizationHintMismatch(t *testing.T) {
	app := newTestApp(t)
	status, _ := do(t, app, http.MethodGet, "/invoices", aliceToken(t, 2), map[string]string{"X-Organization": "org-2"})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestRequireRole(t *testing.T) {
	app := newTestApp(t)
	if status, _ := do(t, app, http.MethodGet, "/admin", aliceToken(t, 2), nil); status != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", status)
	}
	bob := signed(t, jwt.MapClaims{"sub": "bob", "organizationId": "org-1", "claimsVersion": 1})
	if status, body := do(t, app, http.MethodGet, "/admin", bob, nil); status != http.StatusForbidden || body["error"] != "account is inactive" {
		t.Fatalf("expected 403 inactive, got %d %v", status, body)
	}
}

func TestRequireOrganization(t *testing.T) {
	app := newTestApp(t)
	if status, _ := do(t, app, http.MethodGet, "/orgs/org-1", aliceToken(t, 2), nil); status != http.StatusOK {
		t.Fatalf("expected 200 for own organization, got %d", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/orgs/org-9", aliceToken(t, 2), nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign organization, got %d", status)
	}
	ghost := signed(t, jwt.MapClaims{"sub": "ghost", "orgId": "org-1", "claimsVersion": 1})
	if status, _ := do(t, app, http.MethodGet, "/orgs/org-1", ghost, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", status)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[tenantauthz.ErrorKind]int{
		tenantauthz.KindUnauthenticated:    401,
		tenantauthz.KindPermissionDenied:   403,
		tenantauthz.KindNotFound:           404,
		tenantauthz.KindFailedPrecondition: 412,
		tenantauthz.KindInvalidArgument:    400,
		tenantauthz.KindInternal:           500,
		tenantauthz.ErrorKind("bogus"):     500,
	}
	for kind, want := range cases {
		if got := StatusFor(kind); got != want {
			t.Fatalf("StatusFor(%s)=%d want %d", kind, got, want)
		}
	}
}

func TestNewRequiresEngineAndToken(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without engine")
	}
	eng, err := tenantauthz.NewEngine(stores.NewMemoryRecordStore(), tenantauthz.WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := New(Options{Engine: eng}); err == nil {
		t.Fatalf("expected error without token extractor")
	}
}

type debugRecorder struct {
	logger.NullLogger
	mu     sync.Mutex
	errors []string
}

func (d *debugRecorder) Debug(msg string, keyvals ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i+1 < len(keyvals); i += 2 {
		if keyvals[i] == "error" {
			d.errors = append(d.errors, fmt.Sprint(keyvals[i+1]))
		}
	}
}

func TestTokenExtractionFailureIsLogged(t *testing.T) {
	store := stores.NewMemoryRecordStore(
		tenantauthz.NewRecordBuilder("org-1", "alice").Role("admin").Version(2).Grant("invoices", "read").Build(),
	)
	eng, err := tenantauthz.NewEngine(store, tenantauthz.WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	rec := &debugRecorder{}
	authz, err := New(Options{
		Engine: eng,
		Token:  BearerJWT(HMACKey(testSecret), jwt.SigningMethodHS256.Alg()),
		Logger: rec,
	})
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	app := fiber.New()
	app.Get("/invoices", authz.RequirePermission("invoices:read"), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	expired := signed(t, jwt.MapClaims{
		"sub":           "alice",
		"orgId":         "org-1",
		"claimsVersion": 2,
		"exp":           time.Now().Add(-time.Hour).Unix(),
	})
	status, body := do(t, app, http.MethodGet, "/invoices", expired, nil)
	if status != http.StatusUnauthorized || body["kind"] != string(tenantauthz.KindUnauthenticated) {
		t.Fatalf("expected 401 unauthenticated, got %d %v", status, body)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errors) != 1 || !strings.Contains(rec.errors[0], "expired") {
		t.Fatalf("expected the expiry reason to be logged, got %v", rec.errors)
	}
}
