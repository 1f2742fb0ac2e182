package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	fakes "github.com/target/ledger-console/internal/mocks/auth"
	"github.com/target/ledger-console/internal/ports"
	"github.com/target/ledger-console/internal/service"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const testPassword = "secret1"

// testUsers are the accounts the fake backend accepts.
var testUsers = map[string]domainauth.User{
	"ana@x.com": {ID: "1", Name: "Ana", Email: "ana@x.com", IsAdmin: true},
	"bob@x.com": {ID: "2", Name: "Bob", Email: "bob@x.com"},
}

type harness struct {
	backend  *fakes.FakeAuthBackend
	tokens   *fakes.MemoryTokenStore
	activity *fakes.MemoryActivitySink
	clock    *fakes.ManualClock
	registry *service.Registry
	server   *httptest.Server
}

type harnessOption func(*RouterServices)

func withApprovals(q ports.ApprovalQueue) harnessOption {
	return func(s *RouterServices) { s.Approvals = q }
}

func withActivity(r ports.ActivityReader) harnessOption {
	return func(s *RouterServices) { s.Activity = r }
}

func withHealth(checks map[string]HealthCheck) harnessOption {
	return func(s *RouterServices) { s.Health = checks }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		tokens:   fakes.NewMemoryTokenStore(),
		activity: &fakes.MemoryActivitySink{},
		clock:    fakes.NewManualClock(testNow),
	}
	h.backend = &fakes.FakeAuthBackend{
		LoginFunc: func(_ context.Context, email, password string) (domainauth.Credentials, error) {
			user, ok := testUsers[email]
			if !ok || password != testPassword {
				return domainauth.Credentials{}, apperrors.InvalidCredentials("")
			}
			return h.creds(user), nil
		},
		RegisterFunc: func(context.Context, domainauth.RegisterInput) (domainauth.RegistrationResult, error) {
			return domainauth.NewPendingApproval("Awaiting approval"), nil
		},
	}

	h.registry = service.NewRegistry(service.RegistryOptions{
		Session: service.SessionControllerOptions{
			Deps:      service.SessionDeps{Backend: h.backend, Tokens: h.tokens},
			Config:    service.SessionConfig{DefaultTokenTTL: time.Hour, Clock: h.clock},
			Observers: service.SessionObservers{Activity: h.activity},
		},
		Registration: service.RegistrationFlowConfig{
			Paths: service.RedirectPaths{Login: "/login", Landing: "/"},
			Clock: h.clock,
		},
	})
	t.Cleanup(h.registry.Close)

	services := RouterServices{
		Consoles: h.registry,
		Activity: h.activity,
		Timing:   RouterTiming{Settle: time.Second, Heartbeat: 50 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(&services)
	}
	handler, err := NewRouter(services)
	require.NoError(t, err)

	h.server = httptest.NewServer(handler)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) creds(user domainauth.User) domainauth.Credentials {
	return domainauth.Credentials{
		Token:     "token-" + user.ID,
		User:      user,
		ExpiresAt: h.clock.Now().Add(time.Hour),
	}
}

// browser is one browser client: its own cookie jar, hence its own console.
type browser struct {
	t      *testing.T
	h      *harness
	client *http.Client
	base   *url.URL
}

func (h *harness) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse(h.server.URL)
	require.NoError(t, err)
	return &browser{
		t: t,
		h: h,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base: base,
	}
}

// signIn logs the browser in and waits for the session to settle.
func (b *browser) signIn(email string) {
	b.t.Helper()
	resp := b.post("/login", url.Values{"email": {email}, "password": {testPassword}}, false)
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
	require.True(b.t, b.console().Session.Snapshot().Authenticated())
}

type header struct{ key, value string }

var htmxHeader = header{"Hx-Request", "true"}

func (b *browser) get(path string, headers ...header) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.h.server.URL+path, nil)
	require.NoError(b.t, err)
	for _, hd := range headers {
		req.Header.Set(hd.key, hd.value)
	}
	return b.do(req)
}

// post submits a form carrying the CSRF token, as htmx when htmx is set.
func (b *browser) post(path string, form url.Values, htmx bool) *http.Response {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", b.csrfToken())
	req, err := http.NewRequest(http.MethodPost, b.h.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("Hx-Request", "true")
	}
	return b.do(req)
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (b *browser) cookie(name string) string {
	for _, c := range b.client.Jar.Cookies(b.base) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) setCookie(name, value string) {
	b.client.Jar.SetCookies(b.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// csrfToken returns the browser's CSRF cookie, fetching one first if needed.
func (b *browser) csrfToken() string {
	b.t.Helper()
	if token := b.cookie(DefaultCSRFCookieName); token != "" {
		return token
	}
	b.get("/session")
	token := b.cookie(DefaultCSRFCookieName)
	require.NotEmpty(b.t, token)
	return token
}

// console returns the console bound to this browser, creating it if needed.
func (b *browser) console() *service.Console {
	b.t.Helper()
	id := b.cookie(DefaultConsoleCookieName)
	if id == "" {
		b.get("/session")
		id = b.cookie(DefaultConsoleCookieName)
	}
	require.NotEmpty(b.t, id)
	c, ok := b.h.registry.Peek(id)
	require.True(b.t, ok)
	return c
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// countingActivityReader records how often the activity log is read.
type countingActivityReader struct {
	mu     sync.Mutex
	calls  int
	events []domainauth.ActivityEvent
	err    error
	last   domainauth.ActivityListOptions
}

func (r *countingActivityReader) List(
	_ context.Context,
	opts domainauth.ActivityListOptions,
) ([]domainauth.ActivityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = opts
	return r.events, r.err
}

func authenticatedChain() access.Chain {
	return access.Authenticated(withDefaultPaths(access.Paths{}))
}

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// serveWithConsole runs handler for a request already bound to c.
func serveWithConsole(handler http.Handler, c *service.Console, method, target string) *httptest.ResponseRecorder {
	req := newRequest(method, target)
	req = req.WithContext(SetConsoleInContext(req.Context(), c))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
