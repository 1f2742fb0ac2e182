package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
)

func TestGuard_UnauthenticatedRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.get("/transactions")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Ftransactions", resp.Header.Get("Location"))
}

func TestGuard_LandingRedirectOmitsNext(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.get("/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestGuard_HTMXRedirectUsesCurrentURL(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.get("/reports/monthly", htmxHeader, header{"Hx-Current-Url", h.server.URL + "/reports?year=2026"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Freports%3Fyear%3D2026", resp.Header.Get("Hx-Redirect"))
}

func TestGuard_AuthenticatedUserSeesSection(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.signIn("bob@x.com")

	resp := b.get("/reports")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "Financial reports.")
	assert.Contains(t, html, `href="/reports/monthly"`)
}

// A non-admin is sent to the landing page and the
// admin handlers never run.
func TestGuard_NonAdminDeniedAdminPages(t *testing.T) {
	reader := &countingActivityReader{}
	h := newHarness(t, withActivity(reader))
	b := h.newBrowser(t)
	b.signIn("bob@x.com")

	for _, path := range []string{"/admin/activity", "/admin/approvals"} {
		resp := b.get(path)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get("Location"), path)
	}
	assert.Zero(t, reader.calls)
}

func TestGuard_AdminAllowed(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.signIn("ana@x.com")

	resp := b.get("/admin/activity")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Auth activity")
}

// An expired persisted token resolves to a signed-out
// session and the guarded page redirects to the sign-in page.
func TestGuard_ExpiredTokenRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.backend.ResolveTokenFunc = func(context.Context, string) (domainauth.User, error) {
		return domainauth.User{}, apperrors.SessionExpired(nil)
	}
	consoleID := "7b0b8a52-3f69-4c8e-9a3f-1a2b3c4d5e6f"
	require.NoError(t, h.tokens.Save(context.Background(), consoleID, "stale", time.Hour))

	b := h.newBrowser(t)
	b.setCookie(DefaultConsoleCookieName, consoleID)

	resp := b.get("/banks")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?next=%2Fbanks", resp.Header.Get("Location"))

	snap := b.console().Session.Snapshot()
	assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
	_, err := h.tokens.Load(context.Background(), consoleID)
	require.Error(t, err, "expired token is deleted")
}

func TestGuard_RestoredTokenAdmits(t *testing.T) {
	h := newHarness(t)
	h.backend.ResolveTokenFunc = func(context.Context, string) (domainauth.User, error) {
		return testUsers["bob@x.com"], nil
	}
	consoleID := "0c1d7a8e-55b1-4a8e-8f59-2e0f4a1b9c3d"
	require.NoError(t, h.tokens.Save(context.Background(), consoleID, "token-2", time.Hour))

	b := h.newBrowser(t)
	b.setCookie(DefaultConsoleCookieName, consoleID)

	resp := b.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Welcome, Bob")
}

func TestGuard_PendingRestoreRendersLoading(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := newHarness(t, func(s *RouterServices) { s.Timing.Settle = time.Millisecond })
	h.backend.ResolveTokenFunc = func(ctx context.Context, _ string) (domainauth.User, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return testUsers["bob@x.com"], nil
	}
	consoleID := "5f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
	require.NoError(t, h.tokens.Save(context.Background(), consoleID, "token-2", time.Hour))

	b := h.newBrowser(t)
	b.setCookie(DefaultConsoleCookieName, consoleID)

	resp := b.get("/transactions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	html := body(t, resp)
	assert.Contains(t, html, "Restoring your session")
	assert.NotContains(t, html, "Transactions", "no menu while the session is pending")
}

func TestGuard_WaitWithoutLoader(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := newHarness(t)
	h.backend.ResolveTokenFunc = func(ctx context.Context, _ string) (domainauth.User, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return domainauth.User{}, apperrors.SessionExpired(nil)
	}
	consoleID := "9a8b7c6d-5e4f-4321-8fed-cba987654321"
	require.NoError(t, h.tokens.Save(context.Background(), consoleID, "token-x", time.Hour))
	c, _, err := h.registry.Get(consoleID)
	require.NoError(t, err)

	handler := Guard(GuardConfig{Chain: authenticatedChain(), Paths: withDefaultPaths(access.Paths{})})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
	)
	rec := serveWithConsole(handler, c, http.MethodGet, "/banks")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestGuard_PanicsWithoutChain(t *testing.T) {
	assert.Panics(t, func() { Guard(GuardConfig{}) })
}

func TestSafeRedirectPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/"},
		{in: "/", want: "/"},
		{in: "/banks", want: "/banks"},
		{in: "/reports?year=2026", want: "/reports?year=2026"},
		{in: "//evil.example", want: "/"},
		{in: `/\evil.example`, want: "/"},
		{in: "https://evil.example/banks", want: "/"},
		{in: "javascript:alert(1)", want: "/"},
		{in: "banks", want: "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeRedirectPath(tt.in), tt.in)
	}
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login", loginURL("/login", ""))
	assert.Equal(t, "/login", loginURL("/login", "/"))
	assert.Equal(t, "/login", loginURL("/login", "/login?next=%2Fbanks"))
	assert.Equal(t, "/login?next=%2Fbanks", loginURL("/login", "/banks"))
}

func TestRequestedPath(t *testing.T) {
	get := newRequest(http.MethodGet, "/banks?page=2")
	assert.Equal(t, "/banks?page=2", requestedPath(get))

	post := newRequest(http.MethodPost, "/admin/approvals/approve")
	assert.Empty(t, requestedPath(post))

	hx := newRequest(http.MethodPost, "/admin/approvals/approve")
	hx.Header.Set("Hx-Request", "true")
	hx.Header.Set("Hx-Current-Url", "http://console.example/admin/approvals")
	assert.Equal(t, "/admin/approvals", requestedPath(hx))

	hostOnly := newRequest(http.MethodGet, "/banks")
	hostOnly.Header.Set("Hx-Request", "true")
	hostOnly.Header.Set("Hx-Current-Url", "//evil.example/x")
	assert.Equal(t, "/banks", requestedPath(hostOnly))
}
