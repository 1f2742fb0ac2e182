package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/domain/nav"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/ports"
)

// SidebarCookieName holds the client-side sidebar preference.
const SidebarCookieName = "console_sidebar"

const activityPageSize = 100

// UIHandlers serves the guarded console pages.
type UIHandlers struct {
	T         *TemplateRenderer
	Paths     access.Paths
	Tree      []nav.Entry
	Activity  ports.ActivityReader // optional
	Approvals ports.ApprovalQueue  // optional
	Logger    *slog.Logger
}

func (h *UIHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// basePageData fills the fields every page shares.
func basePageData(r *http.Request, paths access.Paths, title, page string) PageData {
	return PageData{
		Title:            title,
		Page:             page,
		Snapshot:         SnapshotFromContext(r.Context()),
		CurrentPath:      r.URL.Path,
		CSRFToken:        GetCSRFToken(r),
		SidebarCollapsed: sidebarCollapsed(r),
		Paths:            paths,
	}
}

func sidebarCollapsed(r *http.Request) bool {
	c, err := r.Cookie(SidebarCookieName)
	return err == nil && c.Value == "collapsed"
}

// page builds PageData with the navigation the session may see.
func (h *UIHandlers) page(r *http.Request, title, page string) PageData {
	data := basePageData(r, h.Paths, title, page)
	data.Nav = nav.Visible(h.Tree, data.Snapshot)
	return data
}

func (h *UIHandlers) render(w http.ResponseWriter, r *http.Request, status int, data PageData) {
	if err := h.T.RenderPage(w, r, status, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render failed", "page", data.Page, "error", err)
	}
}

// SectionView describes a console section placeholder.
type SectionView struct {
	Heading  string
	Summary  string
	Children []nav.Entry
}

// Dashboard serves the landing page.
func (h *UIHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Dashboard", "page-dashboard")
	data.Data = SectionView{Heading: "Dashboard", Children: data.Nav}
	h.render(w, r, http.StatusOK, data)
}

// Section returns a handler rendering the section registered in the menu
// under the request path.
func (h *UIHandlers) Section(summary string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := nav.Find(h.Tree, r.URL.Path)
		if !ok {
			h.NotFound(w, r)
			return
		}
		data := h.page(r, entry.Label, "page-section")
		view := SectionView{Heading: entry.Label, Summary: summary}
		if visible, found := nav.Find(data.Nav, entry.Path); found {
			view.Children = visible.Submenu
		}
		data.Data = view
		h.render(w, r, http.StatusOK, data)
	}
}

// ActivityView is the data behind the auth activity page.
type ActivityView struct {
	Events []domainauth.ActivityEvent
	Email  string
	Kind   domainauth.ActivityKind
	Kinds  []domainauth.ActivityKind
	Error  string
}

// AdminActivity serves GET /admin/activity.
func (h *UIHandlers) AdminActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := ActivityView{
		Email: strings.TrimSpace(q.Get("email")),
		Kind:  domainauth.ActivityKind(q.Get("kind")),
		Kinds: domainauth.ActivityKinds(),
	}
	if !slices.Contains(view.Kinds, view.Kind) {
		view.Kind = ""
	}
	data := h.page(r, "Auth activity", "page-admin-activity")

	if h.Activity == nil {
		view.Error = "Activity logging is not configured."
		data.Data = view
		h.render(w, r, http.StatusOK, data)
		return
	}

	events, err := h.Activity.List(r.Context(), domainauth.ActivityListOptions{
		Email: view.Email,
		Kind:  view.Kind,
		Limit: parseLimit(q.Get("limit"), activityPageSize),
	})
	status := http.StatusOK
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list activity failed", "error", err)
		view.Error = apperrors.UserMessage(err)
		status = http.StatusInternalServerError
		if apperrors.IsValidation(err) {
			status = http.StatusBadRequest
		}
	}
	view.Events = events
	data.Data = view
	h.render(w, r, status, data)
}

// ApprovalsView is the data behind the approvals page.
type ApprovalsView struct {
	Enabled  bool
	Pending  []ports.PendingAccount
	Approved string
	Error    string
}

// AdminApprovals serves GET /admin/approvals.
func (h *UIHandlers) AdminApprovals(w http.ResponseWriter, r *http.Request) {
	view := ApprovalsView{Approved: r.URL.Query().Get("approved")}
	status := h.loadApprovals(r.Context(), &view)
	data := h.page(r, "Approvals", "page-admin-approvals")
	data.Data = view
	h.render(w, r, status, data)
}

// AdminApprove serves POST /admin/approvals/approve.
func (h *UIHandlers) AdminApprove(w http.ResponseWriter, r *http.Request) {
	if h.Approvals == nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	if err := h.Approvals.Approve(r.Context(), email); err != nil {
		view := ApprovalsView{Error: apperrors.UserMessage(err)}
		status := http.StatusInternalServerError
		if apperrors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		if loadStatus := h.loadApprovals(r.Context(), &view); loadStatus != http.StatusOK {
			status = loadStatus
		}
		data := h.page(r, "Approvals", "page-admin-approvals")
		data.Data = view
		h.render(w, r, status, data)
		return
	}

	by := ""
	if admin := SnapshotFromContext(r.Context()).User; admin != nil {
		by = admin.Email
	}
	h.logger().InfoContext(r.Context(), "registration approved", "email", email, "by", by)
	Navigate(w, r, PathAdminApprovals+"?approved="+url.QueryEscape(email))
}

func (h *UIHandlers) loadApprovals(ctx context.Context, view *ApprovalsView) int {
	if h.Approvals == nil {
		return http.StatusOK
	}
	view.Enabled = true
	pending, err := h.Approvals.ListPending(ctx)
	if err != nil {
		h.logger().ErrorContext(ctx, "list pending registrations failed", "error", err)
		view.Error = apperrors.UserMessage(err)
		return http.StatusInternalServerError
	}
	view.Pending = pending
	return http.StatusOK
}

// Loading renders the placeholder shown while a session restore is pending.
// The page reloads itself once the session stream reports a resolved state.
func (h *UIHandlers) Loading(w http.ResponseWriter, r *http.Request) {
	data := basePageData(r, h.Paths, "Loading", "page-loading")
	h.render(w, r, http.StatusOK, data)
}

// NotFound renders the 404 page inside the console shell.
func (h *UIHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Not found", "page-not-found")
	h.render(w, r, http.StatusNotFound, data)
}

func parseLimit(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
