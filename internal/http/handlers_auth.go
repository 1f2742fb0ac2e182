package httpx

import (
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/service"
)

const (
	errMsgFixBelow       = "Please fix the errors below."
	errMsgSessionChanged = "Your session changed while signing in. Please try again."
	errMsgSubmitting     = "Your registration is already being submitted."
)

// AuthHandlers serves sign-in, registration and sign-out.
type AuthHandlers struct {
	T      *TemplateRenderer
	Paths  access.Paths
	Settle time.Duration // how long GET /login and /register wait for a pending restore
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// LoginView is the data behind the sign-in form.
type LoginView struct {
	Email  string
	Next   string
	Error  string
	Fields map[string]string
}

// RegisterView is the data behind the registration form and its pending
// approval panel.
type RegisterView struct {
	Name    string
	Email   string
	State   service.FlowState
	Message string
	Error   string
	Fields  map[string]string
}

// Pending reports whether the pending approval panel replaces the form.
func (v RegisterView) Pending() bool {
	return v.State == service.FlowPending || v.State == service.FlowRedirect
}

// LoginPage serves GET /login. An authenticated session goes straight on.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	next := h.nextTarget(r.URL.Query().Get("next"))
	if snap := awaitSettled(r.Context(), c.Session, h.Settle); snap.Authenticated() {
		Navigate(w, r, next)
		return
	}
	if next == h.Paths.Landing {
		next = ""
	}
	h.renderLogin(w, r, http.StatusOK, LoginView{Next: next})
}

// LoginSubmit serves POST /login. Empty fields are rejected without calling
// the backend.
func (h *AuthHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := domainauth.LoginForm{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}
	form.Normalize()
	view := LoginView{Email: form.Email, Next: r.PostForm.Get("next")}

	if err := form.Validate(); err != nil {
		view.Error = errMsgFixBelow
		view.Fields = domainauth.FieldErrors(err)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, view)
		return
	}

	if _, err := c.Session.Login(r.Context(), form.Email, form.Password); err != nil {
		if errors.Is(err, service.ErrSuperseded) {
			if c.Session.Snapshot().Authenticated() {
				Navigate(w, r, h.nextTarget(view.Next))
				return
			}
			view.Error = errMsgSessionChanged
			h.renderLogin(w, r, http.StatusConflict, view)
			return
		}
		h.logger().InfoContext(r.Context(), "login rejected",
			"email", form.Email,
			"code", string(apperrors.GetCode(err)),
		)
		view.Error = apperrors.UserMessage(err)
		view.Fields = fieldErrors(err)
		h.renderLogin(w, r, statusForError(err), view)
		return
	}

	c.LeaveRegistration()
	Navigate(w, r, h.nextTarget(view.Next))
}

// RegisterPage serves GET /register. Every visit starts a fresh flow.
func (h *AuthHandlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if snap := awaitSettled(r.Context(), c.Session, h.Settle); snap.Authenticated() {
		Navigate(w, r, h.Paths.Landing)
		return
	}
	flow := c.BeginRegistration()
	h.renderRegister(w, r, http.StatusOK, RegisterView{State: flow.View().State})
}

// RegisterSubmit serves POST /register. Approved registrations navigate to
// the landing path at once; pending ones render the approval message and a
// poller for the delayed redirect.
func (h *AuthHandlers) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	form := domainauth.RegistrationForm{
		Name:            r.PostForm.Get("name"),
		Email:           r.PostForm.Get("email"),
		Password:        r.PostForm.Get("password"),
		ConfirmPassword: r.PostForm.Get("confirm_password"),
	}
	form.Normalize()
	view := RegisterView{Name: form.Name, Email: form.Email}

	flow, ok := c.Registration()
	if !ok {
		flow = c.BeginRegistration()
	}
	step, err := flow.Submit(r.Context(), form)
	if errors.Is(err, service.ErrFlowClosed) {
		// Torn down by another tab; this submission starts over.
		flow = c.BeginRegistration()
		step, err = flow.Submit(r.Context(), form)
	}

	if err != nil {
		status := statusForError(err)
		current := flow.View()
		view.State = current.State
		switch {
		case errors.Is(err, service.ErrSubmissionInFlight):
			view.State = service.FlowIdle
			view.Error = errMsgSubmitting
		case errors.Is(err, service.ErrFlowFinished):
			view.Message = current.Message
			status = http.StatusOK
		default:
			h.logger().InfoContext(r.Context(), "registration rejected",
				"email", form.Email,
				"code", string(apperrors.GetCode(err)),
			)
			view.Error = apperrors.UserMessage(err)
			view.Fields = fieldErrors(err)
		}
		h.renderRegister(w, r, status, view)
		return
	}

	if step.Outcome == domainauth.OutcomeApproved {
		c.LeaveRegistration()
		Navigate(w, r, step.Redirect)
		return
	}

	view.State = service.FlowPending
	view.Message = step.Message
	h.renderRegister(w, r, http.StatusOK, view)
}

// RegisterStatus serves GET /register/status, polled by the pending approval
// panel. It answers with the login redirect exactly once, after the delay.
func (h *AuthHandlers) RegisterStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		w.WriteHeader(StatusStopPolling)
		return
	}
	flow, ok := c.Registration()
	if !ok {
		w.WriteHeader(StatusStopPolling)
		return
	}

	if target, fired := flow.TakeRedirect(); fired {
		c.LeaveRegistration()
		Navigate(w, r, target)
		return
	}

	view := flow.View()
	if view.State != service.FlowPending {
		w.WriteHeader(StatusStopPolling)
		return
	}
	if IsHTMX(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.renderRegister(w, r, http.StatusOK, RegisterView{State: view.State, Message: view.Message})
}

// RegisterDismiss serves POST /register/dismiss, sent when the registration
// page is closed or left, and cancels any scheduled redirect.
func (h *AuthHandlers) RegisterDismiss(w http.ResponseWriter, r *http.Request) {
	if c, ok := ConsoleFromContext(r.Context()); ok && c.LeaveRegistration() {
		h.logger().DebugContext(r.Context(), "pending redirect cancelled", "console_id", c.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout serves POST /logout. It always succeeds.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, ok := ConsoleFromContext(r.Context()); ok {
		c.LeaveRegistration()
		c.Session.Logout(r.Context())
	}
	Navigate(w, r, h.Paths.Login)
}

// LeaveRegistrationOnNavigate tears the active registration flow down when
// the browser navigates to a page outside the registration form.
func LeaveRegistrationOnNavigate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if c, ok := ConsoleFromContext(r.Context()); ok {
				c.LeaveRegistration()
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AuthHandlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, view LoginView) {
	data := basePageData(r, h.Paths, "Sign in", "page-login")
	data.Data = view
	h.render(w, r, status, data, "login-form")
}

func (h *AuthHandlers) renderRegister(w http.ResponseWriter, r *http.Request, status int, view RegisterView) {
	data := basePageData(r, h.Paths, "Create account", "page-register")
	data.Data = view
	h.render(w, r, status, data, "register-panel")
}

// render answers htmx form posts with just the form fragment.
func (h *AuthHandlers) render(w http.ResponseWriter, r *http.Request, status int, data PageData, fragment string) {
	var err error
	if r.Method == http.MethodPost && WantsPartial(r) {
		err = h.T.Render(w, status, fragment, data)
	} else {
		err = h.T.RenderPage(w, r, status, data)
	}
	if err != nil {
		h.logger().ErrorContext(r.Context(), "render failed", "page", data.Page, "error", err)
	}
}

// nextTarget accepts a post-login destination only when it is a local path
// other than the sign-in and registration pages.
func (h *AuthHandlers) nextTarget(next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return h.Paths.Landing
	}
	next = SafeRedirectPath(next)
	for _, p := range []string{h.Paths.Login, h.Paths.Register} {
		if p != "" && (next == p || strings.HasPrefix(next, p+"?") || strings.HasPrefix(next, p+"/")) {
			return h.Paths.Landing
		}
	}
	return next
}

// statusForError maps the error taxonomy onto response codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrSubmissionInFlight), errors.Is(err, service.ErrSuperseded):
		return http.StatusConflict
	case apperrors.IsInvalidCredentials(err), apperrors.IsSessionExpired(err):
		return http.StatusUnauthorized
	case apperrors.IsValidation(err):
		return http.StatusUnprocessableEntity
	case apperrors.IsNetwork(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fieldErrors merges local form errors with a backend field error.
func fieldErrors(err error) map[string]string {
	fields := maps.Clone(domainauth.FieldErrors(err))
	if field := apperrors.GetField(err); field != "" {
		if fields == nil {
			fields = make(map[string]string, 1)
		}
		if _, exists := fields[field]; !exists {
			fields[field] = apperrors.UserMessage(err)
		}
	}
	return fields
}
