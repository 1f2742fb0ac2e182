package devauth

// Package devauth provides an in-process authentication backend for local
// development: seeded users, bcrypt password hashes, HS256 session tokens and
// an optional manual approval queue for registrations.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/ports"
)

// ApprovalMode selects what happens to new registrations.
type ApprovalMode string

const (
	// ApprovalAuto approves and signs in every registration.
	ApprovalAuto ApprovalMode = "auto"
	// ApprovalManual queues registrations for an administrator.
	ApprovalManual ApprovalMode = "manual"
)

// PendingMessage is returned for registrations queued for approval.
const PendingMessage = "Your account is awaiting approval. An administrator will review it shortly."

const (
	defaultTokenTTL = 8 * time.Hour
	tokenIssuer     = "ledger-console-dev"
)

var (
	_ ports.AuthBackend   = (*Backend)(nil)
	_ ports.ApprovalQueue = (*Backend)(nil)
)

// SeedUser is an account present at startup.
type SeedUser struct {
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
}

// Config controls the dev backend.
type Config struct {
	Users      []SeedUser
	Approval   ApprovalMode
	SigningKey []byte
	TokenTTL   time.Duration
	HashCost   int
	Now        func() time.Time
}

type account struct {
	id       string
	name     string
	email    string
	hash     []byte
	isAdmin  bool
	created  time.Time
	approved bool
}

func (a *account) user() domainauth.User {
	return domainauth.User{ID: a.id, Name: a.name, Email: a.email, IsAdmin: a.isAdmin}
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Backend implements ports.AuthBackend and ports.ApprovalQueue in memory.
type Backend struct {
	mode ApprovalMode
	key  []byte
	ttl  time.Duration
	cost int
	now  func() time.Time

	mu       sync.RWMutex
	accounts map[string]*account
	revoked  map[string]time.Time
}

// NewBackend constructs a dev backend from Config.
func NewBackend(cfg Config) (*Backend, error) {
	if len(cfg.SigningKey) < 16 {
		return nil, errors.New("dev auth: signing key must be at least 16 bytes")
	}
	mode := cfg.Approval
	switch mode {
	case "":
		mode = ApprovalAuto
	case ApprovalAuto, ApprovalManual:
	default:
		return nil, fmt.Errorf("dev auth: unknown approval mode %q", mode)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	b := &Backend{
		mode:     mode,
		key:      append([]byte(nil), cfg.SigningKey...),
		ttl:      ttl,
		cost:     cost,
		now:      now,
		accounts: make(map[string]*account, len(cfg.Users)),
		revoked:  make(map[string]time.Time),
	}
	for _, u := range cfg.Users {
		email := normalizeEmail(u.Email)
		if email == "" {
			return nil, errors.New("dev auth: seeded user without email")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("dev auth: user %s: invalid bcrypt hash: %w", email, err)
		}
		name := strings.TrimSpace(u.Name)
		if name == "" {
			name = email
		}
		b.accounts[email] = &account{
			id:       uuid.NewString(),
			name:     name,
			email:    email,
			hash:     []byte(u.PasswordHash),
			isAdmin:  u.IsAdmin,
			created:  now(),
			approved: true,
		}
	}
	return b, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Login checks the password and issues a token.
func (b *Backend) Login(ctx context.Context, email, password string) (domainauth.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.Credentials{}, apperrors.Network(err)
	}
	b.mu.RLock()
	acct, ok := b.accounts[normalizeEmail(email)]
	b.mu.RUnlock()
	if !ok {
		// Keep timing similar for unknown emails.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoO.HdfhZaGPeU0z2K9MBZ8M8hGU4fGdO."), []byte(password))
		return domainauth.Credentials{}, apperrors.InvalidCredentials("")
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return domainauth.Credentials{}, apperrors.InvalidCredentials("")
	}
	if !acct.approved {
		return domainauth.Credentials{}, apperrors.InvalidCredentials(PendingMessage)
	}
	return b.issue(acct)
}

// Register creates an account. In manual mode it is queued for approval.
func (b *Backend) Register(ctx context.Context, in domainauth.RegisterInput) (domainauth.RegistrationResult, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.RegistrationResult{}, apperrors.Network(err)
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return domainauth.RegistrationResult{}, apperrors.ValidationField("email", "Email is required.")
	}
	if in.Password == "" {
		return domainauth.RegistrationResult{}, apperrors.ValidationField("password", "Password is required.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), b.cost)
	if err != nil {
		return domainauth.RegistrationResult{}, apperrors.ValidationField("password", "Password cannot be used.")
	}

	b.mu.Lock()
	if _, exists := b.accounts[email]; exists {
		b.mu.Unlock()
		return domainauth.RegistrationResult{}, apperrors.ValidationField("email", "Email already registered.")
	}
	acct := &account{
		id:       uuid.NewString(),
		name:     strings.TrimSpace(in.Name),
		email:    email,
		hash:     hash,
		created:  b.now(),
		approved: b.mode == ApprovalAuto,
	}
	b.accounts[email] = acct
	b.mu.Unlock()

	if !acct.approved {
		return domainauth.NewPendingApproval(PendingMessage), nil
	}
	creds, err := b.issue(acct)
	if err != nil {
		return domainauth.RegistrationResult{}, err
	}
	return domainauth.NewApproved(domainauth.Approved{Credentials: creds}), nil
}

// ResolveToken verifies a token and returns its user.
func (b *Backend) ResolveToken(ctx context.Context, token string) (domainauth.User, error) {
	if err := ctx.Err(); err != nil {
		return domainauth.User{}, apperrors.Network(err)
	}
	claims, err := b.parse(token, true)
	if err != nil {
		return domainauth.User{}, apperrors.SessionExpired(err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, revoked := b.revoked[claims.ID]; revoked {
		return domainauth.User{}, apperrors.SessionExpired(errors.New("token revoked"))
	}
	acct, ok := b.accounts[normalizeEmail(claims.Email)]
	if !ok || !acct.approved || acct.id != claims.Subject {
		return domainauth.User{}, apperrors.SessionExpired(errors.New("account no longer exists"))
	}
	return acct.user(), nil
}

// Revoke invalidates a token until it would have expired anyway.
func (b *Backend) Revoke(_ context.Context, token string) error {
	claims, err := b.parse(token, false)
	if err != nil {
		return apperrors.SessionExpired(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for id, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, id)
		}
	}
	exp := now.Add(b.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	b.revoked[claims.ID] = exp
	return nil
}

// ListPending returns registrations awaiting approval, oldest first.
func (b *Backend) ListPending(_ context.Context) ([]ports.PendingAccount, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []ports.PendingAccount
	for _, a := range b.accounts {
		if !a.approved {
			out = append(out, ports.PendingAccount{Name: a.name, Email: a.email, RequestedAt: a.created})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

// Approve lets a pending account sign in.
func (b *Backend) Approve(_ context.Context, email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[normalizeEmail(email)]
	if !ok || acct.approved {
		return apperrors.NotFound("No pending registration for that email.")
	}
	acct.approved = true
	return nil
}

func (b *Backend) issue(acct *account) (domainauth.Credentials, error) {
	now := b.now()
	exp := now.Add(b.ttl)
	claims := tokenClaims{
		Email: acct.email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   acct.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
	if err != nil {
		return domainauth.Credentials{}, fmt.Errorf("sign token: %w", err)
	}
	return domainauth.Credentials{Token: signed, User: acct.user(), ExpiresAt: exp}, nil
}

func (b *Backend) parse(token string, checkExpiry bool) (*tokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(b.now),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return b.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseUsers parses "email:bcrypt-hash[:admin]" entries separated by commas.
func ParseUsers(raw string) ([]SeedUser, error) {
	var users []SeedUser
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("dev auth user %q: want email:hash[:admin]", entry)
		}
		u := SeedUser{Email: parts[0], PasswordHash: parts[1]}
		if len(parts) == 3 {
			switch strings.ToLower(parts[2]) {
			case "admin":
				u.IsAdmin = true
			case "", "user":
			default:
				return nil, fmt.Errorf("dev auth user %q: unknown role %q", entry, parts[2])
			}
		}
		users = append(users, u)
	}
	return users, nil
}
