package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/ledger-console/config"
	"github.com/target/ledger-console/internal/adapters/authapi"
	"github.com/target/ledger-console/internal/adapters/devauth"
	"github.com/target/ledger-console/internal/adapters/tokenverify"
	"github.com/target/ledger-console/internal/ports"
)

// tokenLeeway tolerates clock skew between the console and the token issuer.
const tokenLeeway = 30 * time.Second

// AuthDeps contains what BuildAuth needs to pick and build a backend.
type AuthDeps struct {
	Auth   config.AuthConfig
	IsDev  bool
	Logger *slog.Logger
}

// AuthComponents are the session collaborators for the configured mode.
// Approvals is nil when the backend has no approval queue.
type AuthComponents struct {
	Backend   ports.AuthBackend
	Verifier  ports.TokenVerifier
	Approvals ports.ApprovalQueue
}

// BuildAuth creates the auth backend and token verifier for the configured mode.
func BuildAuth(ctx context.Context, deps AuthDeps) (AuthComponents, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Auth.Mode {
	case config.AuthModeDev:
		return buildDevAuth(deps.Auth, deps.IsDev, logger)
	case config.AuthModeRemote, "":
		return buildRemoteAuth(ctx, deps.Auth, logger)
	default:
		return AuthComponents{}, fmt.Errorf("unsupported auth mode %q", deps.Auth.Mode)
	}
}

func buildDevAuth(cfg config.AuthConfig, isDev bool, logger *slog.Logger) (AuthComponents, error) {
	users, err := devauth.ParseUsers(cfg.Dev.Users)
	if err != nil {
		return AuthComponents{}, fmt.Errorf("parse DEV_AUTH_USERS: %w", err)
	}

	key := []byte(cfg.Dev.SigningKey)
	if len(key) == 0 {
		if !isDev {
			return AuthComponents{}, errors.New("dev auth requires DEV_AUTH_SIGNING_KEY outside development mode")
		}
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return AuthComponents{}, fmt.Errorf("generate dev signing key: %w", err)
		}
		logger.Warn("dev auth using an ephemeral signing key; sessions end on restart")
	}

	backend, err := devauth.NewBackend(devauth.Config{
		Users:      users,
		Approval:   devauth.ApprovalMode(cfg.Dev.Approval),
		SigningKey: key,
		TokenTTL:   cfg.Dev.TokenTTL,
	})
	if err != nil {
		return AuthComponents{}, fmt.Errorf("create dev auth backend: %w", err)
	}

	logger.Warn("dev auth backend enabled",
		"seeded_users", len(users),
		"approval", cfg.Dev.Approval,
	)

	return AuthComponents{
		Backend:   backend,
		Verifier:  tokenverify.NewClaimsInspector(tokenverify.InspectorConfig{RequireJWT: true, Leeway: tokenLeeway}),
		Approvals: backend,
	}, nil
}

func buildRemoteAuth(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (AuthComponents, error) {
	mapper, err := authapi.NewUserMapper(authapi.UserMapping{
		ID:      cfg.Remote.UserIDExpr,
		Name:    cfg.Remote.UserNameExpr,
		Email:   cfg.Remote.UserEmailExpr,
		IsAdmin: cfg.Remote.UserIsAdminExpr,
	})
	if err != nil {
		return AuthComponents{}, fmt.Errorf("compile user mapping: %w", err)
	}

	client, err := authapi.NewClient(authapi.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Timeout,
		Mapper:  mapper,
		Logger:  logger,
	})
	if err != nil {
		return AuthComponents{}, fmt.Errorf("create auth api client: %w", err)
	}

	verifier, err := buildVerifier(ctx, cfg, logger)
	if err != nil {
		return AuthComponents{}, err
	}

	return AuthComponents{Backend: client, Verifier: verifier}, nil
}

//nolint:ireturn // the verifier implementation depends on configuration.
func buildVerifier(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (ports.TokenVerifier, error) {
	if cfg.Remote.JWKSURL == "" && cfg.Remote.Issuer == "" {
		return tokenverify.NewClaimsInspector(tokenverify.InspectorConfig{
			RequireJWT: cfg.Remote.RequireJWT,
			Leeway:     tokenLeeway,
		}), nil
	}

	discoverCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	verifier, err := tokenverify.NewOIDCVerifier(discoverCtx, tokenverify.OIDCConfig{
		Issuer:     cfg.Remote.Issuer,
		JWKSURL:    cfg.Remote.JWKSURL,
		Audience:   cfg.Remote.Audience,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create token verifier: %w", err)
	}
	logger.Info("persisted tokens verified against issuer keys", "issuer", cfg.Remote.Issuer)
	return verifier, nil
}
