package tokenverify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/ports"
)

// OIDCConfig holds configuration for OIDCVerifier.
type OIDCConfig struct {
	// Issuer is the expected iss claim. When JWKSURL is empty the key set
	// location is discovered from the issuer's openid-configuration.
	Issuer   string
	JWKSURL  string
	Audience string
	// KeySet overrides remote key retrieval.
	KeySet     gooidc.KeySet
	HTTPClient *http.Client
	Now        func() time.Time
}

// OIDCVerifier verifies token signatures against the issuer's JWKS.
type OIDCVerifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewOIDCVerifier creates a verifier. Discovery happens once, here.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	issuer := strings.TrimSuffix(cfg.Issuer, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	// Keys are fetched lazily with this context, so it must outlive the call.
	keyCtx := gooidc.ClientContext(context.WithoutCancel(ctx), httpClient)

	oidcCfg := &gooidc.Config{
		ClientID:          cfg.Audience,
		SkipClientIDCheck: cfg.Audience == "",
		Now:               cfg.Now,
	}

	keys := cfg.KeySet
	switch {
	case keys != nil:
	case cfg.JWKSURL != "":
		keys = gooidc.NewRemoteKeySet(keyCtx, cfg.JWKSURL)
	default:
		op, err := gooidc.NewProvider(context.WithValue(ctx, oauth2.HTTPClient, httpClient), issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		return &OIDCVerifier{verifier: op.Verifier(oidcCfg)}, nil
	}
	return &OIDCVerifier{verifier: gooidc.NewVerifier(issuer, keys, oidcCfg)}, nil
}

// Verify implements ports.TokenVerifier. Every verification failure is
// reported as SessionExpired; a cancelled context is reported as a network
// failure so the persisted token survives.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (ports.TokenClaims, error) {
	idTok, err := v.verifier.Verify(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ports.TokenClaims{}, apperrors.Network(ctxErr)
		}
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return ports.TokenClaims{ExpiresAt: expired.Expiry}, apperrors.SessionExpired(fmt.Errorf("%w: %w", ErrTokenExpired, err))
		}
		return ports.TokenClaims{}, apperrors.SessionExpired(err)
	}
	return ports.TokenClaims{Subject: idTok.Subject, ExpiresAt: idTok.Expiry}, nil
}
