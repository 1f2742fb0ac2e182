package tokenverify

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/ledger-console/internal/errors"
)

const testKID = "test-key"

type issuerServer struct {
	*httptest.Server
	key *rsa.PrivateKey
}

func newIssuerServer(t *testing.T) *issuerServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	s := &issuerServer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 s.URL,
			"authorization_endpoint": s.URL + "/authorize",
			"token_endpoint":         s.URL + "/token",
			"jwks_uri":               s.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		pub := key.PublicKey
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": testKID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *issuerServer) sign(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestOIDCVerifier(t *testing.T) {
	srv := newIssuerServer(t)
	now := time.Now()

	configs := map[string]OIDCConfig{
		"discovery": {Issuer: srv.URL, Audience: "ledger-console"},
		"jwks url":  {Issuer: srv.URL, JWKSURL: srv.URL + "/jwks", Audience: "ledger-console"},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v, err := NewOIDCVerifier(ctx, cfg)
			require.NoError(t, err)

			valid := srv.sign(t, srv.key, jwt.RegisteredClaims{
				Issuer:    srv.URL,
				Subject:   "u1",
				Audience:  jwt.ClaimStrings{"ledger-console"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			})
			claims, err := v.Verify(ctx, valid)
			require.NoError(t, err)
			assert.Equal(t, "u1", claims.Subject)

			expired := srv.sign(t, srv.key, jwt.RegisteredClaims{
				Issuer:    srv.URL,
				Subject:   "u1",
				Audience:  jwt.ClaimStrings{"ledger-console"},
				IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			})
			_, err = v.Verify(ctx, expired)
			require.ErrorIs(t, err, ErrTokenExpired)
			assert.True(t, apperrors.IsSessionExpired(err))

			otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
			require.NoError(t, err)
			forged := srv.sign(t, otherKey, jwt.RegisteredClaims{
				Issuer:    srv.URL,
				Audience:  jwt.ClaimStrings{"ledger-console"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			})
			_, err = v.Verify(ctx, forged)
			assert.True(t, apperrors.IsSessionExpired(err))

			wrongAudience := srv.sign(t, srv.key, jwt.RegisteredClaims{
				Issuer:    srv.URL,
				Audience:  jwt.ClaimStrings{"someone-else"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			})
			_, err = v.Verify(ctx, wrongAudience)
			assert.True(t, apperrors.IsSessionExpired(err))
		})
	}
}

func TestNewOIDCVerifier_RequiresIssuer(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{})
	require.Error(t, err)
}
