package tokenverify

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/ledger-console/internal/errors"
)

var inspectNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func hsToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-key-the-backend-owns"))
	require.NoError(t, err)
	return s
}

func TestClaimsInspector_Verify(t *testing.T) {
	inspector := NewClaimsInspector(InspectorConfig{
		Leeway: 30 * time.Second,
		Now:    func() time.Time { return inspectNow },
	})
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		exp := inspectNow.Add(time.Hour)
		claims, err := inspector.Verify(ctx, hsToken(t, jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(exp),
		}))
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.Subject)
		assert.True(t, exp.Equal(claims.ExpiresAt))
	})

	t.Run("expired", func(t *testing.T) {
		_, err := inspector.Verify(ctx, hsToken(t, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(inspectNow.Add(-time.Minute)),
		}))
		require.ErrorIs(t, err, ErrTokenExpired)
		assert.True(t, apperrors.IsSessionExpired(err))
	})

	t.Run("within leeway", func(t *testing.T) {
		_, err := inspector.Verify(ctx, hsToken(t, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(inspectNow.Add(-10 * time.Second)),
		}))
		require.NoError(t, err)
	})

	t.Run("no exp", func(t *testing.T) {
		claims, err := inspector.Verify(ctx, hsToken(t, jwt.RegisteredClaims{Subject: "u2"}))
		require.NoError(t, err)
		assert.True(t, claims.ExpiresAt.IsZero())
	})

	t.Run("opaque", func(t *testing.T) {
		claims, err := inspector.Verify(ctx, "opaque-session-token")
		require.NoError(t, err)
		assert.Empty(t, claims.Subject)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := inspector.Verify(ctx, "")
		assert.True(t, apperrors.IsSessionExpired(err))
	})
}

func TestClaimsInspector_RequireJWT(t *testing.T) {
	inspector := NewClaimsInspector(InspectorConfig{RequireJWT: true})
	_, err := inspector.Verify(context.Background(), "opaque-session-token")
	assert.True(t, apperrors.IsSessionExpired(err))
}
