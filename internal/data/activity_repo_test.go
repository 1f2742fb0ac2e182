package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/testutil"
)

func TestActivityRepo_RecordAndList(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
		repo := NewActivityRepo(db).WithTimeProvider(clock)

		events := []domainauth.ActivityEvent{
			{ConsoleID: "c1", Kind: domainauth.ActivityLogin, Outcome: domainauth.OutcomeFailure, Email: "Ana@X.com", ErrorCode: "invalid_credentials"},
			{ConsoleID: "c1", Kind: domainauth.ActivityLogin, Outcome: domainauth.OutcomeSuccess, Email: "ana@x.com"},
			{ConsoleID: "c2", Kind: domainauth.ActivityRegister, Outcome: domainauth.OutcomePending, Email: "bob@x.com"},
		}
		for _, evt := range events {
			require.NoError(t, repo.Record(ctx, evt))
			clock.AddTime(time.Minute)
		}

		all, err := repo.List(ctx, domainauth.ActivityListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, domainauth.ActivityRegister, all[0].Kind, "newest first")
		assert.Equal(t, domainauth.OutcomeFailure, all[2].Outcome)
		assert.Equal(t, "invalid_credentials", all[2].ErrorCode)
		_, err = uuid.Parse(all[0].ID)
		require.NoError(t, err)

		byEmail, err := repo.List(ctx, domainauth.ActivityListOptions{Email: "ANA@x.com"})
		require.NoError(t, err)
		assert.Len(t, byEmail, 2)

		byKind, err := repo.List(ctx, domainauth.ActivityListOptions{Kind: domainauth.ActivityRegister})
		require.NoError(t, err)
		require.Len(t, byKind, 1)
		assert.Equal(t, "c2", byKind[0].ConsoleID)

		limited, err := repo.List(ctx, domainauth.ActivityListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		got, err := repo.GetByID(ctx, all[1].ID)
		require.NoError(t, err)
		assert.Equal(t, all[1].Outcome, got.Outcome)
	})
}

func TestActivityRepo_RecordValidates(t *testing.T) {
	repo := NewActivityRepo(nil)
	ctx := context.Background()

	err := repo.Record(ctx, domainauth.ActivityEvent{Kind: domainauth.ActivityLogin})
	require.ErrorIs(t, err, ErrConsoleIDRequired)

	err = repo.Record(ctx, domainauth.ActivityEvent{ConsoleID: "c1", Kind: "sudo"})
	require.ErrorIs(t, err, ErrActivityKindInvalid)
}

func TestActivityRepo_GetByIDRejectsMalformedID(t *testing.T) {
	_, err := NewActivityRepo(nil).GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestActivityRepo_Prune(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		repo := NewActivityRepo(db)

		require.NoError(t, repo.Record(ctx, domainauth.ActivityEvent{
			ConsoleID: "c1", Kind: domainauth.ActivityLogout, Outcome: domainauth.OutcomeSuccess, CreatedAt: base.Add(-48 * time.Hour),
		}))
		require.NoError(t, repo.Record(ctx, domainauth.ActivityEvent{
			ConsoleID: "c1", Kind: domainauth.ActivityLogin, Outcome: domainauth.OutcomeSuccess, CreatedAt: base,
		}))

		n, err := repo.Prune(ctx, base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		left, err := repo.List(ctx, domainauth.ActivityListOptions{})
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, domainauth.ActivityLogin, left[0].Kind)
	})
}
