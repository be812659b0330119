package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/model"
	"supportdesk/internal/store"
	"supportdesk/internal/store/storetest"
)

func TestTicketStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.TicketStore {
		return setupTestStore(t, now)
	})
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t, storetest.FrozenClock())

	_, err := s.AccountByUsername(ctx, "admin")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertAccount(ctx, model.StaffAccount{ID: "admin-001", Username: "admin", PasswordHash: "h", Role: "admin"}))
	acct, err := s.AccountByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin-001", acct.ID)
	assert.Equal(t, "admin", acct.Role)
}

func setupTestStore(t *testing.T, now func() time.Time) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DATABASE_URL is required for integration tests")
	}

	ctx := context.Background()
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	s := NewStore(pool, Options{Now: now})
	require.NoError(t, s.Migrate(ctx))

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		_ = admin.Close(context.Background())
	})
	return s
}
