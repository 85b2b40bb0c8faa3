package oauth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load("../../example.env")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// TestSlidingWindowExpiry reproduces the scenario: lifetime 1s, validated at
// 300ms (extended), validated again at 900ms (still valid because the first
// validation pushed expiry to 1.3s), then left untouched past 2.1s (expired).
func TestSlidingWindowExpiry(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := NewStore(pool)
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.RegisterClient(ctx, "client-sliding", "Sliding", nil, []string{"client_credentials"}, "read", "none"))

	clock := NewFakeClock(time.Now())
	store.WithClock(clock)

	access, _, err := store.CreateToken(ctx, "client-sliding", "user-1", "read", false, time.Second)
	require.NoError(t, err)

	clock.Advance(300 * time.Millisecond)
	_, valid, err := store.ValidateAndExtend(ctx, access.Raw, time.Second)
	require.NoError(t, err)
	require.True(t, valid)

	clock.Advance(600 * time.Millisecond) // total elapsed: 900ms since issuance
	_, valid, err = store.Validate(ctx, access.Raw)
	require.NoError(t, err)
	require.True(t, valid, "token extended at 300ms should still be valid at 900ms")

	clock.Advance(1200 * time.Millisecond) // total elapsed: 2.1s, no further validation in between
	_, valid, err = store.Validate(ctx, access.Raw)
	require.NoError(t, err)
	require.False(t, valid, "token should have expired by 2.1s with no intervening validation")
}

func TestRevokeIsIdempotent(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := NewStore(pool)
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.RegisterClient(ctx, "client-revoke", "Revoke", nil, []string{"client_credentials"}, "read", "none"))

	access, _, err := store.CreateToken(ctx, "client-revoke", "user-1", "read", false, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, access.Raw))
	require.NoError(t, store.Revoke(ctx, access.Raw)) // idempotent

	_, valid, err := store.Validate(ctx, access.Raw)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestIntrospectInactiveForGarbage(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := NewStore(pool)
	require.NoError(t, store.InitSchema(ctx))

	resp, err := store.Introspect(ctx, "not-a-real-token")
	require.NoError(t, err)
	require.False(t, resp.Active)
	require.Empty(t, resp.Scope)
}

func TestIntrospectActiveToken(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := NewStore(pool)
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.RegisterClient(ctx, "client-introspect", "Introspect", nil, []string{"client_credentials"}, "read write", "none"))

	access, _, err := store.CreateToken(ctx, "client-introspect", "user-42", "read write", false, time.Minute)
	require.NoError(t, err)

	resp, err := store.Introspect(ctx, access.Raw)
	require.NoError(t, err)
	require.True(t, resp.Active)
	require.Equal(t, "read write", resp.Scope)
	require.Equal(t, "client-introspect", resp.ClientID)
	require.Equal(t, "user-42", resp.Sub)
}

func TestGetTokenExpiryInfoWarnsNearExpiry(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := NewStore(pool)
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.RegisterClient(ctx, "client-expiry", "Expiry", nil, []string{"client_credentials"}, "read", "none"))

	clock := NewFakeClock(time.Now())
	store.WithClock(clock)

	access, _, err := store.CreateToken(ctx, "client-expiry", "user-1", "read", false, 200*time.Second)
	require.NoError(t, err)

	info, ok, err := store.GetTokenExpiryInfo(ctx, access.Raw)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, info.ShouldWarn)
	require.Less(t, info.SecondsUntilExpiry, int64(300))
}
