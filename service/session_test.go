package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearmesh/agentgate/adapters/store"
	"github.com/clearmesh/agentgate/core"
)

const walletA = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"

func newSessionFixture(t *testing.T) (*SessionService, *clock) {
	t.Helper()
	st := store.NewMemoryStore()
	ck := newClock()
	st.SetClock(ck.now)
	svc := NewSessionService(st, nil, nil)
	svc.SetClock(ck.now)
	return svc, ck
}

func TestSessionCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionFixture(t)

	session := svc.Create(ctx, walletA, string(core.AccessAuthenticated), false, false)
	require.NotEmpty(t, session.ID)
	require.Equal(t, 24*time.Hour, session.ExpiresAt.Sub(session.CreatedAt))

	got := svc.Get(ctx, session.ID)
	require.NotNil(t, got)
	require.Equal(t, walletA, got.Address)
	require.False(t, got.IsRegistered)

	require.Nil(t, svc.Get(ctx, "unknown"))
	require.Nil(t, svc.Get(ctx, ""))
}

func TestSessionAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	svc, ck := newSessionFixture(t)

	session := svc.Create(ctx, walletA, string(core.AccessAuthenticated), false, false)

	ck.advance(24*time.Hour - time.Second)
	require.NotNil(t, svc.Get(ctx, session.ID))

	ck.advance(2 * time.Second)
	require.Nil(t, svc.Get(ctx, session.ID), "expired at/after the 24h mark")
	// Opportunistically deleted: still gone afterwards.
	require.Nil(t, svc.Get(ctx, session.ID))
}

func TestSessionInvalidateIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionFixture(t)

	session := svc.Create(ctx, walletA, string(core.AccessAuthenticated), false, false)
	require.True(t, svc.Invalidate(ctx, session.ID))
	require.False(t, svc.Invalidate(ctx, session.ID))
	require.Nil(t, svc.Get(ctx, session.ID))
}

func TestSessionInvalidateAllForWallet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSessionFixture(t)

	s1 := svc.Create(ctx, walletA, string(core.AccessAuthenticated), false, false)
	s2 := svc.Create(ctx, walletA, string(core.AccessAuthenticated), false, false)
	other := svc.Create(ctx, "0x0000000000000000000000000000000000000001", string(core.AccessAuthenticated), false, false)

	// Case-insensitive wallet match.
	count := svc.InvalidateAllForWallet(ctx, "0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359")
	require.Equal(t, 2, count)
	require.Nil(t, svc.Get(ctx, s1.ID))
	require.Nil(t, svc.Get(ctx, s2.ID))
	require.NotNil(t, svc.Get(ctx, other.ID))
}

func TestSessionUpdateRegistrationFlag(t *testing.T) {
	ctx := context.Background()
	svc, ck := newSessionFixture(t)

	session := svc.Create(ctx, walletA, string(core.AccessAuthenticated), false, false)
	ck.advance(time.Hour)

	svc.UpdateRegistrationFlag(ctx, session.ID)
	got := svc.Get(ctx, session.ID)
	require.NotNil(t, got)
	require.True(t, got.IsRegistered)
	require.Equal(t, session.ExpiresAt, got.ExpiresAt, "absolute expiry is preserved")

	// No-op for unknown sessions.
	svc.UpdateRegistrationFlag(ctx, "unknown")
}
