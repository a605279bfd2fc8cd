package service

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/clearmesh/agentgate/adapters/store"
	"github.com/clearmesh/agentgate/core"
)

type testWallet struct {
	address string
	sign    func(message string) string
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testWallet{
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		sign: func(message string) string {
			sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
			require.NoError(t, err)
			return hex.EncodeToString(sig)
		},
	}
}

type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newChallengeFixture(t *testing.T) (*ChallengeService, *store.MemoryStore, *clock) {
	t.Helper()
	st := store.NewMemoryStore()
	ck := newClock()
	st.SetClock(ck.now)
	svc := NewChallengeService(st, nil)
	svc.SetClock(ck.now)
	return svc, st, ck
}

func TestChallengeIssueNoncesAreUnique(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newChallengeFixture(t)
	wallet := newTestWallet(t)

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		challenge, text, err := svc.Issue(ctx, wallet.address)
		require.NoError(t, err)
		require.NotEmpty(t, text)
		require.False(t, seen[challenge.Nonce], "nonces must be pairwise distinct")
		seen[challenge.Nonce] = true
	}
}

func TestChallengeIssueCapsOutstanding(t *testing.T) {
	ctx := context.Background()
	svc, _, ck := newChallengeFixture(t)
	wallet := newTestWallet(t)

	for i := 0; i < 3; i++ {
		_, _, err := svc.Issue(ctx, wallet.address)
		require.NoError(t, err)
	}
	_, _, err := svc.Issue(ctx, wallet.address)
	require.ErrorIs(t, err, core.ErrTooManyChallenges)

	// A different wallet is unaffected.
	other := newTestWallet(t)
	_, _, err = svc.Issue(ctx, other.address)
	require.NoError(t, err)

	// Expired nonces age out of the cap.
	ck.advance(6 * time.Minute)
	_, _, err = svc.Issue(ctx, wallet.address)
	require.NoError(t, err)
}

func TestChallengeVerifySucceedsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newChallengeFixture(t)
	wallet := newTestWallet(t)

	_, text, err := svc.Issue(ctx, wallet.address)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, wallet.address, wallet.sign(text), text))

	// Single use: the nonce is consumed.
	err = svc.Verify(ctx, wallet.address, wallet.sign(text), text)
	require.ErrorIs(t, err, core.ErrUnknownChallenge)
}

func TestChallengeVerifyRejections(t *testing.T) {
	ctx := context.Background()
	svc, _, ck := newChallengeFixture(t)
	wallet := newTestWallet(t)
	other := newTestWallet(t)

	_, text, err := svc.Issue(ctx, wallet.address)
	require.NoError(t, err)

	t.Run("malformed text", func(t *testing.T) {
		err := svc.Verify(ctx, wallet.address, wallet.sign("junk"), "junk")
		require.ErrorIs(t, err, core.ErrMalformedChallenge)
	})

	t.Run("address mismatch in text", func(t *testing.T) {
		err := svc.Verify(ctx, other.address, other.sign(text), text)
		require.ErrorIs(t, err, core.ErrAddressMismatch)
	})

	t.Run("wrong signer", func(t *testing.T) {
		err := svc.Verify(ctx, wallet.address, other.sign(text), text)
		require.ErrorIs(t, err, core.ErrInvalidSignature)
	})

	t.Run("stale issuance timestamp", func(t *testing.T) {
		ck.advance(10 * time.Minute)
		err := svc.Verify(ctx, wallet.address, wallet.sign(text), text)
		require.ErrorIs(t, err, core.ErrStaleChallenge)
	})
}

func TestChallengeVerifyUnknownNonce(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newChallengeFixture(t)
	wallet := newTestWallet(t)

	_, text, err := svc.Issue(ctx, wallet.address)
	require.NoError(t, err)

	// Drop the stored record; the well-formed text alone must not verify.
	keys, err := st.Keys(ctx, "challenge:")
	require.NoError(t, err)
	for _, k := range keys {
		_, err := st.Delete(ctx, k)
		require.NoError(t, err)
	}

	err = svc.Verify(ctx, wallet.address, wallet.sign(text), text)
	require.ErrorIs(t, err, core.ErrUnknownChallenge)
}

func TestChallengeIssueRejectsBadAddress(t *testing.T) {
	svc, _, _ := newChallengeFixture(t)
	_, _, err := svc.Issue(context.Background(), "not-an-address")
	require.ErrorIs(t, err, core.ErrInvalidAddress)
}
