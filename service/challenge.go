package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/internal/eth"
	"github.com/clearmesh/agentgate/ports"
)

const (
	challengeTTL      = 5 * time.Minute
	maxOpenChallenges = 3

	challengeKeyPrefix   = "challenge:"
	challengeIndexPrefix = "challenge-wallet:"

	challengeHeader = "agentgate wants you to prove ownership of your wallet."
)

// ChallengeService issues and verifies wallet-ownership challenges. Each
// challenge is keyed by nonce so concurrent requests for one wallet never
// overwrite each other; a per-wallet index exists only to cap outstanding
// nonces.
type ChallengeService struct {
	store  ports.Store
	logger *slog.Logger

	now func() time.Time
}

// NewChallengeService creates a challenge service over the given store.
func NewChallengeService(store ports.Store, logger *slog.Logger) *ChallengeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChallengeService{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *ChallengeService) SetClock(now func() time.Time) { s.now = now }

// Issue creates a challenge for address and returns the record together with
// the human-signable challenge text. Fails with ErrTooManyChallenges when the
// wallet already has the maximum number of unexpired nonces outstanding.
func (s *ChallengeService) Issue(ctx context.Context, address string) (*core.Challenge, string, error) {
	addr, err := eth.Normalize(address)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	index := challengeIndexPrefix + strings.ToLower(addr)

	// Age expired nonces out of the cap bookkeeping before counting.
	if _, err := s.store.IndexTrimBelow(ctx, index, float64(now.Add(-challengeTTL).Unix())); err != nil {
		s.logger.Warn("challenge index trim failed", "error", err)
	}
	open, err := s.store.IndexRange(ctx, index)
	if err != nil {
		s.logger.Warn("challenge index read failed", "error", err)
	}
	if len(open) >= maxOpenChallenges {
		return nil, "", core.ErrTooManyChallenges
	}

	challenge := &core.Challenge{
		Nonce:     uuid.NewString(),
		Address:   addr,
		CreatedAt: now,
		ExpiresAt: now.Add(challengeTTL),
	}
	text := formatChallengeText(challenge)

	if err := s.store.Set(ctx, challengeKeyPrefix+challenge.Nonce, mustJSON(challenge), challengeTTL); err != nil {
		return nil, "", fmt.Errorf("store challenge: %w", err)
	}
	if err := s.store.IndexAdd(ctx, index, challenge.Nonce, float64(now.Unix()), challengeTTL); err != nil {
		s.logger.Warn("challenge index write failed", "error", err)
	}
	return challenge, text, nil
}

// Verify checks the signed challenge in two phases: the request-supplied
// text first (cheap rejections before any store read), then the stored
// record, then the signature itself. On success the challenge is consumed.
func (s *ChallengeService) Verify(ctx context.Context, address, signature, challengeText string) error {
	addr, err := eth.Normalize(address)
	if err != nil {
		return err
	}

	nonce, embeddedAddr, issuedAt, err := parseChallengeText(challengeText)
	if err != nil {
		return core.ErrMalformedChallenge
	}
	if !eth.SameAddress(embeddedAddr, addr) {
		return core.ErrAddressMismatch
	}
	now := s.now()
	if now.Sub(issuedAt) > challengeTTL {
		return core.ErrStaleChallenge
	}

	raw, ok, err := s.store.Get(ctx, challengeKeyPrefix+nonce)
	if err != nil || !ok {
		return core.ErrUnknownChallenge
	}
	var stored core.Challenge
	if err := unmarshalJSON(raw, &stored); err != nil {
		return core.ErrUnknownChallenge
	}
	if !eth.SameAddress(stored.Address, addr) {
		return core.ErrAddressMismatch
	}
	if now.After(stored.ExpiresAt) {
		return core.ErrChallengeExpired
	}

	if err := eth.VerifyPersonalSign(addr, challengeText, signature); err != nil {
		return core.ErrInvalidSignature
	}

	// Single use: consumed exactly once on success.
	if _, err := s.store.Delete(ctx, challengeKeyPrefix+nonce); err != nil {
		s.logger.Warn("challenge delete failed", "nonce", nonce, "error", err)
	}
	if err := s.store.IndexRemove(ctx, challengeIndexPrefix+strings.ToLower(addr), nonce); err != nil {
		s.logger.Warn("challenge index remove failed", "error", err)
	}
	return nil
}

func formatChallengeText(c *core.Challenge) string {
	return fmt.Sprintf("%s\n\nWallet: %s\nNonce: %s\nIssued-At: %s",
		challengeHeader, c.Address, c.Nonce, c.CreatedAt.UTC().Format(time.RFC3339))
}

func parseChallengeText(text string) (nonce, address string, issuedAt time.Time, err error) {
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "Wallet: "):
			address = strings.TrimSpace(strings.TrimPrefix(line, "Wallet: "))
		case strings.HasPrefix(line, "Nonce: "):
			nonce = strings.TrimSpace(strings.TrimPrefix(line, "Nonce: "))
		case strings.HasPrefix(line, "Issued-At: "):
			issuedAt, err = time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, "Issued-At: ")))
			if err != nil {
				return "", "", time.Time{}, err
			}
		}
	}
	if nonce == "" || address == "" || issuedAt.IsZero() {
		return "", "", time.Time{}, core.ErrMalformedChallenge
	}
	return nonce, address, issuedAt, nil
}
