package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/ports"
	"github.com/clearmesh/agentgate/service"
)

// AuthHandlers serves the challenge/login/logout surface that produces the
// sessions consumed by the RPC operations.
type AuthHandlers struct {
	challenges *service.ChallengeService
	sessions   *service.SessionService
	registry   ports.ChainRegistry
	logger     *slog.Logger
}

// NewAuthHandlers creates the auth endpoint handlers.
func NewAuthHandlers(challenges *service.ChallengeService, sessions *service.SessionService, registry ports.ChainRegistry, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{challenges: challenges, sessions: sessions, registry: registry, logger: logger}
}

// Challenge issues a signable challenge for a wallet address.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	challenge, text, err := h.challenges.Issue(c.Request.Context(), req.Address)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		case errors.Is(err, core.ErrTooManyChallenges):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many outstanding challenges"})
		default:
			h.logger.Error("challenge issuance failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge":  text,
		"nonce":      challenge.Nonce,
		"expires_at": challenge.ExpiresAt,
	})
}

// Login verifies the signed challenge and creates a session. The on-chain
// registration probe decides the session tier; a probe failure degrades to
// an unregistered session rather than blocking login.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		Challenge string `json:"challenge" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.challenges.Verify(c.Request.Context(), req.Address, req.Signature, req.Challenge); err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, core.ErrInvalidAddress),
			errors.Is(err, core.ErrMalformedChallenge),
			errors.Is(err, core.ErrAddressMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, core.ErrStaleChallenge),
			errors.Is(err, core.ErrUnknownChallenge),
			errors.Is(err, core.ErrChallengeExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			h.logger.Error("challenge verification failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}

	registered, err := h.registry.IsRegistered(c.Request.Context(), req.Address)
	if err != nil {
		h.logger.Warn("registration probe failed", "address", req.Address, "error", err)
		registered = false
	}
	tier := string(core.AccessAuthenticated)
	if registered {
		tier = string(core.AccessRegistered)
	}

	session := h.sessions.Create(c.Request.Context(), req.Address, tier, false, registered)
	c.JSON(http.StatusOK, gin.H{
		"session_id":    session.ID,
		"expires_at":    session.ExpiresAt,
		"is_registered": session.IsRegistered,
		"tier":          session.Tier,
	})
}

// Logout invalidates the caller's own session. Idempotent.
func (h *AuthHandlers) Logout(c *gin.Context) {
	actx := accessFrom(c)
	if !actx.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return
	}
	h.sessions.Invalidate(c.Request.Context(), actx.SessionID)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// RefreshRegistration re-probes the chain and flips the session's
// registration flag when on-chain state changed mid-session.
func (h *AuthHandlers) RefreshRegistration(c *gin.Context) {
	actx := accessFrom(c)
	if !actx.Authenticated {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required"})
		return
	}
	if actx.Registered {
		c.JSON(http.StatusOK, gin.H{"is_registered": true})
		return
	}

	registered, err := h.registry.IsRegistered(c.Request.Context(), actx.Address)
	if err != nil {
		h.logger.Warn("registration probe failed", "address", actx.Address, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry unavailable"})
		return
	}
	if registered {
		h.sessions.UpdateRegistrationFlag(c.Request.Context(), actx.SessionID)
	}
	c.JSON(http.StatusOK, gin.H{"is_registered": registered})
}
