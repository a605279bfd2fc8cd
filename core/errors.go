package core

import "errors"

var (
	ErrInvalidAddress = errors.New("invalid ethereum address")

	// Challenge verification failures, in the order the checks run.
	ErrTooManyChallenges  = errors.New("too many outstanding challenges")
	ErrMalformedChallenge = errors.New("malformed challenge text")
	ErrAddressMismatch    = errors.New("challenge address mismatch")
	ErrStaleChallenge     = errors.New("challenge issued too long ago")
	ErrUnknownChallenge   = errors.New("unknown challenge nonce")
	ErrChallengeExpired   = errors.New("challenge has expired")
	ErrInvalidSignature   = errors.New("invalid signature")

	ErrSessionRequired = errors.New("session required")
	ErrAccessDenied    = errors.New("access denied")
	ErrSkillNotFound   = errors.New("skill not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskCancelled   = errors.New("task already cancelled")
	ErrTaskCompleted   = errors.New("task already completed")

	ErrStoreUnavailable = errors.New("store unavailable")
)
