// Package eth wraps the go-ethereum primitives used for wallet-based
// authentication: address normalization and personal_sign verification.
package eth

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/clearmesh/agentgate/core"
)

// Normalize validates address and returns its EIP-55 checksum form.
func Normalize(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// SameAddress compares two hex addresses ignoring case and checksum form.
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// VerifyPersonalSign checks that sigHex is a valid personal_sign (EIP-191)
// signature over message by the given address.
func VerifyPersonalSign(address, message, sigHex string) error {
	if !common.IsHexAddress(address) {
		return core.ErrInvalidAddress
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return core.ErrInvalidSignature
	}
	// Wallets emit V as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}
	hash := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return core.ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}
