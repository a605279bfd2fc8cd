// Package chain probes on-chain agent registration state.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/clearmesh/agentgate/ports"
)

// isRegisteredSelector is the 4-byte selector of isRegistered(address).
var isRegisteredSelector = crypto.Keccak256([]byte("isRegistered(address)"))[:4]

// Registry answers registration checks via eth_call against the agent
// registry contract.
type Registry struct {
	client   *ethclient.Client
	contract common.Address
}

// NewRegistry dials the RPC endpoint and binds the registry contract.
func NewRegistry(ctx context.Context, rpcURL, contractAddr string) (*Registry, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid registry contract address %q", contractAddr)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial eth rpc: %w", err)
	}
	return &Registry{client: client, contract: common.HexToAddress(contractAddr)}, nil
}

func (r *Registry) IsRegistered(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, nil
	}
	data := make([]byte, 0, 36)
	data = append(data, isRegisteredSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("eth_call isRegistered: %w", err)
	}
	return len(out) == 32 && out[31] == 1, nil
}

// Close releases the RPC connection.
func (r *Registry) Close() {
	r.client.Close()
}

// Disabled is the registry used when no chain endpoint is configured; every
// wallet reads as unregistered.
type Disabled struct{}

func (Disabled) IsRegistered(ctx context.Context, address string) (bool, error) {
	return false, nil
}

var _ ports.ChainRegistry = (*Registry)(nil)
var _ ports.ChainRegistry = Disabled{}
