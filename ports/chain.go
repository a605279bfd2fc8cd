package ports

import "context"

// ChainRegistry answers whether a wallet is registered on-chain. The check
// is an external collaborator; implementations may be disabled entirely.
type ChainRegistry interface {
	IsRegistered(ctx context.Context, address string) (bool, error)
}
