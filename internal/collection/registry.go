package collection

import (
	"context"
	"errors"
	"fmt"
	"log"

	"solana-lending-index/internal/domain"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/ratelimit"
	"solana-lending-index/internal/solana"
	"solana-lending-index/internal/storage"
)

// Registry reconciles the configured protocol address set against the
// protocols table. Unseen addresses are registered with the current
// finalized slot as their watershed, which splits their history between
// the backward walker and the forward scanner.
type Registry struct {
	protocols storage.ProtocolStore
	rpc       RPCClient
	limiter   *ratelimit.Limiter
	logger    *log.Logger
}

// NewRegistry creates a new protocol registry.
func NewRegistry(protocols storage.ProtocolStore, rpc RPCClient, limiter *ratelimit.Limiter, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		protocols: protocols,
		rpc:       rpc,
		limiter:   limiter,
		logger:    logger,
	}
}

// Sync registers any configured address not yet in the protocols table and
// returns the protocol rows for the configured set, in input order.
// Invalid addresses are skipped with a log line; concurrent registration of
// the same address is a logged no-op.
func (r *Registry) Sync(ctx context.Context, addresses []string) ([]*domain.Protocol, error) {
	var result []*domain.Protocol

	for _, address := range addresses {
		if !solana.IsValidPubkey(address) {
			r.logger.Printf("Skipping invalid protocol address %q", address)
			observability.RecordCollectionError("registry", "invalid_address")
			continue
		}

		p, err := r.protocols.GetByAddress(ctx, address)
		if err == nil {
			result = append(result, p)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("lookup protocol %s: %w", address, err)
		}

		p, err = r.register(ctx, address)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return result, nil
}

func (r *Registry) register(ctx context.Context, address string) (*domain.Protocol, error) {
	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	watershed, err := r.rpc.GetFinalizedSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch watershed slot for %s: %w", address, err)
	}

	p := &domain.Protocol{Address: address, WatershedBlock: watershed}
	if err := r.protocols.Insert(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Raced with another registrar; the stored row wins.
			r.logger.Printf("Protocol %s already registered", address)
			return r.protocols.GetByAddress(ctx, address)
		}
		return nil, fmt.Errorf("register protocol %s: %w", address, err)
	}

	r.logger.Printf("Registered protocol %s with watershed block %d", address, watershed)
	return p, nil
}
