package ports

import (
	"context"

	"github.com/zkachi/cranker/internal/core/domain"
)

// LedgerGateway is the query/mutate surface of the roulette contract. Reads
// may reflect a state older than the latest successful write.
type LedgerGateway interface {
	// GetCurrentRound returns nil, nil if no round exists.
	GetCurrentRound(ctx context.Context) (*domain.LedgerRound, error)
	// GetCurrentBet returns nil, nil if no bet is visible.
	GetCurrentBet(ctx context.Context) (*domain.Bet, error)
	OpenRound(ctx context.Context, identity string, commitment [32]byte, bond int64) error
	RevealAndSettle(
		ctx context.Context, identity string, secret [32]byte, proof domain.Proof,
	) error
}
