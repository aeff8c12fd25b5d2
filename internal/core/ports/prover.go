package ports

import (
	"context"

	"github.com/zkachi/cranker/internal/core/domain"
)

type ProofOracle interface {
	Prove(ctx context.Context, witness domain.Witness) (domain.Proof, error)
}
