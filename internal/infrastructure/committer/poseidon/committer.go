package poseidoncommitter

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/zkachi/cranker/internal/core/ports"
)

type committer struct{}

// NewCommitter returns the circomlib compatible Poseidon commitment over the
// BN254 scalar field, the same hash the circuit recomputes.
func NewCommitter() ports.Committer {
	return committer{}
}

func (committer) Commit(secret uint64, blindingFactor *big.Int) ([32]byte, error) {
	var commitment [32]byte
	if blindingFactor == nil {
		return commitment, fmt.Errorf("missing blinding factor")
	}

	hash, err := poseidon.Hash([]*big.Int{new(big.Int).SetUint64(secret), blindingFactor})
	if err != nil {
		return commitment, fmt.Errorf("failed to hash commitment inputs: %w", err)
	}
	hash.FillBytes(commitment[:])
	return commitment, nil
}
