package application

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/zkachi/cranker/internal/core/domain"
	"github.com/zkachi/cranker/internal/core/ports"
)

// 248 bits, below the BN254 scalar field modulus.
const blindingFactorSize = 31

// SecretCommitter draws fresh randomness for every round and commits to it.
// It never retries: a failed attempt is discarded along with its randomness.
type SecretCommitter struct {
	committer ports.Committer
	random    io.Reader
}

func NewSecretCommitter(committer ports.Committer, random io.Reader) *SecretCommitter {
	if random == nil {
		random = rand.Reader
	}
	return &SecretCommitter{committer, random}
}

func (s *SecretCommitter) NewSecret() (domain.Secret, error) {
	// uniform in [0, max-1], shifted to [1, max]
	n, err := rand.Int(s.random, new(big.Int).SetUint64(domain.MaxOperatorSecret))
	if err != nil {
		return domain.Secret{}, fmt.Errorf("failed to draw operator secret: %w", err)
	}
	value := n.Uint64() + domain.MinOperatorSecret

	buf := make([]byte, blindingFactorSize)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return domain.Secret{}, fmt.Errorf("failed to draw blinding factor: %w", err)
	}
	blindingFactor := new(big.Int).SetBytes(buf)
	if blindingFactor.Sign() == 0 {
		return domain.Secret{}, fmt.Errorf("drew a zero blinding factor")
	}

	commitment, err := s.committer.Commit(value, blindingFactor)
	if err != nil {
		return domain.Secret{}, fmt.Errorf("failed to commit to operator secret: %w", err)
	}

	return domain.Secret{
		Value:          value,
		BlindingFactor: blindingFactor,
		Commitment:     commitment,
	}, nil
}
