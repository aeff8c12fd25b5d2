package ports

import "math/big"

// Committer is the hiding commitment scheme shared with the proving circuit.
type Committer interface {
	Commit(secret uint64, blindingFactor *big.Int) ([32]byte, error)
}
