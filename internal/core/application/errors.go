package application

import (
	"errors"
	"fmt"
)

var ErrNotConfirmed = errors.New("not confirmed on the ledger read path")

type errInvariantViolation struct {
	state string
	msg   string
}

func (e errInvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in state %s: %s", e.state, e.msg)
}

type errProofMismatch struct {
	round string
}

func (e errProofMismatch) Error() string {
	return fmt.Sprintf("proof public inputs for round %s do not match the witness", e.round)
}
