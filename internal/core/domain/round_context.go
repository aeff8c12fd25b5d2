package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	IdleState CoordinatorState = iota
	CommittedState
	ReadyRevealState
)

type CoordinatorState int

func (s CoordinatorState) String() string {
	switch s {
	case CommittedState:
		return "COMMITTED"
	case ReadyRevealState:
		return "READY_REVEAL"
	default:
		return "IDLE"
	}
}

// Secret is the operator share of a round together with its commitment.
type Secret struct {
	Value          uint64
	BlindingFactor *big.Int
	Commitment     [32]byte
}

// RoundContext is everything the operator must keep in memory between opening
// a round and revealing it. Losing it means losing the ability to reveal.
type RoundContext struct {
	OperatorSecret      uint64
	OperatorSecretBytes [32]byte
	BlindingFactor      *big.Int
	Commitment          [32]byte
	// RoundId is nil until the ledger read path confirmed the opened round.
	RoundId     *uint64
	CommittedAt time.Time

	proof     *Proof
	provenFor uint64
}

func NewRoundContext(secret Secret, committedAt time.Time) *RoundContext {
	return &RoundContext{
		OperatorSecret:      secret.Value,
		OperatorSecretBytes: SecretToBytes(secret.Value),
		BlindingFactor:      new(big.Int).Set(secret.BlindingFactor),
		Commitment:          secret.Commitment,
		CommittedAt:         committedAt,
	}
}

func (c *RoundContext) ConfirmRoundId(id uint64) {
	c.RoundId = &id
}

func (c *RoundContext) HasRoundId() bool {
	return c.RoundId != nil
}

// Owns reports whether the observed round is known to be the one this context
// was opened for.
func (c *RoundContext) Owns(round LedgerRound) bool {
	if c.RoundId != nil {
		return *c.RoundId == round.Id
	}
	return round.HasCommitment() && round.Commitment == c.Commitment
}

// ConflictsWith is true only when the round id is confirmed and differs.
func (c *RoundContext) ConflictsWith(round LedgerRound) bool {
	return c.RoundId != nil && *c.RoundId != round.Id
}

func (c *RoundContext) Witness(counterpartySecret uint64) Witness {
	return Witness{
		Commitment:         c.Commitment,
		OperatorSecret:     c.OperatorSecret,
		CounterpartySecret: counterpartySecret,
		Outcome:            ComputeOutcome(c.OperatorSecret, counterpartySecret),
		BlindingFactor:     new(big.Int).Set(c.BlindingFactor),
	}
}

// CachedProof returns the proof previously generated for the same counterparty
// secret, if any.
func (c *RoundContext) CachedProof(counterpartySecret uint64) (Proof, bool) {
	if c.proof == nil || c.provenFor != counterpartySecret {
		return Proof{}, false
	}
	return *c.proof, true
}

func (c *RoundContext) CacheProof(counterpartySecret uint64, proof Proof) {
	c.proof = &proof
	c.provenFor = counterpartySecret
}

func (c *RoundContext) CommitmentHex() string {
	return hex.EncodeToString(c.Commitment[:])
}

func (c *RoundContext) RoundIdString() string {
	if c.RoundId == nil {
		return "unconfirmed"
	}
	return fmt.Sprintf("%d", *c.RoundId)
}

// Snapshot is the read-only view of an in-flight round, safe to share.
type Snapshot struct {
	State       CoordinatorState
	RoundId     string
	Commitment  string
	CommittedAt time.Time
}

func (c *RoundContext) Snapshot(state CoordinatorState) Snapshot {
	return Snapshot{
		State:       state,
		RoundId:     c.RoundIdString(),
		Commitment:  c.CommitmentHex(),
		CommittedAt: c.CommittedAt,
	}
}
