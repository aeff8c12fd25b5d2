package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	g1PointSize      = 64
	g2PointSize      = 128
	fieldElementSize = 32

	PublicInputsCount = 4
	ProofSize         = 2*g1PointSize + g2PointSize + PublicInputsCount*fieldElementSize

	proofAOffset       = 0
	proofBOffset       = proofAOffset + g1PointSize
	proofCOffset       = proofBOffset + g2PointSize
	publicInputsOffset = proofCOffset + g1PointSize
)

// Proof is the Groth16 artifact accepted by the on-chain verifier:
// A (G1) | B (G2) | C (G1) | commitment | operator secret | counterparty secret | outcome.
type Proof [ProofSize]byte

type PublicInputs struct {
	Commitment         *big.Int
	OperatorSecret     *big.Int
	CounterpartySecret *big.Int
	Outcome            *big.Int
}

func ProofFromHex(str string) (Proof, error) {
	var p Proof
	buf, err := hex.DecodeString(str)
	if err != nil {
		return p, fmt.Errorf("invalid proof hex: %w", err)
	}
	if len(buf) != ProofSize {
		return p, fmt.Errorf("invalid proof size: expected %d bytes, got %d", ProofSize, len(buf))
	}
	copy(p[:], buf)
	return p, nil
}

func (p Proof) Hex() string {
	return hex.EncodeToString(p[:])
}

func (p Proof) A() []byte {
	return p[proofAOffset:proofBOffset]
}

func (p Proof) B() []byte {
	return p[proofBOffset:proofCOffset]
}

func (p Proof) C() []byte {
	return p[proofCOffset:publicInputsOffset]
}

func (p Proof) PublicInputs() PublicInputs {
	at := func(i int) *big.Int {
		start := publicInputsOffset + i*fieldElementSize
		return new(big.Int).SetBytes(p[start : start+fieldElementSize])
	}
	return PublicInputs{
		Commitment:         at(0),
		OperatorSecret:     at(1),
		CounterpartySecret: at(2),
		Outcome:            at(3),
	}
}

// NewProof assembles the artifact from its points and the witness public values.
func NewProof(a, b, c []byte, w Witness) (Proof, error) {
	var p Proof
	if len(a) != g1PointSize || len(c) != g1PointSize {
		return p, fmt.Errorf("invalid G1 point size")
	}
	if len(b) != g2PointSize {
		return p, fmt.Errorf("invalid G2 point size")
	}
	copy(p[proofAOffset:], a)
	copy(p[proofBOffset:], b)
	copy(p[proofCOffset:], c)

	inputs := []*big.Int{
		new(big.Int).SetBytes(w.Commitment[:]),
		new(big.Int).SetUint64(w.OperatorSecret),
		new(big.Int).SetUint64(w.CounterpartySecret),
		new(big.Int).SetUint64(uint64(w.Outcome)),
	}
	for i, v := range inputs {
		start := publicInputsOffset + i*fieldElementSize
		if err := PutFieldElement(p[start:start+fieldElementSize], v); err != nil {
			return p, err
		}
	}
	return p, nil
}

// PutFieldElement writes v as a 32-byte big-endian integer.
func PutFieldElement(dst []byte, v *big.Int) error {
	if len(dst) != fieldElementSize {
		return fmt.Errorf("invalid destination size %d", len(dst))
	}
	if v.Sign() < 0 || v.BitLen() > 8*fieldElementSize {
		return fmt.Errorf("value %s does not fit in %d bytes", v, fieldElementSize)
	}
	v.FillBytes(dst)
	return nil
}

// Witness is the full set of values a proof is generated over.
type Witness struct {
	Commitment         [32]byte
	OperatorSecret     uint64
	CounterpartySecret uint64
	Outcome            uint32
	BlindingFactor     *big.Int
}

// Matches reports whether the proof's public inputs are those of the witness.
func (p Proof) Matches(w Witness) bool {
	in := p.PublicInputs()
	return in.Commitment.Cmp(new(big.Int).SetBytes(w.Commitment[:])) == 0 &&
		in.OperatorSecret.Cmp(new(big.Int).SetUint64(w.OperatorSecret)) == 0 &&
		in.CounterpartySecret.Cmp(new(big.Int).SetUint64(w.CounterpartySecret)) == 0 &&
		in.Outcome.Cmp(new(big.Int).SetUint64(uint64(w.Outcome))) == 0
}

// CheckOutcome verifies the public inputs are well formed and that the
// outcome follows from the two secrets. It does not check the curve points.
func (p Proof) CheckOutcome() error {
	in := p.PublicInputs()
	if !in.OperatorSecret.IsUint64() || !ValidOperatorSecret(in.OperatorSecret.Uint64()) {
		return fmt.Errorf("operator secret %s out of range", in.OperatorSecret)
	}
	if !in.CounterpartySecret.IsUint64() {
		return fmt.Errorf("counterparty secret %s does not fit in 64 bits", in.CounterpartySecret)
	}
	expected := ComputeOutcome(in.OperatorSecret.Uint64(), in.CounterpartySecret.Uint64())
	if !in.Outcome.IsUint64() || in.Outcome.Uint64() != uint64(expected) {
		return fmt.Errorf("outcome %s does not match expected %d", in.Outcome, expected)
	}
	return nil
}
