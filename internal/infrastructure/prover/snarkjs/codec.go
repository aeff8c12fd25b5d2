package snarkjsprover

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/zkachi/cranker/internal/core/domain"
)

type proofJSON struct {
	PiA []string   `json:"pi_a"`
	PiB [][]string `json:"pi_b"`
	PiC []string   `json:"pi_c"`
}

// EncodeProof converts the snarkjs proof and public signals into the artifact
// accepted by the verifier. G2 coordinates keep the snarkjs (c0, c1) order.
func EncodeProof(
	proofData, publicData []byte, witness domain.Witness,
) (domain.Proof, error) {
	var raw proofJSON
	if err := json.Unmarshal(proofData, &raw); err != nil {
		return domain.Proof{}, fmt.Errorf("failed to parse proof: %w", err)
	}
	var signals []string
	if err := json.Unmarshal(publicData, &signals); err != nil {
		return domain.Proof{}, fmt.Errorf("failed to parse public signals: %w", err)
	}

	a, err := encodeG1(raw.PiA)
	if err != nil {
		return domain.Proof{}, fmt.Errorf("invalid pi_a: %w", err)
	}
	if len(raw.PiB) < 2 {
		return domain.Proof{}, fmt.Errorf("invalid pi_b: expected 2 coordinates, got %d", len(raw.PiB))
	}
	b := make([]byte, 0, 128)
	for _, coord := range raw.PiB[:2] {
		buf, err := encodeFieldElements(coord, 2)
		if err != nil {
			return domain.Proof{}, fmt.Errorf("invalid pi_b: %w", err)
		}
		b = append(b, buf...)
	}
	c, err := encodeG1(raw.PiC)
	if err != nil {
		return domain.Proof{}, fmt.Errorf("invalid pi_c: %w", err)
	}

	proof, err := domain.NewProof(a, b, c, witness)
	if err != nil {
		return domain.Proof{}, err
	}

	if len(signals) != domain.PublicInputsCount {
		return domain.Proof{}, fmt.Errorf(
			"expected %d public signals, got %d", domain.PublicInputsCount, len(signals),
		)
	}
	inputs := proof.PublicInputs()
	for i, expected := range []*big.Int{
		inputs.Commitment, inputs.OperatorSecret, inputs.CounterpartySecret, inputs.Outcome,
	} {
		got, ok := new(big.Int).SetString(signals[i], 10)
		if !ok {
			return domain.Proof{}, fmt.Errorf("invalid public signal %q", signals[i])
		}
		if got.Cmp(expected) != 0 {
			return domain.Proof{}, fmt.Errorf(
				"public signal %d is %s, expected %s", i, got, expected,
			)
		}
	}
	return proof, nil
}

// encodeG1 takes the affine coordinates of a projective [x, y, z] point.
func encodeG1(point []string) ([]byte, error) {
	if len(point) < 2 {
		return nil, fmt.Errorf("expected at least 2 coordinates, got %d", len(point))
	}
	return encodeFieldElements(point, 2)
}

func encodeFieldElements(values []string, count int) ([]byte, error) {
	if len(values) < count {
		return nil, fmt.Errorf("expected %d values, got %d", count, len(values))
	}
	buf := make([]byte, 32*count)
	for i, v := range values[:count] {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal %q", v)
		}
		if err := domain.PutFieldElement(buf[32*i:32*(i+1)], n); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
