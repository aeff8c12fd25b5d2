package domain

import (
	"encoding/binary"
	"math"
)

const (
	// OutcomeModulus is the number of pockets of a European roulette wheel.
	OutcomeModulus = 37

	MinOperatorSecret = uint64(1)
	// Kept below 2^32 so that the operator share never pushes the sum past 2^64
	// on its own.
	MaxOperatorSecret = uint64(math.MaxUint32 - 1)
)

// ComputeOutcome combines both secrets with a wrapping 64-bit addition.
func ComputeOutcome(operatorSecret, counterpartySecret uint64) uint32 {
	return uint32((operatorSecret + counterpartySecret) % OutcomeModulus)
}

// OutcomeWraps reports whether the 64-bit sum overflows, in which case the
// field arithmetic of the proof system no longer matches ComputeOutcome.
func OutcomeWraps(operatorSecret, counterpartySecret uint64) bool {
	return operatorSecret+counterpartySecret < operatorSecret
}

// SecretFromBytes reads the big-endian u64 held in the last 8 bytes.
func SecretFromBytes(buf [32]byte) uint64 {
	return binary.BigEndian.Uint64(buf[24:])
}

func SecretToBytes(secret uint64) [32]byte {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], secret)
	return buf
}

func ValidOperatorSecret(secret uint64) bool {
	return secret >= MinOperatorSecret && secret <= MaxOperatorSecret
}
