package domain

import "fmt"

const (
	UndefinedStatus RoundStatus = iota
	RoundOpen
	RoundBetPlaced
	RoundSettled
	RoundTimedOut
)

type RoundStatus int

func (s RoundStatus) String() string {
	switch s {
	case RoundOpen:
		return "Open"
	case RoundBetPlaced:
		return "BetPlaced"
	case RoundSettled:
		return "Settled"
	case RoundTimedOut:
		return "TimedOut"
	default:
		return "Undefined"
	}
}

// Ended reports whether the round reached a final status and can be replaced.
func (s RoundStatus) Ended() bool {
	return s == RoundSettled || s == RoundTimedOut
}

func ParseRoundStatus(tag string) (RoundStatus, error) {
	switch tag {
	case "Open":
		return RoundOpen, nil
	case "BetPlaced":
		return RoundBetPlaced, nil
	case "Settled":
		return RoundSettled, nil
	case "TimedOut":
		return RoundTimedOut, nil
	default:
		return UndefinedStatus, fmt.Errorf("unknown round status %q", tag)
	}
}

// LedgerRound is the round record as last observed on the ledger read path.
type LedgerRound struct {
	Id           uint64
	Status       RoundStatus
	Operator     string
	Commitment   [32]byte
	Bond         int64
	CommitLedger uint32
	Result       uint32
}

// HasCommitment is false when the ledger did not report the commitment.
func (r LedgerRound) HasCommitment() bool {
	return r.Commitment != [32]byte{}
}

type Bet struct {
	Player string
	Amount int64
	Secret [32]byte
}
