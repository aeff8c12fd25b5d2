package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	UndefinedRecord RecordStatus = iota
	RecordSettled
	RecordAbandoned
)

type RecordStatus int

func (s RecordStatus) String() string {
	switch s {
	case RecordSettled:
		return "SETTLED"
	case RecordAbandoned:
		return "ABANDONED"
	default:
		return "UNDEFINED"
	}
}

// RoundRecord is the operator's own history of a round it opened. The
// operator secret is only filled once it has been revealed on the ledger.
type RoundRecord struct {
	Id                 string
	RoundId            uint64
	Commitment         string
	OperatorSecret     uint64
	CounterpartySecret uint64
	Outcome            uint32
	Proof              string
	Status             RecordStatus
	Reason             string
	Confirmed          bool
	OpenedAt           int64
	EndedAt            int64
}

func NewSettledRecord(
	rc *RoundContext, w Witness, proof Proof, confirmed bool, endedAt time.Time,
) RoundRecord {
	r := newRecord(rc, endedAt)
	r.Status = RecordSettled
	r.OperatorSecret = w.OperatorSecret
	r.CounterpartySecret = w.CounterpartySecret
	r.Outcome = w.Outcome
	r.Proof = proof.Hex()
	r.Confirmed = confirmed
	return r
}

func NewAbandonedRecord(rc *RoundContext, reason string, endedAt time.Time) RoundRecord {
	r := newRecord(rc, endedAt)
	r.Status = RecordAbandoned
	r.Reason = reason
	return r
}

func newRecord(rc *RoundContext, endedAt time.Time) RoundRecord {
	var roundId uint64
	if rc.RoundId != nil {
		roundId = *rc.RoundId
	}
	return RoundRecord{
		Id:         uuid.New().String(),
		RoundId:    roundId,
		Commitment: rc.CommitmentHex(),
		OpenedAt:   rc.CommittedAt.Unix(),
		EndedAt:    endedAt.Unix(),
	}
}
