package domain

import (
	"context"
	"errors"
)

var ErrRecordNotFound = errors.New("round record not found")

type RoundRecordRepository interface {
	AddOrUpdateRecord(ctx context.Context, record RoundRecord) error
	GetRecordWithId(ctx context.Context, id string) (*RoundRecord, error)
	GetRecordsWithRoundId(ctx context.Context, roundId uint64) ([]RoundRecord, error)
	// GetRecentRecords returns at most limit records, newest first.
	GetRecentRecords(ctx context.Context, limit int) ([]RoundRecord, error)
	Close()
}
