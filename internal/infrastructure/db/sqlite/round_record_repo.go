package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/zkachi/cranker/internal/core/domain"
)

const (
	upsertRoundRecord = `
INSERT INTO round_record (
    id, round_id, commitment, operator_secret, counterparty_secret, outcome,
    proof, status, reason, confirmed, opened_at, ended_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    round_id = excluded.round_id,
    commitment = excluded.commitment,
    operator_secret = excluded.operator_secret,
    counterparty_secret = excluded.counterparty_secret,
    outcome = excluded.outcome,
    proof = excluded.proof,
    status = excluded.status,
    reason = excluded.reason,
    confirmed = excluded.confirmed,
    opened_at = excluded.opened_at,
    ended_at = excluded.ended_at`

	selectRoundRecord = `
SELECT id, round_id, commitment, operator_secret, counterparty_secret, outcome,
    proof, status, reason, confirmed, opened_at, ended_at
FROM round_record`
)

type roundRecordRepository struct {
	db *sql.DB
}

func NewRoundRecordRepository(config ...interface{}) (domain.RoundRecordRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round record repository: invalid config, expected db at 0")
	}

	return &roundRecordRepository{db}, nil
}

func (r *roundRecordRepository) AddOrUpdateRecord(
	ctx context.Context, record domain.RoundRecord,
) error {
	if _, err := r.db.ExecContext(
		ctx, upsertRoundRecord,
		record.Id,
		int64(record.RoundId),
		record.Commitment,
		int64(record.OperatorSecret),
		strconv.FormatUint(record.CounterpartySecret, 10),
		int64(record.Outcome),
		record.Proof,
		int64(record.Status),
		record.Reason,
		record.Confirmed,
		record.OpenedAt,
		record.EndedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert round record: %w", err)
	}
	return nil
}

func (r *roundRecordRepository) GetRecordWithId(
	ctx context.Context, id string,
) (*domain.RoundRecord, error) {
	row := r.db.QueryRowContext(ctx, selectRoundRecord+" WHERE id = ?", id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round record: %w", err)
	}
	return record, nil
}

func (r *roundRecordRepository) GetRecordsWithRoundId(
	ctx context.Context, roundId uint64,
) ([]domain.RoundRecord, error) {
	return r.queryRecords(
		ctx, selectRoundRecord+" WHERE round_id = ? ORDER BY ended_at", int64(roundId),
	)
}

func (r *roundRecordRepository) GetRecentRecords(
	ctx context.Context, limit int,
) ([]domain.RoundRecord, error) {
	// a negative limit means no limit in sqlite
	if limit <= 0 {
		limit = -1
	}
	return r.queryRecords(
		ctx, selectRoundRecord+" ORDER BY ended_at DESC LIMIT ?", limit,
	)
}

func (r *roundRecordRepository) Close() {
	_ = r.db.Close()
}

func (r *roundRecordRepository) queryRecords(
	ctx context.Context, query string, args ...interface{},
) ([]domain.RoundRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query round records: %w", err)
	}
	// nolint:errcheck
	defer rows.Close()

	records := make([]domain.RoundRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read round records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*domain.RoundRecord, error) {
	var (
		record             domain.RoundRecord
		roundId            int64
		operatorSecret     int64
		counterpartySecret string
		outcome            int64
		status             int64
	)
	if err := row.Scan(
		&record.Id, &roundId, &record.Commitment, &operatorSecret, &counterpartySecret,
		&outcome, &record.Proof, &status, &record.Reason, &record.Confirmed,
		&record.OpenedAt, &record.EndedAt,
	); err != nil {
		return nil, err
	}

	secret, err := strconv.ParseUint(counterpartySecret, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid counterparty secret: %w", err)
	}
	record.RoundId = uint64(roundId)
	record.OperatorSecret = uint64(operatorSecret)
	record.CounterpartySecret = secret
	record.Outcome = uint32(outcome)
	record.Status = domain.RecordStatus(status)
	return &record, nil
}
