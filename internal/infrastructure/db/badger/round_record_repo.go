package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
	"github.com/zkachi/cranker/internal/core/domain"
)

const roundRecordStoreDir = "round_records"

type roundRecordRepository struct {
	store *store
}

func NewRoundRecordRepository(config ...interface{}) (domain.RoundRecordRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}
	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, roundRecordStoreDir)
	}
	db, err := openStore(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round record store: %s", err)
	}

	return &roundRecordRepository{db}, nil
}

func (r *roundRecordRepository) AddOrUpdateRecord(
	ctx context.Context, record domain.RoundRecord,
) error {
	err := r.store.Upsert(record.Id, record)
	for attempts := 1; errors.Is(err, badger.ErrConflict) && attempts <= maxRetries; attempts++ {
		time.Sleep(retryDelay)
		err = r.store.Upsert(record.Id, record)
	}
	return err
}

func (r *roundRecordRepository) GetRecordWithId(
	ctx context.Context, id string,
) (*domain.RoundRecord, error) {
	var record domain.RoundRecord
	if err := r.store.Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *roundRecordRepository) GetRecordsWithRoundId(
	ctx context.Context, roundId uint64,
) ([]domain.RoundRecord, error) {
	query := badgerhold.Where("RoundId").Eq(roundId).SortBy("EndedAt")
	return r.findRecords(query)
}

func (r *roundRecordRepository) GetRecentRecords(
	ctx context.Context, limit int,
) ([]domain.RoundRecord, error) {
	query := (&badgerhold.Query{}).SortBy("EndedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.findRecords(query)
}

func (r *roundRecordRepository) Close() {
	// nolint:all
	r.store.close()
}

func (r *roundRecordRepository) findRecords(
	query *badgerhold.Query,
) ([]domain.RoundRecord, error) {
	records := make([]domain.RoundRecord, 0)
	if err := r.store.Find(&records, query); err != nil {
		return nil, err
	}
	return records, nil
}
