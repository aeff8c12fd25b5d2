package badgerdb

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const (
	maxRetries       = 5
	retryDelay       = 100 * time.Millisecond
	valueLogGCPeriod = 30 * time.Minute
	// rewrite a value log file once half of it is stale
	valueLogGCRatio = 0.5
)

// store wraps a badgerhold store with the background value log collection of
// on-disk databases.
type store struct {
	*badgerhold.Store
	stopGC chan struct{}
}

// openStore opens an in-memory database when dir is empty.
func openStore(dir string, logger badger.Logger) (*store, error) {
	inMemory := len(dir) <= 0

	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	opts.InMemory = inMemory
	if !inMemory {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	s := &store{Store: db}
	if !inMemory {
		s.stopGC = make(chan struct{})
		go s.collectValueLog(logger)
	}
	return s, nil
}

func (s *store) collectValueLog(logger badger.Logger) {
	ticker := time.NewTicker(valueLogGCPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.Badger().RunValueLogGC(valueLogGCRatio)
			if err != nil && err != badger.ErrNoRewrite && logger != nil {
				logger.Errorf("value log gc: %s", err)
			}
		}
	}
}

func (s *store) close() error {
	if s.stopGC != nil {
		close(s.stopGC)
	}
	return s.Store.Close()
}
