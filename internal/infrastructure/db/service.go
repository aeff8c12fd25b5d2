package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/zkachi/cranker/internal/core/domain"
	"github.com/zkachi/cranker/internal/core/ports"
	badgerdb "github.com/zkachi/cranker/internal/infrastructure/db/badger"
	sqlitedb "github.com/zkachi/cranker/internal/infrastructure/db/sqlite"
)

var (
	roundRecordStoreTypes = map[string]func(...interface{}) (domain.RoundRecordRepository, error){
		"badger": badgerdb.NewRoundRecordRepository,
		"sqlite": sqlitedb.NewRoundRecordRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType string

	// badger: base dir (empty for in-memory) and logger, sqlite: base dir.
	DataStoreConfig []interface{}
}

type service struct {
	roundRecordStore domain.RoundRecordRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	roundRecordStoreFactory, ok := roundRecordStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	storeConfig := config.DataStoreConfig
	if config.DataStoreType == "sqlite" {
		db, err := openSqlite(config.DataStoreConfig)
		if err != nil {
			return nil, err
		}
		storeConfig = []interface{}{db}
	}

	roundRecordStore, err := roundRecordStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create round record store: %w", err)
	}

	return &service{roundRecordStore}, nil
}

func (s *service) Rounds() domain.RoundRecordRepository {
	return s.roundRecordStore
}

func (s *service) Close() {
	s.roundRecordStore.Close()
}

func openSqlite(config []interface{}) (*sql.DB, error) {
	if len(config) != 1 {
		return nil, errors.New("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, errors.New("invalid config")
	}

	db, err := sqlitedb.OpenDb(filepath.Join(baseDir, sqliteDbFile))
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.MigrateUp(db); err != nil {
		// nolint:errcheck
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}
	return db, nil
}
