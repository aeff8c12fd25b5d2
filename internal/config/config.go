package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/zkachi/cranker/internal/core/application"
	"github.com/zkachi/cranker/internal/core/ports"
	"github.com/zkachi/cranker/internal/infrastructure/cmdrunner"
	poseidoncommitter "github.com/zkachi/cranker/internal/infrastructure/committer/poseidon"
	"github.com/zkachi/cranker/internal/infrastructure/db"
	inmemoryledger "github.com/zkachi/cranker/internal/infrastructure/ledger/inmemory"
	stellarledger "github.com/zkachi/cranker/internal/infrastructure/ledger/stellar"
	dummyprover "github.com/zkachi/cranker/internal/infrastructure/prover/dummy"
	snarkjsprover "github.com/zkachi/cranker/internal/infrastructure/prover/snarkjs"
	timescheduler "github.com/zkachi/cranker/internal/infrastructure/scheduler/gocron"
)

var (
	supportedLedgers = supportedType{
		"stellar":  {},
		"inmemory": {},
	}
	supportedProvers = supportedType{
		"snarkjs": {},
		"dummy":   {},
	}
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
)

type Config struct {
	Datadir      string
	DbDir        string
	LogLevel     int
	PollInterval time.Duration

	LedgerType        string
	ContractId        string
	Network           string
	Source            string
	StellarBin        string
	LedgerCallTimeout time.Duration
	Bond              int64

	ProverType   string
	SnarkjsBin   string
	CircuitWasm  string
	ProvingKey   string
	ProofTimeout time.Duration

	DbType        string
	SchedulerType string

	SettlementGracePeriod time.Duration
	OpenConfirmAttempts   int
	OpenConfirmDelay      time.Duration
	SettleConfirmAttempts int
	SettleConfirmDelay    time.Duration
	RevealRetryDelay      time.Duration
	RoundTimeout          time.Duration
	OrphanSupersedeAfter  time.Duration

	SimReadLag time.Duration
	SimAutoBet bool

	identity  string
	runner    cmdrunner.Runner
	repo      ports.RepoManager
	ledger    ports.LedgerGateway
	prover    ports.ProofOracle
	committer ports.Committer
	scheduler ports.SchedulerService
	svc       application.Service
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir               = "DATADIR"
	LogLevel              = "LOG_LEVEL"
	PollInterval          = "POLL_INTERVAL"
	LedgerType            = "LEDGER_TYPE"
	ContractId            = "CONTRACT_ID"
	Network               = "NETWORK"
	Source                = "SOURCE"
	StellarBin            = "STELLAR_BIN"
	LedgerCallTimeout     = "LEDGER_CALL_TIMEOUT"
	Bond                  = "BOND"
	ProverType            = "PROVER_TYPE"
	SnarkjsBin            = "SNARKJS_BIN"
	CircuitWasm           = "CIRCUIT_WASM"
	ProvingKey            = "PROVING_KEY"
	ProofTimeout          = "PROOF_TIMEOUT"
	DbType                = "DB_TYPE"
	SchedulerType         = "SCHEDULER_TYPE"
	SettlementGracePeriod = "SETTLEMENT_GRACE_PERIOD"
	OpenConfirmAttempts   = "OPEN_CONFIRM_ATTEMPTS"
	OpenConfirmDelay      = "OPEN_CONFIRM_DELAY"
	SettleConfirmAttempts = "SETTLE_CONFIRM_ATTEMPTS"
	SettleConfirmDelay    = "SETTLE_CONFIRM_DELAY"
	RevealRetryDelay      = "REVEAL_RETRY_DELAY"
	RoundTimeout          = "ROUND_TIMEOUT"
	OrphanSupersedeAfter  = "ORPHAN_SUPERSEDE_AFTER"
	SimReadLag            = "SIM_READ_LAG"
	SimAutoBet            = "SIM_AUTO_BET"

	defaultDatadir               = btcutil.AppDataDir("cranker", false)
	defaultLogLevel              = 4
	defaultPollInterval          = 6 * time.Second
	defaultLedgerType            = "stellar"
	defaultNetwork               = "testnet"
	defaultStellarBin            = "stellar"
	defaultLedgerCallTimeout     = time.Minute
	defaultBond                  = inmemoryledger.DefaultMinBond
	defaultProverType            = "snarkjs"
	defaultSnarkjsBin            = "snarkjs"
	defaultProofTimeout          = 5 * time.Minute
	defaultDbType                = "badger"
	defaultSchedulerType         = "gocron"
	defaultSettlementGracePeriod = time.Minute
	defaultOpenConfirmAttempts   = 5
	defaultOpenConfirmDelay      = 2 * time.Second
	defaultSettleConfirmAttempts = 10
	defaultSettleConfirmDelay    = 3 * time.Second
	defaultRevealRetryDelay      = 3 * time.Second
	// a little above the contract timeout of 100 ledgers at ~5s each
	defaultRoundTimeout = 10 * time.Minute
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("CRANKER")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(PollInterval, defaultPollInterval)
	viper.SetDefault(LedgerType, defaultLedgerType)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(StellarBin, defaultStellarBin)
	viper.SetDefault(LedgerCallTimeout, defaultLedgerCallTimeout)
	viper.SetDefault(Bond, defaultBond)
	viper.SetDefault(ProverType, defaultProverType)
	viper.SetDefault(SnarkjsBin, defaultSnarkjsBin)
	viper.SetDefault(ProofTimeout, defaultProofTimeout)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(SettlementGracePeriod, defaultSettlementGracePeriod)
	viper.SetDefault(OpenConfirmAttempts, defaultOpenConfirmAttempts)
	viper.SetDefault(OpenConfirmDelay, defaultOpenConfirmDelay)
	viper.SetDefault(SettleConfirmAttempts, defaultSettleConfirmAttempts)
	viper.SetDefault(SettleConfirmDelay, defaultSettleConfirmDelay)
	viper.SetDefault(RevealRetryDelay, defaultRevealRetryDelay)
	viper.SetDefault(RoundTimeout, defaultRoundTimeout)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:               viper.GetString(Datadir),
		DbDir:                 filepath.Join(viper.GetString(Datadir), "db"),
		LogLevel:              viper.GetInt(LogLevel),
		PollInterval:          viper.GetDuration(PollInterval),
		LedgerType:            viper.GetString(LedgerType),
		ContractId:            viper.GetString(ContractId),
		Network:               viper.GetString(Network),
		Source:                viper.GetString(Source),
		StellarBin:            viper.GetString(StellarBin),
		LedgerCallTimeout:     viper.GetDuration(LedgerCallTimeout),
		Bond:                  viper.GetInt64(Bond),
		ProverType:            viper.GetString(ProverType),
		SnarkjsBin:            viper.GetString(SnarkjsBin),
		CircuitWasm:           viper.GetString(CircuitWasm),
		ProvingKey:            viper.GetString(ProvingKey),
		ProofTimeout:          viper.GetDuration(ProofTimeout),
		DbType:                viper.GetString(DbType),
		SchedulerType:         viper.GetString(SchedulerType),
		SettlementGracePeriod: viper.GetDuration(SettlementGracePeriod),
		OpenConfirmAttempts:   viper.GetInt(OpenConfirmAttempts),
		OpenConfirmDelay:      viper.GetDuration(OpenConfirmDelay),
		SettleConfirmAttempts: viper.GetInt(SettleConfirmAttempts),
		SettleConfirmDelay:    viper.GetDuration(SettleConfirmDelay),
		RevealRetryDelay:      viper.GetDuration(RevealRetryDelay),
		RoundTimeout:          viper.GetDuration(RoundTimeout),
		OrphanSupersedeAfter:  viper.GetDuration(OrphanSupersedeAfter),
		SimReadLag:            viper.GetDuration(SimReadLag),
		SimAutoBet:            viper.GetBool(SimAutoBet),
	}, nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// Validate checks the static settings only, services are built lazily since
// some of them shell out to external binaries.
func (c *Config) Validate() error {
	if !supportedLedgers.supports(c.LedgerType) {
		return fmt.Errorf("ledger type not supported, please select one of: %s", supportedLedgers)
	}
	if !supportedProvers.supports(c.ProverType) {
		return fmt.Errorf("prover type not supported, please select one of: %s", supportedProvers)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval, must be positive")
	}
	if c.Bond <= 0 {
		return fmt.Errorf("invalid bond, must be positive")
	}
	if len(c.Source) == 0 {
		return fmt.Errorf("missing source identity")
	}
	if c.LedgerType == "stellar" && len(c.ContractId) == 0 {
		return fmt.Errorf("missing contract id")
	}
	if c.ProverType == "snarkjs" {
		if len(c.CircuitWasm) == 0 {
			return fmt.Errorf("missing circuit wasm path")
		}
		if len(c.ProvingKey) == 0 {
			return fmt.Errorf("missing proving key path")
		}
	}
	if c.ProverType == "dummy" && c.LedgerType == "stellar" {
		log.Warn("dummy prover in use against a real ledger, every reveal will be rejected")
	}
	if c.OpenConfirmAttempts < 1 || c.SettleConfirmAttempts < 1 {
		return fmt.Errorf("confirmation attempts must be at least 1")
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) LedgerGateway() (ports.LedgerGateway, error) {
	if c.ledger == nil {
		if err := c.ledgerService(); err != nil {
			return nil, err
		}
	}
	return c.ledger, nil
}

func (c *Config) RepoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return nil, err
		}
	}
	return c.repo, nil
}

// Identity is the operator address the rounds are opened with.
func (c *Config) Identity() (string, error) {
	if len(c.identity) > 0 {
		return c.identity, nil
	}

	switch c.LedgerType {
	case "stellar":
		identity, err := stellarledger.ResolveIdentity(
			context.Background(), c.stellarConfig(), c.cmdRunner(),
		)
		if err != nil {
			return "", err
		}
		c.identity = identity
	default:
		c.identity = c.Source
	}
	return c.identity, nil
}

func (c *Config) cmdRunner() cmdrunner.Runner {
	if c.runner == nil {
		c.runner = cmdrunner.NewExecRunner()
	}
	return c.runner
}

func (c *Config) stellarConfig() stellarledger.Config {
	return stellarledger.Config{
		Binary:      c.StellarBin,
		ContractId:  c.ContractId,
		Network:     c.Network,
		Source:      c.Source,
		CallTimeout: c.LedgerCallTimeout,
	}
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) ledgerService() error {
	var svc ports.LedgerGateway
	var err error
	switch c.LedgerType {
	case "stellar":
		svc, err = stellarledger.NewLedgerGateway(c.stellarConfig(), c.cmdRunner())
	case "inmemory":
		svc = inmemoryledger.NewLedger(inmemoryledger.Config{
			ReadLag: c.SimReadLag,
			AutoBet: c.SimAutoBet,
			MinBond: inmemoryledger.DefaultMinBond,
		})
	default:
		err = fmt.Errorf("unknown ledger type")
	}
	if err != nil {
		return err
	}

	c.ledger = svc
	return nil
}

func (c *Config) proverService() error {
	var svc ports.ProofOracle
	var err error
	switch c.ProverType {
	case "snarkjs":
		svc, err = snarkjsprover.NewProver(snarkjsprover.Config{
			Binary:      c.SnarkjsBin,
			CircuitWasm: c.CircuitWasm,
			ProvingKey:  c.ProvingKey,
		}, c.cmdRunner())
	case "dummy":
		svc = dummyprover.NewProver()
	default:
		err = fmt.Errorf("unknown prover type")
	}
	if err != nil {
		return err
	}

	c.prover = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) appService() error {
	identity, err := c.Identity()
	if err != nil {
		return err
	}
	if _, err := c.LedgerGateway(); err != nil {
		return err
	}
	if _, err := c.RepoManager(); err != nil {
		return err
	}
	if err := c.proverService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	c.committer = poseidoncommitter.NewCommitter()

	coordinator, err := application.NewRoundCoordinator(
		application.CoordinatorConfig{
			Identity:              identity,
			Bond:                  c.Bond,
			ProofTimeout:          c.ProofTimeout,
			SettlementGracePeriod: c.SettlementGracePeriod,
			OpenConfirmAttempts:   c.OpenConfirmAttempts,
			OpenConfirmDelay:      c.OpenConfirmDelay,
			SettleConfirmAttempts: c.SettleConfirmAttempts,
			SettleConfirmDelay:    c.SettleConfirmDelay,
			RevealRetryDelay:      c.RevealRetryDelay,
			RoundTimeout:          c.RoundTimeout,
			OrphanSupersedeAfter:  c.OrphanSupersedeAfter,
		},
		c.ledger, c.prover, application.NewSecretCommitter(c.committer, nil),
		c.repo.Rounds(), clockwork.NewRealClock(),
	)
	if err != nil {
		return err
	}

	svc, err := application.NewService(coordinator, c.scheduler, c.repo, c.PollInterval)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
