package stellarledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zkachi/cranker/internal/core/domain"
	"github.com/zkachi/cranker/internal/core/ports"
	"github.com/zkachi/cranker/internal/infrastructure/cmdrunner"
)

const (
	defaultBinary      = "stellar"
	defaultCallTimeout = time.Minute
)

type Config struct {
	Binary      string
	ContractId  string
	Network     string
	Source      string
	CallTimeout time.Duration
}

type service struct {
	cfg    Config
	runner cmdrunner.Runner
}

// NewLedgerGateway talks to the roulette contract through the stellar CLI.
// A nil runner executes the real binary.
func NewLedgerGateway(cfg Config, runner cmdrunner.Runner) (ports.LedgerGateway, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = cmdrunner.NewExecRunner()
	}
	return &service{cfg, runner}, nil
}

// ResolveIdentity returns the public address of the configured source key.
func ResolveIdentity(ctx context.Context, cfg Config, runner cmdrunner.Runner) (string, error) {
	if len(cfg.Source) == 0 {
		return "", fmt.Errorf("missing source identity")
	}
	if len(cfg.Binary) == 0 {
		cfg.Binary = defaultBinary
	}
	if runner == nil {
		runner = cmdrunner.NewExecRunner()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	address, err := runner.Run(ctx, cfg.Binary, "keys", "address", cfg.Source)
	if err != nil {
		return "", fmt.Errorf("failed to get address of identity %s: %w", cfg.Source, err)
	}
	if len(address) == 0 {
		return "", fmt.Errorf("empty address for identity %s", cfg.Source)
	}
	return address, nil
}

func (s *service) GetCurrentRound(ctx context.Context) (*domain.LedgerRound, error) {
	out, err := s.invoke(ctx, "get_current_round")
	if err != nil {
		return nil, err
	}
	return parseRound(out)
}

func (s *service) GetCurrentBet(ctx context.Context) (*domain.Bet, error) {
	out, err := s.invoke(ctx, "get_current_bet")
	if err != nil {
		return nil, err
	}
	return parseBet(out)
}

func (s *service) OpenRound(
	ctx context.Context, identity string, commitment [32]byte, bond int64,
) error {
	_, err := s.invoke(
		ctx, "commit_round",
		"--cranker", identity,
		"--commit", hex.EncodeToString(commitment[:]),
		"--bond", strconv.FormatInt(bond, 10),
	)
	return err
}

func (s *service) RevealAndSettle(
	ctx context.Context, identity string, secret [32]byte, proof domain.Proof,
) error {
	_, err := s.invoke(
		ctx, "reveal_and_settle",
		"--cranker", identity,
		"--seed_cranker", hex.EncodeToString(secret[:]),
		"--proof", proof.Hex(),
	)
	return err
}

func (s *service) invoke(ctx context.Context, method string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	cmd := append([]string{
		"contract", "invoke",
		"--id", s.cfg.ContractId,
		"--network", s.cfg.Network,
		"--source", s.cfg.Source,
		"--", method,
	}, args...)

	log.Tracef("invoking %s on contract %s", method, s.cfg.ContractId)
	out, err := s.runner.Run(ctx, s.cfg.Binary, cmd...)
	if err != nil {
		return "", fmt.Errorf("stellar invoke %s failed: %w", method, err)
	}
	return out, nil
}

func withDefaults(cfg Config) (Config, error) {
	if len(cfg.ContractId) == 0 {
		return cfg, fmt.Errorf("missing contract id")
	}
	if len(cfg.Network) == 0 {
		return cfg, fmt.Errorf("missing network")
	}
	if len(cfg.Source) == 0 {
		return cfg, fmt.Errorf("missing source identity")
	}
	if len(cfg.Binary) == 0 {
		cfg.Binary = defaultBinary
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return cfg, nil
}
