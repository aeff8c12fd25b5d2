package snarkjsprover

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/zkachi/cranker/internal/core/domain"
	"github.com/zkachi/cranker/internal/core/ports"
	"github.com/zkachi/cranker/internal/infrastructure/cmdrunner"
)

const defaultBinary = "snarkjs"

type Config struct {
	Binary      string
	CircuitWasm string
	ProvingKey  string
	// WorkDir holds the per-proof scratch directories, defaults to the
	// system temp dir.
	WorkDir string
}

type prover struct {
	cfg    Config
	runner cmdrunner.Runner
}

// NewProver generates Groth16 proofs with `snarkjs groth16 fullprove`.
func NewProver(cfg Config, runner cmdrunner.Runner) (ports.ProofOracle, error) {
	if len(cfg.Binary) == 0 {
		cfg.Binary = defaultBinary
	}
	for name, path := range map[string]string{
		"circuit wasm": cfg.CircuitWasm,
		"proving key":  cfg.ProvingKey,
	} {
		if len(path) == 0 {
			return nil, fmt.Errorf("missing %s path", name)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("invalid %s path: %w", name, err)
		}
	}
	if runner == nil {
		runner = cmdrunner.NewExecRunner()
	}
	return &prover{cfg, runner}, nil
}

func (p *prover) Prove(ctx context.Context, witness domain.Witness) (domain.Proof, error) {
	dir, err := os.MkdirTemp(p.cfg.WorkDir, "proof-*")
	if err != nil {
		return domain.Proof{}, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warnf("failed to remove scratch dir %s", dir)
		}
	}()

	inputPath := filepath.Join(dir, "input.json")
	proofPath := filepath.Join(dir, "proof.json")
	publicPath := filepath.Join(dir, "public.json")

	input, err := json.Marshal(newCircuitInput(witness))
	if err != nil {
		return domain.Proof{}, err
	}
	// the file holds the operator secret and its blinding factor
	if err := os.WriteFile(inputPath, input, 0600); err != nil {
		return domain.Proof{}, fmt.Errorf("failed to write circuit input: %w", err)
	}

	if _, err := p.runner.Run(
		ctx, p.cfg.Binary, "groth16", "fullprove",
		inputPath, p.cfg.CircuitWasm, p.cfg.ProvingKey, proofPath, publicPath,
	); err != nil {
		return domain.Proof{}, fmt.Errorf("snarkjs fullprove failed: %w", err)
	}

	proofJSON, err := os.ReadFile(proofPath)
	if err != nil {
		return domain.Proof{}, fmt.Errorf("failed to read proof: %w", err)
	}
	publicJSON, err := os.ReadFile(publicPath)
	if err != nil {
		return domain.Proof{}, fmt.Errorf("failed to read public signals: %w", err)
	}
	return EncodeProof(proofJSON, publicJSON, witness)
}

type circuitInput struct {
	Commit      string `json:"commit"`
	SeedCranker string `json:"seed_cranker"`
	SeedPlayer  string `json:"seed_player"`
	Resultado   string `json:"resultado"`
	Salt        string `json:"salt"`
}

func newCircuitInput(w domain.Witness) circuitInput {
	salt := "0"
	if w.BlindingFactor != nil {
		salt = w.BlindingFactor.String()
	}
	return circuitInput{
		Commit:      new(big.Int).SetBytes(w.Commitment[:]).String(),
		SeedCranker: fmt.Sprintf("%d", w.OperatorSecret),
		SeedPlayer:  fmt.Sprintf("%d", w.CounterpartySecret),
		Resultado:   fmt.Sprintf("%d", w.Outcome),
		Salt:        salt,
	}
}
