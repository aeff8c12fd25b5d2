package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/zkachi/cranker/internal/core/domain"
)

// flags
var (
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "max number of rounds to list, 0 for all",
		Value: 20,
	}
	proofFlag = &cli.StringFlag{
		Name:     "proof",
		Usage:    "hex encoded 384-byte proof",
		Required: true,
	}
	roundIdFlag = &cli.Uint64Flag{
		Name:  "round-id",
		Usage: "compare the proof with the one stored for this round",
	}
)

// commands
var (
	statusCmd = &cli.Command{
		Name:   "status",
		Usage:  "Print the current round and bet as seen by the ledger",
		Action: statusAction,
	}
	historyCmd = &cli.Command{
		Name:   "history",
		Usage:  "List the rounds opened by this operator, newest first",
		Action: historyAction,
		Flags:  []cli.Flag{limitFlag},
	}
	verifyCmd = &cli.Command{
		Name:   "verify",
		Usage:  "Decode a proof and check its outcome against the public inputs",
		Action: verifyAction,
		Flags:  []cli.Flag{proofFlag, roundIdFlag},
	}
)

func statusAction(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ledger, err := cfg.LedgerGateway()
	if err != nil {
		return err
	}

	round, err := ledger.GetCurrentRound(ctx.Context)
	if err != nil {
		return err
	}
	bet, err := ledger.GetCurrentBet(ctx.Context)
	if err != nil {
		return err
	}

	status := map[string]interface{}{"round": nil, "bet": nil}
	if round != nil {
		status["round"] = map[string]interface{}{
			"id":            round.Id,
			"status":        round.Status.String(),
			"operator":      round.Operator,
			"commitment":    fmt.Sprintf("%x", round.Commitment),
			"bond":          round.Bond,
			"commit_ledger": round.CommitLedger,
			"result":        round.Result,
		}
	}
	if bet != nil {
		status["bet"] = map[string]interface{}{
			"player": bet.Player,
			"amount": bet.Amount,
			"secret": domain.SecretFromBytes(bet.Secret),
		}
	}
	return printJSON(status)
}

func historyAction(ctx *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := cfg.RepoManager()
	if err != nil {
		return err
	}
	defer repo.Close()

	records, err := repo.Rounds().GetRecentRecords(ctx.Context, ctx.Int(limitFlag.Name))
	if err != nil {
		return err
	}

	list := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		list = append(list, recordToMap(r))
	}
	return printJSON(list)
}

func verifyAction(ctx *cli.Context) error {
	proof, err := domain.ProofFromHex(ctx.String(proofFlag.Name))
	if err != nil {
		return err
	}

	in := proof.PublicInputs()
	res := map[string]interface{}{
		"commitment":          fmt.Sprintf("%064x", in.Commitment),
		"operator_secret":     in.OperatorSecret.String(),
		"counterparty_secret": in.CounterpartySecret.String(),
		"outcome":             in.Outcome.String(),
		"valid":               true,
	}
	if err := proof.CheckOutcome(); err != nil {
		res["valid"] = false
		res["error"] = err.Error()
	}

	if ctx.IsSet(roundIdFlag.Name) {
		stored, err := storedProofMatches(ctx.Context, ctx.Uint64(roundIdFlag.Name), proof)
		if err != nil {
			return err
		}
		res["matches_record"] = stored
	}
	return printJSON(res)
}

func storedProofMatches(ctx context.Context, roundId uint64, proof domain.Proof) (bool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return false, err
	}
	repo, err := cfg.RepoManager()
	if err != nil {
		return false, err
	}
	defer repo.Close()

	records, err := repo.Rounds().GetRecordsWithRoundId(ctx, roundId)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.Status == domain.RecordSettled && r.Proof == proof.Hex() {
			return true, nil
		}
	}
	return false, nil
}

func recordToMap(r domain.RoundRecord) map[string]interface{} {
	m := map[string]interface{}{
		"id":         r.Id,
		"round_id":   r.RoundId,
		"commitment": r.Commitment,
		"status":     r.Status.String(),
		"opened_at":  r.OpenedAt,
		"ended_at":   r.EndedAt,
	}
	switch r.Status {
	case domain.RecordSettled:
		m["operator_secret"] = r.OperatorSecret
		m["counterparty_secret"] = r.CounterpartySecret
		m["outcome"] = r.Outcome
		m["confirmed"] = r.Confirmed
		m["proof"] = r.Proof
	default:
		m["reason"] = r.Reason
	}
	return m
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
