package stellarledger

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zkachi/cranker/internal/core/domain"
)

type roundJSON struct {
	Id           json.RawMessage `json:"id"`
	Cranker      string          `json:"cranker"`
	Commit       string          `json:"commit"`
	Bond         json.RawMessage `json:"bond"`
	Status       json.RawMessage `json:"status"`
	CommitLedger json.RawMessage `json:"commit_ledger"`
	Result       json.RawMessage `json:"result"`
}

type betJSON struct {
	Player     string          `json:"player"`
	Amount     json.RawMessage `json:"amount"`
	SeedPlayer string          `json:"seed_player"`
}

// absent reports whether the contract returned an empty option.
func absent(out string) bool {
	switch strings.TrimSpace(out) {
	case "", "null", "void":
		return true
	default:
		return false
	}
}

func parseRound(out string) (*domain.LedgerRound, error) {
	if absent(out) {
		return nil, nil
	}

	var raw roundJSON
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse round: %w", err)
	}

	id, err := parseUint(raw.Id, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid round id: %w", err)
	}
	status, err := parseStatus(raw.Status)
	if err != nil {
		return nil, err
	}
	bond, err := parseInt(raw.Bond)
	if err != nil {
		return nil, fmt.Errorf("invalid round bond: %w", err)
	}
	commitLedger, err := parseUint(raw.CommitLedger, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid commit ledger: %w", err)
	}
	result, err := parseUint(raw.Result, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid round result: %w", err)
	}

	round := &domain.LedgerRound{
		Id:           id,
		Status:       status,
		Operator:     raw.Cranker,
		Bond:         bond,
		CommitLedger: uint32(commitLedger),
		Result:       uint32(result),
	}
	if len(raw.Commit) > 0 {
		commitment, err := parseBytes32(raw.Commit)
		if err != nil {
			return nil, fmt.Errorf("invalid round commitment: %w", err)
		}
		round.Commitment = commitment
	}
	return round, nil
}

func parseBet(out string) (*domain.Bet, error) {
	if absent(out) {
		return nil, nil
	}

	var raw betJSON
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bet: %w", err)
	}

	amount, err := parseInt(raw.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid bet amount: %w", err)
	}
	secret, err := parseBytes32(raw.SeedPlayer)
	if err != nil {
		return nil, fmt.Errorf("invalid counterparty secret: %w", err)
	}
	return &domain.Bet{
		Player: raw.Player,
		Amount: amount,
		Secret: secret,
	}, nil
}

// parseStatus accepts the unit variant encodings produced by the CLI:
// "Open", ["Open"] and {"Open": ...}.
func parseStatus(raw json.RawMessage) (domain.RoundStatus, error) {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		return domain.ParseRoundStatus(tag)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return domain.UndefinedStatus, fmt.Errorf("empty round status")
		}
		return parseStatus(list[0])
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj) == 1 {
		for tag := range obj {
			return domain.ParseRoundStatus(tag)
		}
	}
	return domain.UndefinedStatus, fmt.Errorf("unsupported round status %s", string(raw))
}

// numberString unwraps a JSON number or a quoted number, defaulting to zero.
func numberString(raw json.RawMessage) string {
	str := strings.TrimSpace(string(raw))
	if str == "" || str == "null" {
		return "0"
	}
	return strings.Trim(str, `"`)
}

func parseUint(raw json.RawMessage, bitSize int) (uint64, error) {
	return strconv.ParseUint(numberString(raw), 10, bitSize)
}

func parseInt(raw json.RawMessage) (int64, error) {
	return strconv.ParseInt(numberString(raw), 10, 64)
}

// parseBytes32 decodes a 32-byte value given either as hex or as base64.
func parseBytes32(str string) ([32]byte, error) {
	var buf [32]byte
	str = strings.TrimPrefix(strings.TrimSpace(str), "0x")

	if decoded, err := hex.DecodeString(str); err == nil {
		if len(decoded) != len(buf) {
			return buf, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
		}
		copy(buf[:], decoded)
		return buf, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return buf, fmt.Errorf("neither hex nor base64: %s", str)
	}
	if len(decoded) != len(buf) {
		return buf, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(buf[:], decoded)
	return buf, nil
}
