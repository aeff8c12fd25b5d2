package application

import (
	"fmt"
	"time"

	"github.com/zkachi/cranker/internal/core/domain"
)

type CoordinatorConfig struct {
	Identity string
	Bond     int64

	// ProofTimeout bounds proof generation, zero means unbounded.
	ProofTimeout time.Duration
	// SettlementGracePeriod is how long after our own settlement a BetPlaced
	// read with no matching context is presumed stale.
	SettlementGracePeriod time.Duration

	OpenConfirmAttempts   int
	OpenConfirmDelay      time.Duration
	SettleConfirmAttempts int
	SettleConfirmDelay    time.Duration
	RevealRetryDelay      time.Duration

	// RoundTimeout is how long a committed round keeps waiting while the
	// ledger reports a different confirmed round id. Zero waits forever.
	RoundTimeout time.Duration
	// OrphanSupersedeAfter is how long an open round whose secret this process
	// does not hold is waited on before opening a new one. Zero waits forever.
	OrphanSupersedeAfter time.Duration
}

func (c CoordinatorConfig) validate() error {
	if len(c.Identity) == 0 {
		return fmt.Errorf("missing operator identity")
	}
	if c.Bond <= 0 {
		return fmt.Errorf("bond must be positive")
	}
	if c.OpenConfirmAttempts < 1 || c.SettleConfirmAttempts < 1 {
		return fmt.Errorf("confirmation attempts must be at least 1")
	}
	if c.OpenConfirmDelay < 0 || c.SettleConfirmDelay < 0 || c.RevealRetryDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

type orphanRound struct {
	id     uint64
	status domain.RoundStatus
	since  time.Time
}
