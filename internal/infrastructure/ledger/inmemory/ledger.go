package inmemoryledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/zkachi/cranker/internal/core/domain"
)

const (
	// DefaultTimeoutLedgers is the number of ledgers after the commit past
	// which the counterparty can claim the timeout.
	DefaultTimeoutLedgers = 100
	DefaultLedgerInterval = 5 * time.Second
	DefaultMinBond        = int64(500000000)

	simulatedPlayer = "GSIMULATEDPLAYER"
	simulatedAmount = int64(10000000)
)

var (
	ErrNoRound         = errors.New("no active round")
	ErrRoundInProgress = errors.New("round already in progress")
	ErrBondTooLow      = errors.New("bond below minimum")
	ErrRoundNotOpen    = errors.New("round not open for bets")
	ErrNotRevealable   = errors.New("round not ready for reveal")
	ErrNotCranker      = errors.New("not the round cranker")
	ErrInvalidProof    = errors.New("invalid ZK proof")
	ErrNotPlayer       = errors.New("not the player")
	ErrTimeoutNotDue   = errors.New("timeout not reached")
)

type Config struct {
	// ReadLag is how long a write stays invisible to reads.
	ReadLag time.Duration
	// AutoBet places a random bet right after every opened round.
	AutoBet        bool
	TimeoutLedgers uint32
	LedgerInterval time.Duration
	MinBond        int64
	Clock          clockwork.Clock
}

type entry struct {
	state
	writtenAt time.Time
}

type state struct {
	round   *domain.LedgerRound
	bet     *domain.Bet
	counter uint64
}

func (s state) clone() state {
	c := state{counter: s.counter}
	if s.round != nil {
		r := *s.round
		c.round = &r
	}
	if s.bet != nil {
		b := *s.bet
		c.bet = &b
	}
	return c
}

// Ledger simulates the roulette contract with an eventually consistent read
// path. It is safe for concurrent use.
type Ledger struct {
	cfg     Config
	start   time.Time
	lock    sync.RWMutex
	history []entry
}

func NewLedger(cfg Config) *Ledger {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TimeoutLedgers == 0 {
		cfg.TimeoutLedgers = DefaultTimeoutLedgers
	}
	if cfg.LedgerInterval <= 0 {
		cfg.LedgerInterval = DefaultLedgerInterval
	}
	if cfg.MinBond <= 0 {
		cfg.MinBond = DefaultMinBond
	}
	if cfg.ReadLag < 0 {
		cfg.ReadLag = 0
	}
	return &Ledger{
		cfg:     cfg,
		start:   cfg.Clock.Now(),
		history: []entry{{}},
	}
}

func (l *Ledger) GetCurrentRound(_ context.Context) (*domain.LedgerRound, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.read().round, nil
}

func (l *Ledger) GetCurrentBet(_ context.Context) (*domain.Bet, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.read().bet, nil
}

func (l *Ledger) OpenRound(
	_ context.Context, identity string, commitment [32]byte, bond int64,
) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.latest()
	if next.round != nil {
		switch next.round.Status {
		case domain.RoundBetPlaced:
			return ErrRoundInProgress
		case domain.RoundOpen:
			log.Debugf("refunding bond of replaced round %d", next.round.Id)
		}
		next.round = nil
		next.bet = nil
	}
	if bond < l.cfg.MinBond {
		return ErrBondTooLow
	}

	next.counter++
	next.round = &domain.LedgerRound{
		Id:           next.counter,
		Status:       domain.RoundOpen,
		Operator:     identity,
		Commitment:   commitment,
		Bond:         bond,
		CommitLedger: l.sequence(),
	}
	l.write(next)

	if l.cfg.AutoBet {
		var secret [32]byte
		if _, err := rand.Read(secret[24:]); err != nil {
			return fmt.Errorf("failed to draw simulated bet: %w", err)
		}
		if err := l.placeBet(simulatedPlayer, secret, simulatedAmount); err != nil {
			return err
		}
		log.Debugf("simulated bet placed on round %d", next.counter)
	}
	return nil
}

func (l *Ledger) RevealAndSettle(
	_ context.Context, identity string, secret [32]byte, proof domain.Proof,
) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.latest()
	if next.round == nil {
		return ErrNoRound
	}
	if next.round.Status != domain.RoundBetPlaced || next.bet == nil {
		return ErrNotRevealable
	}
	if next.round.Operator != identity {
		return ErrNotCranker
	}

	outcome := domain.ComputeOutcome(
		domain.SecretFromBytes(secret), domain.SecretFromBytes(next.bet.Secret),
	)
	if !proof.Matches(domain.Witness{
		Commitment:         next.round.Commitment,
		OperatorSecret:     domain.SecretFromBytes(secret),
		CounterpartySecret: domain.SecretFromBytes(next.bet.Secret),
		Outcome:            outcome,
	}) {
		return ErrInvalidProof
	}

	next.round.Result = outcome
	next.round.Status = domain.RoundSettled
	l.write(next)
	return nil
}

// PlaceBet submits a counterparty bet on the open round.
func (l *Ledger) PlaceBet(player string, secret [32]byte, amount int64) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.placeBet(player, secret, amount)
}

// ClaimTimeout ends a round whose operator did not reveal in time.
func (l *Ledger) ClaimTimeout(player string) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	next := l.latest()
	if next.round == nil {
		return ErrNoRound
	}
	if next.round.Status != domain.RoundBetPlaced || next.bet == nil {
		return fmt.Errorf("round not in bet placed state")
	}
	if next.bet.Player != player {
		return ErrNotPlayer
	}
	if l.sequence() <= next.round.CommitLedger+l.cfg.TimeoutLedgers {
		return ErrTimeoutNotDue
	}

	next.round.Status = domain.RoundTimedOut
	next.round.Result = domain.OutcomeModulus
	l.write(next)
	return nil
}

// Latest returns the most recent round, bypassing the read lag.
func (l *Ledger) Latest() *domain.LedgerRound {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.latest().round
}

func (l *Ledger) placeBet(player string, secret [32]byte, amount int64) error {
	next := l.latest()
	if next.round == nil {
		return ErrNoRound
	}
	if next.round.Status != domain.RoundOpen {
		return ErrRoundNotOpen
	}
	if player == next.round.Operator {
		return fmt.Errorf("cranker cannot bet on own round")
	}
	if amount <= 0 {
		return fmt.Errorf("bet must be positive")
	}

	next.bet = &domain.Bet{Player: player, Amount: amount, Secret: secret}
	next.round.Status = domain.RoundBetPlaced
	l.write(next)
	return nil
}

func (l *Ledger) sequence() uint32 {
	return uint32(l.cfg.Clock.Since(l.start) / l.cfg.LedgerInterval)
}

func (l *Ledger) latest() state {
	return l.history[len(l.history)-1].clone()
}

func (l *Ledger) read() state {
	return l.history[l.visible()].clone()
}

// visible returns the index of the newest entry old enough to be read.
func (l *Ledger) visible() int {
	now := l.cfg.Clock.Now()
	for i := len(l.history) - 1; i > 0; i-- {
		if !l.history[i].writtenAt.Add(l.cfg.ReadLag).After(now) {
			return i
		}
	}
	return 0
}

func (l *Ledger) write(s state) {
	l.history = append(l.history, entry{s, l.cfg.Clock.Now()})
	// entries older than the visible one are never read again
	if i := l.visible(); i > 0 {
		l.history = append([]entry(nil), l.history[i:]...)
	}
}
