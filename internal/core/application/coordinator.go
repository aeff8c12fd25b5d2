package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/zkachi/cranker/internal/core/domain"
	"github.com/zkachi/cranker/internal/core/ports"
)

// RoundCoordinator drives one round at a time through IDLE, COMMITTED and
// READY_REVEAL. Tick must never be invoked concurrently; every field except
// the published snapshot is owned by the Tick call path.
type RoundCoordinator struct {
	cfg     CoordinatorConfig
	ledger  ports.LedgerGateway
	prover  ports.ProofOracle
	secrets *SecretCommitter
	rounds  domain.RoundRecordRepository
	clock   clockwork.Clock

	state         domain.CoordinatorState
	active        *domain.RoundContext
	lastSettledAt time.Time
	orphan        *orphanRound

	snapshot atomic.Pointer[domain.Snapshot]
}

// NewRoundCoordinator returns a coordinator in IDLE. rounds may be nil, in
// which case no history is kept.
func NewRoundCoordinator(
	cfg CoordinatorConfig, ledger ports.LedgerGateway, prover ports.ProofOracle,
	secrets *SecretCommitter, rounds domain.RoundRecordRepository, clock clockwork.Clock,
) (*RoundCoordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("missing ledger gateway")
	}
	if prover == nil {
		return nil, fmt.Errorf("missing proof oracle")
	}
	if secrets == nil {
		return nil, fmt.Errorf("missing secret committer")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &RoundCoordinator{
		cfg:     cfg,
		ledger:  ledger,
		prover:  prover,
		secrets: secrets,
		rounds:  rounds,
		clock:   clock,
		state:   domain.IdleState,
	}, nil
}

// Reset drops any in-memory round and returns to IDLE, as after a restart.
func (c *RoundCoordinator) Reset() {
	c.active = nil
	c.orphan = nil
	c.lastSettledAt = time.Time{}
	c.state = domain.IdleState
	c.publishSnapshot()
}

func (c *RoundCoordinator) State() domain.CoordinatorState {
	return c.state
}

// ActiveRound may be called from any goroutine.
func (c *RoundCoordinator) ActiveRound() (domain.Snapshot, bool) {
	snap := c.snapshot.Load()
	if snap == nil {
		return domain.Snapshot{}, false
	}
	return *snap, true
}

// Tick runs one step of the state machine. A failing step leaves the state
// untouched so that the same handler runs again on the next tick.
func (c *RoundCoordinator) Tick(ctx context.Context) (err error) {
	state := c.state
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %v", r)
		}
		if err != nil {
			log.WithError(err).WithField("state", state).Warn("tick failed, retrying on next tick")
		}
		c.publishSnapshot()
	}()

	switch state {
	case domain.IdleState:
		err = c.handleIdle(ctx)
	case domain.CommittedState:
		err = c.handleCommitted(ctx)
	case domain.ReadyRevealState:
		err = c.handleReadyReveal(ctx)
	default:
		err = errInvariantViolation{state.String(), "unknown state"}
		c.toIdle()
	}
	return
}

func (c *RoundCoordinator) handleIdle(ctx context.Context) error {
	round, err := c.ledger.GetCurrentRound(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current round: %w", err)
	}

	// an ended round is replaced by opening a new one
	if round != nil && !round.Status.Ended() {
		switch round.Status {
		case domain.RoundBetPlaced:
			if c.active != nil && c.active.Owns(*round) {
				log.Infof("found bet on held round %d, resuming reveal", round.Id)
				c.setState(domain.ReadyRevealState)
				return nil
			}
			if c.withinGracePeriod() {
				log.Debugf(
					"round %d reported with a bet right after our settlement, assuming a stale read",
					round.Id,
				)
				return nil
			}
			c.waitOnOrphan(*round)
			return nil
		case domain.RoundOpen:
			if c.active != nil && c.active.Owns(*round) {
				log.Infof("found held round %d still open, resuming wait for a bet", round.Id)
				c.setState(domain.CommittedState)
				return nil
			}
			if c.waitOnOrphan(*round) {
				return nil
			}
			log.Warnf("superseding orphaned open round %d", round.Id)
		}
	}

	return c.openRound(ctx)
}

func (c *RoundCoordinator) handleCommitted(ctx context.Context) error {
	rc := c.active
	if rc == nil {
		log.Error("no round context while committed, returning to idle")
		c.toIdle()
		return nil
	}

	round, err := c.ledger.GetCurrentRound(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current round: %w", err)
	}

	if round == nil {
		// a round never observed on the read path cannot have disappeared
		if !rc.HasRoundId() && !c.expired(rc) {
			log.Debug("opened round not visible yet, assuming a stale read")
			return nil
		}
		log.Infof("round %s disappeared from the ledger, returning to idle", rc.RoundIdString())
		c.abandon(ctx, rc, "round vanished from the ledger")
		return nil
	}

	if c.foreign(rc, *round) {
		if c.expired(rc) {
			log.Warnf(
				"ledger still reports round %d after %s while holding round %s, abandoning it",
				round.Id, c.cfg.RoundTimeout, rc.RoundIdString(),
			)
			c.abandon(ctx, rc, fmt.Sprintf("superseded by round %d", round.Id))
			return nil
		}
		log.Debugf(
			"observed round %d (%s) while holding round %s, assuming a stale read",
			round.Id, round.Status, rc.RoundIdString(),
		)
		return nil
	}

	if !rc.HasRoundId() && rc.Owns(*round) {
		rc.ConfirmRoundId(round.Id)
		log.Infof("confirmed round id %d", round.Id)
	}

	switch {
	case round.Status == domain.RoundBetPlaced:
		log.Infof("bet detected on round %d", round.Id)
		c.setState(domain.ReadyRevealState)
	case round.Status.Ended():
		log.Warnf("round %d ended (%s) without our reveal, returning to idle", round.Id, round.Status)
		c.abandon(ctx, rc, fmt.Sprintf("round ended as %s without reveal", round.Status))
	default:
		log.Debugf("round %d still open, waiting for a bet", round.Id)
	}
	return nil
}

func (c *RoundCoordinator) handleReadyReveal(ctx context.Context) error {
	rc := c.active
	if rc == nil {
		log.WithError(
			errInvariantViolation{c.state.String(), "no round context"},
		).Error("cannot reveal without the operator secret, the round is lost")
		c.toIdle()
		return nil
	}

	bet, err := c.ledger.GetCurrentBet(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current bet: %w", err)
	}
	if bet == nil {
		log.Infof("bet on round %s not visible yet, back to committed", rc.RoundIdString())
		c.setState(domain.CommittedState)
		return nil
	}

	counterpartySecret := domain.SecretFromBytes(bet.Secret)
	witness := rc.Witness(counterpartySecret)
	if domain.OutcomeWraps(witness.OperatorSecret, witness.CounterpartySecret) {
		log.Warnf(
			"secrets of round %s overflow 64 bits, the verifier may reject the proof",
			rc.RoundIdString(),
		)
	}
	log.Infof("round %s outcome is %d", rc.RoundIdString(), witness.Outcome)

	proof, err := c.proofFor(ctx, rc, witness)
	if err != nil {
		return err
	}

	if err := c.revealAndSettle(ctx, rc, proof); err != nil {
		if c.reconcileFailedReveal(ctx, rc, witness, proof, err) {
			return nil
		}
		return fmt.Errorf("failed to reveal and settle: %w", err)
	}

	confirmed := true
	if err := c.confirmSettlement(ctx, rc); err != nil {
		confirmed = false
		log.WithError(err).Warnf("settlement of round %s not confirmed yet", rc.RoundIdString())
	}

	c.settled(ctx, rc, witness, proof, confirmed)
	return nil
}

// reconcileFailedReveal closes the round if the ledger shows it can no longer
// be revealed, and reports whether it did so.
func (c *RoundCoordinator) reconcileFailedReveal(
	ctx context.Context, rc *domain.RoundContext, witness domain.Witness,
	proof domain.Proof, revealErr error,
) bool {
	round, err := c.ledger.GetCurrentRound(ctx)
	if err != nil || round == nil {
		return false
	}

	if c.foreign(rc, *round) {
		if !c.expired(rc) {
			return false
		}
		log.WithError(revealErr).Warnf(
			"ledger moved on to round %d, abandoning round %s", round.Id, rc.RoundIdString(),
		)
		c.abandon(ctx, rc, fmt.Sprintf("superseded by round %d before reveal", round.Id))
		return true
	}

	switch round.Status {
	case domain.RoundSettled:
		log.WithError(revealErr).Warnf(
			"round %d is already settled, assuming an earlier reveal went through", round.Id,
		)
		c.settled(ctx, rc, witness, proof, true)
		return true
	case domain.RoundTimedOut:
		log.WithError(revealErr).Warnf("round %d timed out before our reveal", round.Id)
		c.abandon(ctx, rc, "counterparty claimed the timeout before reveal")
		return true
	default:
		return false
	}
}

func (c *RoundCoordinator) settled(
	ctx context.Context, rc *domain.RoundContext, witness domain.Witness,
	proof domain.Proof, confirmed bool,
) {
	settledAt := c.clock.Now()
	c.lastSettledAt = settledAt
	c.record(ctx, domain.NewSettledRecord(rc, witness, proof, confirmed, settledAt))
	log.Infof("round %s settled with outcome %d", rc.RoundIdString(), witness.Outcome)
	c.toIdle()
}

func (c *RoundCoordinator) openRound(ctx context.Context) error {
	if c.active != nil {
		log.Warnf("dropping stale round context %s before opening", c.active.RoundIdString())
		c.active = nil
	}

	secret, err := c.secrets.NewSecret()
	if err != nil {
		return err
	}

	log.Infof("opening round with commitment %s...", hex.EncodeToString(secret.Commitment[:8]))

	if err := c.ledger.OpenRound(ctx, c.cfg.Identity, secret.Commitment, c.cfg.Bond); err != nil {
		return fmt.Errorf("failed to open round: %w", err)
	}

	rc := domain.NewRoundContext(secret, c.clock.Now())
	c.active = rc
	c.orphan = nil
	c.setState(domain.CommittedState)
	c.publishSnapshot()

	var roundId uint64
	if err := pollUntil(
		ctx, c.cfg.OpenConfirmAttempts, c.cfg.OpenConfirmDelay,
		func(ctx context.Context) (bool, error) {
			round, err := c.ledger.GetCurrentRound(ctx)
			if err != nil {
				return false, err
			}
			if round == nil || round.Status != domain.RoundOpen {
				return false, nil
			}
			if round.HasCommitment() && round.Commitment != rc.Commitment {
				return false, nil
			}
			roundId = round.Id
			return true, nil
		},
	); err != nil {
		log.WithError(err).Warn(
			"could not confirm the id of the opened round, falling back to status based reconciliation",
		)
		return nil
	}

	rc.ConfirmRoundId(roundId)
	log.Infof("round %d committed, waiting for a bet", roundId)
	return nil
}

func (c *RoundCoordinator) proofFor(
	ctx context.Context, rc *domain.RoundContext, witness domain.Witness,
) (domain.Proof, error) {
	if proof, ok := rc.CachedProof(witness.CounterpartySecret); ok {
		log.Debugf("reusing proof already generated for round %s", rc.RoundIdString())
		return proof, nil
	}

	proveCtx := ctx
	if c.cfg.ProofTimeout > 0 {
		var cancel context.CancelFunc
		proveCtx, cancel = context.WithTimeout(ctx, c.cfg.ProofTimeout)
		defer cancel()
	}

	log.Infof("generating proof for round %s", rc.RoundIdString())
	start := c.clock.Now()
	proof, err := c.prover.Prove(proveCtx, witness)
	if err != nil {
		return domain.Proof{}, fmt.Errorf("failed to generate proof: %w", err)
	}
	if !proof.Matches(witness) {
		return domain.Proof{}, errProofMismatch{rc.RoundIdString()}
	}
	log.Infof("proof for round %s generated in %s", rc.RoundIdString(), c.clock.Since(start))

	rc.CacheProof(witness.CounterpartySecret, proof)
	return proof, nil
}

func (c *RoundCoordinator) revealAndSettle(
	ctx context.Context, rc *domain.RoundContext, proof domain.Proof,
) error {
	return retryOnce(
		ctx, c.cfg.RevealRetryDelay,
		func() error {
			return c.ledger.RevealAndSettle(ctx, c.cfg.Identity, rc.OperatorSecretBytes, proof)
		},
		func(err error, wait time.Duration) {
			log.WithError(err).Warnf("reveal of round %s failed, retrying in %s", rc.RoundIdString(), wait)
		},
	)
}

func (c *RoundCoordinator) confirmSettlement(ctx context.Context, rc *domain.RoundContext) error {
	return pollUntil(
		ctx, c.cfg.SettleConfirmAttempts, c.cfg.SettleConfirmDelay,
		func(ctx context.Context) (bool, error) {
			round, err := c.ledger.GetCurrentRound(ctx)
			if err != nil {
				return false, err
			}
			if round == nil {
				return false, nil
			}
			if rc.RoundId != nil && round.Id > *rc.RoundId {
				return true, nil
			}
			return round.Status == domain.RoundSettled && !c.foreign(rc, *round), nil
		},
	)
}

// foreign reports whether the observed round is known not to be ours.
func (c *RoundCoordinator) foreign(rc *domain.RoundContext, round domain.LedgerRound) bool {
	if rc.HasRoundId() {
		return rc.ConflictsWith(round)
	}
	return round.HasCommitment() && round.Commitment != rc.Commitment
}

// waitOnOrphan tracks a round whose secret this process does not hold and
// reports whether the operator must keep waiting on it.
func (c *RoundCoordinator) waitOnOrphan(round domain.LedgerRound) bool {
	if c.orphan == nil || c.orphan.id != round.Id || c.orphan.status != round.Status {
		c.orphan = &orphanRound{round.Id, round.Status, c.clock.Now()}
		switch round.Status {
		case domain.RoundBetPlaced:
			log.Warnf(
				"round %d has a bet but its secret is not held by this process, "+
					"waiting for the counterparty to claim the timeout",
				round.Id,
			)
		default:
			log.Warnf(
				"round %d is open with a commitment not held by this process, waiting for it to end",
				round.Id,
			)
		}
	}

	if round.Status != domain.RoundOpen || c.cfg.OrphanSupersedeAfter <= 0 {
		return true
	}
	return c.clock.Since(c.orphan.since) < c.cfg.OrphanSupersedeAfter
}

func (c *RoundCoordinator) expired(rc *domain.RoundContext) bool {
	return c.cfg.RoundTimeout > 0 && c.clock.Since(rc.CommittedAt) > c.cfg.RoundTimeout
}

func (c *RoundCoordinator) withinGracePeriod() bool {
	if c.lastSettledAt.IsZero() {
		return false
	}
	return c.clock.Since(c.lastSettledAt) < c.cfg.SettlementGracePeriod
}

func (c *RoundCoordinator) abandon(ctx context.Context, rc *domain.RoundContext, reason string) {
	c.record(ctx, domain.NewAbandonedRecord(rc, reason, c.clock.Now()))
	c.toIdle()
}

// toIdle is the only way back to IDLE and always releases the round context.
func (c *RoundCoordinator) toIdle() {
	c.active = nil
	c.setState(domain.IdleState)
}

func (c *RoundCoordinator) setState(state domain.CoordinatorState) {
	if c.state == state {
		return
	}
	log.WithFields(log.Fields{
		"from": c.state.String(),
		"to":   state.String(),
	}).Info("state transition")
	c.state = state
}

func (c *RoundCoordinator) record(ctx context.Context, record domain.RoundRecord) {
	if c.rounds == nil {
		return
	}
	if err := c.rounds.AddOrUpdateRecord(ctx, record); err != nil {
		log.WithError(err).Warnf("failed to store record of round %d", record.RoundId)
	}
}

func (c *RoundCoordinator) publishSnapshot() {
	if c.active == nil {
		c.snapshot.Store(nil)
		return
	}
	snap := c.active.Snapshot(c.state)
	c.snapshot.Store(&snap)
}
