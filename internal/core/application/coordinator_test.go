package application

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zkachi/cranker/internal/core/domain"
)

const (
	testIdentity = "GBOPERATOR"
	testBond     = int64(500000000)
)

var (
	testCommitment    = [32]byte{0xc0, 0xff, 0xee, 31: 0x01}
	foreignCommitment = [32]byte{0xde, 0xad, 31: 0x02}
)

func testConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Identity:              testIdentity,
		Bond:                  testBond,
		ProofTimeout:          time.Minute,
		SettlementGracePeriod: time.Minute,
		OpenConfirmAttempts:   2,
		SettleConfirmAttempts: 2,
	}
}

type fixture struct {
	ledger      *mockedLedger
	prover      *mockedProver
	committer   *mockedCommitter
	rounds      *mockedRoundRepo
	clock       clockwork.FakeClock
	coordinator *RoundCoordinator
}

func newFixture(t *testing.T, cfg CoordinatorConfig, random io.Reader) *fixture {
	ledger := &mockedLedger{}
	prover := &mockedProver{}
	committer := &mockedCommitter{}
	rounds := &mockedRoundRepo{}
	clock := clockwork.NewFakeClock()

	committer.On("Commit", mock.Anything, mock.Anything).Return(testCommitment, nil)
	rounds.On("AddOrUpdateRecord", mock.Anything, mock.Anything).Return(nil)

	coordinator, err := NewRoundCoordinator(
		cfg, ledger, prover, NewSecretCommitter(committer, random), rounds, clock,
	)
	require.NoError(t, err)

	return &fixture{ledger, prover, committer, rounds, clock, coordinator}
}

// commit drives the coordinator from IDLE to COMMITTED on round id.
func (f *fixture) commit(t *testing.T, id uint64) {
	f.ledger.rounds(nil)
	f.ledger.On(
		"OpenRound", mock.Anything, testIdentity, testCommitment, testBond,
	).Return(nil).Once()
	f.ledger.rounds(round(id, domain.RoundOpen, testCommitment))

	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.CommittedState, f.coordinator.State())
}

// betPlaced drives the coordinator from COMMITTED to READY_REVEAL.
func (f *fixture) betPlaced(t *testing.T, id uint64) {
	f.ledger.rounds(round(id, domain.RoundBetPlaced, testCommitment))

	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.ReadyRevealState, f.coordinator.State())
}

func round(id uint64, status domain.RoundStatus, commitment [32]byte) *domain.LedgerRound {
	return &domain.LedgerRound{
		Id:         id,
		Status:     status,
		Operator:   testIdentity,
		Commitment: commitment,
		Bond:       testBond,
	}
}

func bet(secret uint64) *domain.Bet {
	return &domain.Bet{
		Player: "GBPLAYER",
		Amount: 10000000,
		Secret: domain.SecretToBytes(secret),
	}
}

// fixedRandom makes the next drawn operator secret equal to secret.
func fixedRandom(secret uint64) io.Reader {
	buf := binary.BigEndian.AppendUint32(nil, uint32(secret-domain.MinOperatorSecret))
	buf = append(buf, bytes.Repeat([]byte{0x01}, blindingFactorSize)...)
	return bytes.NewReader(buf)
}

func proofFor(t *testing.T, operatorSecret, counterpartySecret uint64) domain.Proof {
	proof, err := domain.NewProof(
		bytes.Repeat([]byte{0x0a}, 64), bytes.Repeat([]byte{0x0b}, 128),
		bytes.Repeat([]byte{0x0c}, 64),
		domain.Witness{
			Commitment:         testCommitment,
			OperatorSecret:     operatorSecret,
			CounterpartySecret: counterpartySecret,
			Outcome:            domain.ComputeOutcome(operatorSecret, counterpartySecret),
		},
	)
	require.NoError(t, err)
	return proof
}

func TestOpenRound(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.commit(t, 1)

		snap, ok := f.coordinator.ActiveRound()
		require.True(t, ok)
		require.Equal(t, domain.CommittedState, snap.State)
		require.Equal(t, "1", snap.RoundId)

		// the round stays open for a few ticks
		for i := 0; i < 3; i++ {
			f.ledger.rounds(round(1, domain.RoundOpen, testCommitment))
			require.NoError(t, f.coordinator.Tick(context.Background()))
			require.Equal(t, domain.CommittedState, f.coordinator.State())
		}
		f.ledger.AssertNumberOfCalls(t, "OpenRound", 1)
	})

	t.Run("unconfirmed id", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.ledger.rounds(nil)
		f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
			Return(nil).Once()
		// stale reads during the whole confirmation window
		f.ledger.rounds(
			round(3, domain.RoundSettled, foreignCommitment),
			round(3, domain.RoundSettled, foreignCommitment),
		)

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.CommittedState, f.coordinator.State())
		snap, ok := f.coordinator.ActiveRound()
		require.True(t, ok)
		require.Equal(t, "unconfirmed", snap.RoundId)

		f.ledger.rounds(round(4, domain.RoundOpen, testCommitment))
		require.NoError(t, f.coordinator.Tick(context.Background()))
		snap, _ = f.coordinator.ActiveRound()
		require.Equal(t, "4", snap.RoundId)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Run("ledger read fails", func(t *testing.T) {
			f := newFixture(t, testConfig(), nil)
			f.ledger.On("GetCurrentRound", mock.Anything).
				Return(nil, fmt.Errorf("rpc unavailable")).Once()

			err := f.coordinator.Tick(context.Background())
			require.Error(t, err)
			require.Equal(t, domain.IdleState, f.coordinator.State())
			f.ledger.AssertNotCalled(t, "OpenRound", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})

		t.Run("open fails", func(t *testing.T) {
			f := newFixture(t, testConfig(), nil)
			f.ledger.rounds(nil)
			f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
				Return(fmt.Errorf("insufficient balance")).Once()

			err := f.coordinator.Tick(context.Background())
			require.Error(t, err)
			require.Equal(t, domain.IdleState, f.coordinator.State())
			_, ok := f.coordinator.ActiveRound()
			require.False(t, ok)

			// the next attempt draws a brand new secret
			f.commit(t, 1)
			f.committer.AssertNumberOfCalls(t, "Commit", 2)
			first := f.committer.Calls[0].Arguments
			second := f.committer.Calls[1].Arguments
			require.NotEqual(t, first.Get(1), second.Get(1))
		})

		t.Run("round in progress", func(t *testing.T) {
			f := newFixture(t, testConfig(), nil)
			f.ledger.rounds(
				round(9, domain.RoundOpen, foreignCommitment),
				round(9, domain.RoundBetPlaced, foreignCommitment),
			)

			require.NoError(t, f.coordinator.Tick(context.Background()))
			require.NoError(t, f.coordinator.Tick(context.Background()))
			require.Equal(t, domain.IdleState, f.coordinator.State())
			f.ledger.AssertNotCalled(t, "OpenRound", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	})
}

func TestStaleReads(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.ledger.rounds(round(3, domain.RoundSettled, foreignCommitment))
	f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
		Return(nil).Once()
	f.ledger.rounds(round(4, domain.RoundOpen, testCommitment))
	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.CommittedState, f.coordinator.State())

	// reads reporting a different round must not move the state
	for _, r := range []*domain.LedgerRound{
		round(5, domain.RoundBetPlaced, foreignCommitment),
		round(5, domain.RoundSettled, foreignCommitment),
		round(3, domain.RoundSettled, foreignCommitment),
	} {
		f.ledger.rounds(r)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.CommittedState, f.coordinator.State())
	}

	f.betPlaced(t, 4)
	f.ledger.AssertNumberOfCalls(t, "OpenRound", 1)
	f.ledger.AssertNotCalled(t, "RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFullRound(t *testing.T) {
	f := newFixture(t, testConfig(), fixedRandom(42))
	proof := proofFor(t, 42, 100)

	f.commit(t, 7)
	f.betPlaced(t, 7)

	f.ledger.bet(bet(100))
	f.prover.On("Prove", mock.Anything, mock.MatchedBy(func(w domain.Witness) bool {
		return w.OperatorSecret == 42 && w.CounterpartySecret == 100 &&
			w.Outcome == 31 && w.Commitment == testCommitment
	})).Return(proof, nil).Once()
	f.ledger.On(
		"RevealAndSettle", mock.Anything, testIdentity, domain.SecretToBytes(42), proof,
	).Return(nil).Once()
	f.ledger.rounds(round(7, domain.RoundSettled, testCommitment))

	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.IdleState, f.coordinator.State())
	_, ok := f.coordinator.ActiveRound()
	require.False(t, ok)

	records := f.rounds.records()
	require.Len(t, records, 1)
	record := records[0]
	require.Equal(t, domain.RecordSettled, record.Status)
	require.Equal(t, uint64(7), record.RoundId)
	require.Equal(t, uint64(42), record.OperatorSecret)
	require.Equal(t, uint64(100), record.CounterpartySecret)
	require.Equal(t, uint32(31), record.Outcome)
	require.Equal(t, proof.Hex(), record.Proof)
	require.True(t, record.Confirmed)

	f.ledger.AssertExpectations(t)
	f.prover.AssertExpectations(t)
}

func TestReveal(t *testing.T) {
	t.Run("retried once with the same proof", func(t *testing.T) {
		f := newFixture(t, testConfig(), fixedRandom(42))
		proof := proofFor(t, 42, 100)
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(bet(100))
		f.prover.On("Prove", mock.Anything, mock.Anything).Return(proof, nil).Once()
		f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fmt.Errorf("tx submission failed")).Once()
		f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil).Once()
		f.ledger.rounds(round(1, domain.RoundSettled, testCommitment))

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())

		proofs := f.ledger.revealedProofs()
		require.Len(t, proofs, 2)
		require.Equal(t, proofs[0], proofs[1])
		f.prover.AssertNumberOfCalls(t, "Prove", 1)
	})

	t.Run("proof reused across ticks", func(t *testing.T) {
		f := newFixture(t, testConfig(), fixedRandom(42))
		proof := proofFor(t, 42, 100)
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(bet(100))
		f.prover.On("Prove", mock.Anything, mock.Anything).Return(proof, nil).Once()
		f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fmt.Errorf("tx submission failed")).Twice()
		f.ledger.rounds(round(1, domain.RoundBetPlaced, testCommitment))

		require.Error(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.ReadyRevealState, f.coordinator.State())

		f.ledger.bet(bet(100))
		f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil).Once()
		f.ledger.rounds(round(1, domain.RoundSettled, testCommitment))

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())

		proofs := f.ledger.revealedProofs()
		require.Len(t, proofs, 3)
		for _, p := range proofs {
			require.Equal(t, proof, p)
		}
		f.prover.AssertNumberOfCalls(t, "Prove", 1)
	})

	t.Run("bet not visible yet", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(nil)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.CommittedState, f.coordinator.State())
		_, ok := f.coordinator.ActiveRound()
		require.True(t, ok)
		f.prover.AssertNotCalled(t, "Prove", mock.Anything, mock.Anything)
	})

	t.Run("prover fails", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(bet(100))
		f.prover.On("Prove", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("witness generation failed")).Once()

		require.Error(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.ReadyRevealState, f.coordinator.State())
		f.ledger.AssertNotCalled(t, "RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("proof for another witness", func(t *testing.T) {
		f := newFixture(t, testConfig(), fixedRandom(42))
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(bet(100))
		f.prover.On("Prove", mock.Anything, mock.Anything).Return(proofFor(t, 42, 101), nil).Once()

		err := f.coordinator.Tick(context.Background())
		require.ErrorAs(t, err, &errProofMismatch{})
		require.Equal(t, domain.ReadyRevealState, f.coordinator.State())
		f.ledger.AssertNotCalled(t, "RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("round already settled", func(t *testing.T) {
		f := newFixture(t, testConfig(), fixedRandom(42))
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(bet(100))
		f.prover.On("Prove", mock.Anything, mock.Anything).Return(proofFor(t, 42, 100), nil).Once()
		f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fmt.Errorf("round not in BetPlaced")).Twice()
		f.ledger.rounds(round(1, domain.RoundSettled, testCommitment))

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())
		records := f.rounds.records()
		require.Len(t, records, 1)
		require.Equal(t, domain.RecordSettled, records[0].Status)
	})

	t.Run("round timed out", func(t *testing.T) {
		f := newFixture(t, testConfig(), fixedRandom(42))
		f.commit(t, 1)
		f.betPlaced(t, 1)

		f.ledger.bet(bet(100))
		f.prover.On("Prove", mock.Anything, mock.Anything).Return(proofFor(t, 42, 100), nil).Once()
		f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(fmt.Errorf("round not in BetPlaced")).Twice()
		f.ledger.rounds(round(1, domain.RoundTimedOut, testCommitment))

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())
		records := f.rounds.records()
		require.Len(t, records, 1)
		require.Equal(t, domain.RecordAbandoned, records[0].Status)
		require.Zero(t, records[0].OperatorSecret)
	})

	t.Run("missing round context", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.coordinator.state = domain.ReadyRevealState

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())
		f.ledger.AssertNotCalled(t, "GetCurrentBet", mock.Anything)
	})
}

func TestCommittedRoundEnded(t *testing.T) {
	tests := []struct {
		name   string
		status domain.RoundStatus
	}{
		{"settled", domain.RoundSettled},
		{"timed out", domain.RoundTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(), nil)
			f.commit(t, 2)

			f.ledger.rounds(round(2, tt.status, testCommitment))
			require.NoError(t, f.coordinator.Tick(context.Background()))
			require.Equal(t, domain.IdleState, f.coordinator.State())

			records := f.rounds.records()
			require.Len(t, records, 1)
			require.Equal(t, domain.RecordAbandoned, records[0].Status)
			require.Equal(t, uint64(2), records[0].RoundId)
		})
	}
}

func TestIdleReplacesEndedRound(t *testing.T) {
	tests := []struct {
		name   string
		status domain.RoundStatus
	}{
		{"settled", domain.RoundSettled},
		{"timed out", domain.RoundTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(), nil)
			f.ledger.rounds(round(3, tt.status, foreignCommitment))
			f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
				Return(nil).Once()
			f.ledger.rounds(round(4, domain.RoundOpen, testCommitment))

			require.NoError(t, f.coordinator.Tick(context.Background()))
			require.Equal(t, domain.CommittedState, f.coordinator.State())
			snap, ok := f.coordinator.ActiveRound()
			require.True(t, ok)
			require.Equal(t, "4", snap.RoundId)
		})
	}
}

func TestRoundTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RoundTimeout = 10 * time.Minute
	f := newFixture(t, cfg, nil)
	f.commit(t, 4)

	f.ledger.rounds(round(5, domain.RoundOpen, foreignCommitment))
	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.CommittedState, f.coordinator.State())

	f.clock.Advance(11 * time.Minute)
	f.ledger.rounds(round(5, domain.RoundOpen, foreignCommitment))
	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.IdleState, f.coordinator.State())
}

func TestRoundNotVisible(t *testing.T) {
	t.Run("confirmed round vanished", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.commit(t, 4)

		f.ledger.rounds(nil)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())

		records := f.rounds.records()
		require.Len(t, records, 1)
		require.Equal(t, domain.RecordAbandoned, records[0].Status)
		require.Equal(t, uint64(4), records[0].RoundId)
	})

	t.Run("opened round not visible yet", func(t *testing.T) {
		cfg := testConfig()
		cfg.RoundTimeout = 10 * time.Minute
		f := newFixture(t, cfg, nil)
		f.ledger.rounds(nil)
		f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
			Return(nil).Once()
		f.ledger.rounds(nil, nil)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.CommittedState, f.coordinator.State())

		f.ledger.rounds(nil)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.CommittedState, f.coordinator.State())
		require.Empty(t, f.rounds.records())

		f.clock.Advance(11 * time.Minute)
		f.ledger.rounds(nil)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.IdleState, f.coordinator.State())

		records := f.rounds.records()
		require.Len(t, records, 1)
		require.Equal(t, domain.RecordAbandoned, records[0].Status)
	})
}

func TestRestart(t *testing.T) {
	t.Run("orphaned round is never replaced", func(t *testing.T) {
		f := newFixture(t, testConfig(), nil)
		f.commit(t, 1)
		f.coordinator.Reset()
		_, ok := f.coordinator.ActiveRound()
		require.False(t, ok)

		f.ledger.rounds(
			round(1, domain.RoundOpen, testCommitment),
			round(1, domain.RoundOpen, testCommitment),
			round(1, domain.RoundBetPlaced, testCommitment),
		)
		for i := 0; i < 3; i++ {
			f.clock.Advance(time.Hour)
			require.NoError(t, f.coordinator.Tick(context.Background()))
			require.Equal(t, domain.IdleState, f.coordinator.State())
		}
		f.ledger.AssertNumberOfCalls(t, "OpenRound", 1)
		f.ledger.AssertNotCalled(t, "GetCurrentBet", mock.Anything)
	})

	t.Run("orphaned open round superseded", func(t *testing.T) {
		cfg := testConfig()
		cfg.OrphanSupersedeAfter = time.Minute
		f := newFixture(t, cfg, nil)
		f.commit(t, 1)
		f.coordinator.Reset()

		f.ledger.rounds(round(1, domain.RoundOpen, testCommitment))
		require.NoError(t, f.coordinator.Tick(context.Background()))
		f.ledger.AssertNumberOfCalls(t, "OpenRound", 1)

		f.clock.Advance(2 * time.Minute)
		f.ledger.rounds(round(1, domain.RoundOpen, testCommitment))
		f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
			Return(nil).Once()
		f.ledger.rounds(round(2, domain.RoundOpen, testCommitment))

		require.NoError(t, f.coordinator.Tick(context.Background()))
		require.Equal(t, domain.CommittedState, f.coordinator.State())
		f.ledger.AssertNumberOfCalls(t, "OpenRound", 2)
	})

	t.Run("orphaned bet never superseded", func(t *testing.T) {
		cfg := testConfig()
		cfg.OrphanSupersedeAfter = time.Minute
		f := newFixture(t, cfg, nil)

		f.ledger.rounds(
			round(6, domain.RoundBetPlaced, foreignCommitment),
			round(6, domain.RoundBetPlaced, foreignCommitment),
		)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		f.clock.Advance(time.Hour)
		require.NoError(t, f.coordinator.Tick(context.Background()))
		f.ledger.AssertNotCalled(t, "OpenRound", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSettlementGracePeriod(t *testing.T) {
	// two rounds are opened
	f := newFixture(t, testConfig(), io.MultiReader(fixedRandom(42), fixedRandom(43)))
	f.commit(t, 7)
	f.betPlaced(t, 7)

	f.ledger.bet(bet(100))
	f.prover.On("Prove", mock.Anything, mock.Anything).Return(proofFor(t, 42, 100), nil).Once()
	f.ledger.On("RevealAndSettle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()
	// settlement is not visible within the confirmation window
	f.ledger.rounds(
		round(7, domain.RoundBetPlaced, testCommitment),
		round(7, domain.RoundBetPlaced, testCommitment),
	)
	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.IdleState, f.coordinator.State())

	records := f.rounds.records()
	require.Len(t, records, 1)
	require.False(t, records[0].Confirmed)

	// the pre-settlement view keeps being served for a while
	f.clock.Advance(10 * time.Second)
	f.ledger.rounds(round(7, domain.RoundBetPlaced, testCommitment))
	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.IdleState, f.coordinator.State())
	f.ledger.AssertNumberOfCalls(t, "OpenRound", 1)

	f.clock.Advance(10 * time.Second)
	f.ledger.rounds(round(7, domain.RoundSettled, testCommitment))
	f.ledger.On("OpenRound", mock.Anything, testIdentity, testCommitment, testBond).
		Return(nil).Once()
	f.ledger.rounds(round(8, domain.RoundOpen, testCommitment))
	require.NoError(t, f.coordinator.Tick(context.Background()))
	require.Equal(t, domain.CommittedState, f.coordinator.State())
	f.ledger.AssertNumberOfCalls(t, "OpenRound", 2)
}

func TestTickRecoversFromPanic(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.ledger.On("GetCurrentRound", mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(nil, nil).Once()

	err := f.coordinator.Tick(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, domain.IdleState, f.coordinator.State())
}

func TestNewRoundCoordinator(t *testing.T) {
	secrets := NewSecretCommitter(&mockedCommitter{}, nil)

	tests := []struct {
		name   string
		cfg    func() CoordinatorConfig
		errMsg string
	}{
		{
			name: "missing identity",
			cfg: func() CoordinatorConfig {
				cfg := testConfig()
				cfg.Identity = ""
				return cfg
			},
			errMsg: "missing operator identity",
		},
		{
			name: "zero bond",
			cfg: func() CoordinatorConfig {
				cfg := testConfig()
				cfg.Bond = 0
				return cfg
			},
			errMsg: "bond must be positive",
		},
		{
			name: "no confirmation attempts",
			cfg: func() CoordinatorConfig {
				cfg := testConfig()
				cfg.SettleConfirmAttempts = 0
				return cfg
			},
			errMsg: "confirmation attempts must be at least 1",
		},
		{
			name: "negative delay",
			cfg: func() CoordinatorConfig {
				cfg := testConfig()
				cfg.RevealRetryDelay = -time.Second
				return cfg
			},
			errMsg: "delays must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewRoundCoordinator(
				tt.cfg(), &mockedLedger{}, &mockedProver{}, secrets, nil, nil,
			)
			require.Nil(t, c)
			require.EqualError(t, err, tt.errMsg)
		})
	}

	c, err := NewRoundCoordinator(testConfig(), &mockedLedger{}, &mockedProver{}, secrets, nil, nil)
	require.NoError(t, err)
	require.Equal(t, domain.IdleState, c.State())
}
