package application

import (
	"context"
	"math/big"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zkachi/cranker/internal/core/domain"
)

type mockedLedger struct {
	mock.Mock
}

func (m *mockedLedger) GetCurrentRound(ctx context.Context) (*domain.LedgerRound, error) {
	args := m.Called(ctx)

	var res *domain.LedgerRound
	if a := args.Get(0); a != nil {
		res = a.(*domain.LedgerRound)
	}
	return res, args.Error(1)
}

func (m *mockedLedger) GetCurrentBet(ctx context.Context) (*domain.Bet, error) {
	args := m.Called(ctx)

	var res *domain.Bet
	if a := args.Get(0); a != nil {
		res = a.(*domain.Bet)
	}
	return res, args.Error(1)
}

func (m *mockedLedger) OpenRound(
	ctx context.Context, identity string, commitment [32]byte, bond int64,
) error {
	args := m.Called(ctx, identity, commitment, bond)
	return args.Error(0)
}

func (m *mockedLedger) RevealAndSettle(
	ctx context.Context, identity string, secret [32]byte, proof domain.Proof,
) error {
	args := m.Called(ctx, identity, secret, proof)
	return args.Error(0)
}

// rounds queues the results of the next GetCurrentRound calls, in order.
func (m *mockedLedger) rounds(rounds ...*domain.LedgerRound) {
	for _, r := range rounds {
		m.On("GetCurrentRound", mock.Anything).Return(r, nil).Once()
	}
}

func (m *mockedLedger) bet(bet *domain.Bet) {
	m.On("GetCurrentBet", mock.Anything).Return(bet, nil).Once()
}

func (m *mockedLedger) revealedProofs() []domain.Proof {
	proofs := make([]domain.Proof, 0)
	for _, call := range m.Calls {
		if call.Method == "RevealAndSettle" {
			proofs = append(proofs, call.Arguments.Get(3).(domain.Proof))
		}
	}
	return proofs
}

type mockedProver struct {
	mock.Mock
}

func (m *mockedProver) Prove(ctx context.Context, witness domain.Witness) (domain.Proof, error) {
	args := m.Called(ctx, witness)

	var res domain.Proof
	if a := args.Get(0); a != nil {
		res = a.(domain.Proof)
	}
	return res, args.Error(1)
}

type mockedCommitter struct {
	mock.Mock
}

func (m *mockedCommitter) Commit(secret uint64, blindingFactor *big.Int) ([32]byte, error) {
	args := m.Called(secret, blindingFactor)

	var res [32]byte
	if a := args.Get(0); a != nil {
		res = a.([32]byte)
	}
	return res, args.Error(1)
}

type mockedRoundRepo struct {
	mock.Mock
}

func (m *mockedRoundRepo) AddOrUpdateRecord(ctx context.Context, record domain.RoundRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockedRoundRepo) GetRecordWithId(ctx context.Context, id string) (*domain.RoundRecord, error) {
	args := m.Called(ctx, id)

	var res *domain.RoundRecord
	if a := args.Get(0); a != nil {
		res = a.(*domain.RoundRecord)
	}
	return res, args.Error(1)
}

func (m *mockedRoundRepo) GetRecordsWithRoundId(
	ctx context.Context, roundId uint64,
) ([]domain.RoundRecord, error) {
	args := m.Called(ctx, roundId)

	var res []domain.RoundRecord
	if a := args.Get(0); a != nil {
		res = a.([]domain.RoundRecord)
	}
	return res, args.Error(1)
}

func (m *mockedRoundRepo) GetRecentRecords(ctx context.Context, limit int) ([]domain.RoundRecord, error) {
	args := m.Called(ctx, limit)

	var res []domain.RoundRecord
	if a := args.Get(0); a != nil {
		res = a.([]domain.RoundRecord)
	}
	return res, args.Error(1)
}

func (m *mockedRoundRepo) Close() {
	m.Called()
}

func (m *mockedRoundRepo) records() []domain.RoundRecord {
	records := make([]domain.RoundRecord, 0)
	for _, call := range m.Calls {
		if call.Method == "AddOrUpdateRecord" {
			records = append(records, call.Arguments.Get(1).(domain.RoundRecord))
		}
	}
	return records
}

type mockedRepoManager struct {
	mock.Mock
}

func (m *mockedRepoManager) Rounds() domain.RoundRecordRepository {
	args := m.Called()

	var res domain.RoundRecordRepository
	if a := args.Get(0); a != nil {
		res = a.(domain.RoundRecordRepository)
	}
	return res
}

func (m *mockedRepoManager) Close() {
	m.Called()
}

type mockedScheduler struct {
	mock.Mock
}

func (m *mockedScheduler) Start() {
	m.Called()
}

func (m *mockedScheduler) Stop() {
	m.Called()
}

func (m *mockedScheduler) ScheduleEvery(interval time.Duration, task func()) error {
	args := m.Called(interval, task)
	return args.Error(0)
}
