package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/zkachi/cranker/internal/core/domain"
	"github.com/zkachi/cranker/internal/core/ports"
)

type Service interface {
	Start() error
	Stop()
	ActiveRound() (domain.Snapshot, bool)
	GetRecentRounds(ctx context.Context, limit int) ([]domain.RoundRecord, error)
}

type service struct {
	coordinator  *RoundCoordinator
	scheduler    ports.SchedulerService
	repoManager  ports.RepoManager
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	// held for the whole duration of a tick
	ticking sync.Mutex
}

func NewService(
	coordinator *RoundCoordinator, scheduler ports.SchedulerService,
	repoManager ports.RepoManager, pollInterval time.Duration,
) (Service, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("missing round coordinator")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		coordinator:  coordinator,
		scheduler:    scheduler,
		repoManager:  repoManager,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

func (s *service) Start() error {
	log.Debugf("scheduling ticks every %s", s.pollInterval)
	if err := s.scheduler.ScheduleEvery(s.pollInterval, s.tick); err != nil {
		return fmt.Errorf("failed to schedule ticks: %w", err)
	}
	s.scheduler.Start()
	log.Debug("started scheduler")
	return nil
}

func (s *service) Stop() {
	s.cancel()
	s.scheduler.Stop()
	log.Debug("stopped scheduler")

	// wait for an in-flight tick to return
	s.ticking.Lock()
	defer s.ticking.Unlock()

	if snap, ok := s.coordinator.ActiveRound(); ok {
		log.Warnf(
			"shutting down with round %s in state %s (commitment %s): its secret is lost "+
				"and the counterparty can claim the timeout once a bet is placed",
			snap.RoundId, snap.State, snap.Commitment,
		)
	}

	if s.repoManager != nil {
		s.repoManager.Close()
		log.Debug("closed connection to db")
	}
}

func (s *service) ActiveRound() (domain.Snapshot, bool) {
	return s.coordinator.ActiveRound()
}

func (s *service) GetRecentRounds(
	ctx context.Context, limit int,
) ([]domain.RoundRecord, error) {
	if s.repoManager == nil {
		return nil, fmt.Errorf("round history is disabled")
	}
	return s.repoManager.Rounds().GetRecentRecords(ctx, limit)
}

func (s *service) tick() {
	s.ticking.Lock()
	defer s.ticking.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	// errors are already logged by the coordinator
	// nolint
	s.coordinator.Tick(s.ctx)
}
