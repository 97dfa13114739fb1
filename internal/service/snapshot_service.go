package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/oracle"
)

// NetworthWriter appends snapshot points to the time series
type NetworthWriter interface {
	Insert(ctx context.Context, snapshot *models.NetworthSnapshot) error
}

// CheckEnqueuer re-enqueues the full balance refresh after a snapshot
type CheckEnqueuer interface {
	EnqueueAllChecks(ctx context.Context) (int, error)
}

// SnapshotService records periodic networth snapshots. Each snapshot
// captures the portfolio as currently stored, then kicks off a fresh
// round of balance checks so the next snapshot sees recent data.
type SnapshotService struct {
	portfolio *PortfolioService
	networth  NetworthWriter
	fiat      oracle.FiatFeed
	scheduler CheckEnqueuer
	currency  string
	interval  time.Duration
	logger    *logging.Logger

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSnapshotService creates a snapshot service
func NewSnapshotService(portfolio *PortfolioService, networth NetworthWriter, fiat oracle.FiatFeed, scheduler CheckEnqueuer, currency string, interval time.Duration, logger *logging.Logger) *SnapshotService {
	return &SnapshotService{
		portfolio: portfolio,
		networth:  networth,
		fiat:      fiat,
		scheduler: scheduler,
		currency:  currency,
		interval:  interval,
		logger:    logger.WithField("component", "snapshot_service"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// RecordSnapshot captures one snapshot point. An empty portfolio
// writes nothing and returns nil; a fiat feed failure records the
// snapshot with a null fiat value rather than losing the point.
func (s *SnapshotService) RecordSnapshot(ctx context.Context) (*models.NetworthSnapshot, error) {
	portfolio, err := s.portfolio.ComputePortfolio(ctx)
	if err != nil {
		return nil, err
	}

	if len(portfolio.Tokens) == 0 && len(portfolio.Offchain) == 0 {
		s.logger.Info("Portfolio is empty, skipping snapshot")
		return nil, nil
	}

	snapshot := &models.NetworthSnapshot{
		Timestamp: time.Now().UTC(),
		EthValue:  portfolio.TotalEthValue,
	}

	rate, err := s.fiat.Rate(ctx, s.currency)
	if err != nil {
		s.logger.WithError(err).Warn("Fiat rate unavailable, recording snapshot without fiat value")
	} else {
		fiatValue := portfolio.TotalEthValue * rate
		snapshot.FiatValue = &fiatValue
	}

	if err := s.networth.Insert(ctx, snapshot); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"eth_value":  snapshot.EthValue,
		"fiat_value": snapshot.FiatValue,
	}).Info("Recorded networth snapshot")

	enqueued, err := s.scheduler.EnqueueAllChecks(ctx)
	if err != nil {
		// the snapshot itself is already durable
		s.logger.WithError(err).Error("Failed to re-enqueue balance checks after snapshot")
	} else {
		s.logger.WithField("enqueued", enqueued).Info("Re-enqueued balance checks after snapshot")
	}

	return snapshot, nil
}

// Start begins the periodic snapshot loop
func (s *SnapshotService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("snapshot service is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithField("interval", s.interval.String()).Info("Starting snapshot loop")

	go s.loop(ctx)

	return nil
}

// Stop gracefully stops the snapshot loop
func (s *SnapshotService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("snapshot service is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

func (s *SnapshotService) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.RecordSnapshot(ctx); err != nil {
				s.logger.WithError(err).Error("Failed to record snapshot")
			}
		}
	}
}
