package services

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
)

// PriceSyncer is the part of PortfolioService the updater drives.
type PriceSyncer interface {
	SyncAllPrices(ctx context.Context) (int, error)
	Snapshot(ctx context.Context, userID string) error
}

// UserLister lists the users whose portfolios get a daily snapshot.
type UserLister interface {
	GetAllUsers(ctx context.Context) ([]models.User, error)
}

// PriceUpdater refreshes coin prices on an interval and records a portfolio
// snapshot per user afterwards. A failed feed call is retried with
// exponential backoff instead of waiting for the next tick.
type PriceUpdater struct {
	interval    time.Duration
	syncer      PriceSyncer
	users       UserLister
	backoff     *backoff.Backoff
	isRunning   bool
	stopChan    chan struct{}
	done        chan struct{}
	mutex       sync.Mutex
	lastUpdated time.Time
	lastErr     error
}

func NewPriceUpdater(interval time.Duration, syncer PriceSyncer, users UserLister) *PriceUpdater {
	return &PriceUpdater{
		interval: interval,
		syncer:   syncer,
		users:    users,
		backoff: &backoff.Backoff{
			Min:    5 * time.Second,
			Max:    interval,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Start runs a sync immediately and then every interval until Stop.
func (p *PriceUpdater) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.isRunning {
		return
	}
	p.isRunning = true
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	stop, done := p.stopChan, p.done
	go func() {
		<-stop
		cancel()
	}()
	go p.loop(ctx, done)

	logger.L.Info("price updater started", "interval", p.interval.String())
}

// Stop cancels an in-flight sync and waits for the loop to exit.
func (p *PriceUpdater) Stop() {
	p.mutex.Lock()
	if !p.isRunning {
		p.mutex.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopChan)
	done := p.done
	p.mutex.Unlock()

	<-done
	logger.L.Info("price updater stopped")
}

func (p *PriceUpdater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := p.interval
		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			next = p.backoff.Duration()
			logger.L.Warn("price sync failed, retrying",
				"attempt", p.backoff.Attempt(), "retryIn", next.String(), "error", err)
		} else {
			p.backoff.Reset()
		}
		timer.Reset(next)
	}
}

// RunOnce syncs every coin price and snapshots each user. Snapshots are
// still taken when the feed fails, using the last known prices.
func (p *PriceUpdater) RunOnce(ctx context.Context) error {
	updated, syncErr := p.syncer.SyncAllPrices(ctx)
	if ctx.Err() != nil {
		return syncErr
	}

	users, err := p.users.GetAllUsers(ctx)
	if err != nil {
		p.record(err)
		return err
	}
	for _, u := range users {
		if err := p.syncer.Snapshot(ctx, u.ID); err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.L.Error("failed to save portfolio snapshot", "userID", u.ID, "error", err)
		}
	}

	p.record(syncErr)
	logger.L.Info("price sync completed", "updatedCoins", updated, "users", len(users))
	return syncErr
}

func (p *PriceUpdater) record(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.lastErr = err
	if err == nil {
		p.lastUpdated = time.Now()
	}
}

// GetLastUpdated returns when the last fully successful sync finished.
func (p *PriceUpdater) GetLastUpdated() time.Time {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.lastUpdated
}

// LastError returns the error of the most recent sync, if any.
func (p *PriceUpdater) LastError() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.lastErr
}

func (p *PriceUpdater) IsRunning() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.isRunning
}
