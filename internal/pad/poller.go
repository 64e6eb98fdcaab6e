package pad

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/gateway"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	pollerStopped = "stopped"
	pollerRunning = "running"

	eventStart = "start"
	eventStop  = "stop"
)

// PollerStats counts poll attempts since the poller was created.
type PollerStats struct {
	Attempts int64 `json:"attempts"`
	Skipped  int64 `json:"skipped"`
	Failures int64 `json:"failures"`
	// Interval of the current or last run, zero if never started
	IntervalSeconds float64 `json:"interval_seconds"`
}

// Poller periodically reads the full status. It never queues behind an
// interactive command: a tick that finds the gate busy is skipped.
type Poller struct {
	service *Service
	logger  *zap.Logger

	mu       sync.Mutex
	state    *fsm.FSM
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	attempts atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
}

func NewPoller(service *Service, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		service: service,
		logger:  logger,
	}
	p.state = fsm.NewFSM(
		pollerStopped,
		fsm.Events{
			{Name: eventStart, Src: []string{pollerStopped}, Dst: pollerRunning},
			{Name: eventStop, Src: []string{pollerRunning}, Dst: pollerStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.logger.Debug("Poller state changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)
	return p
}

// Start startet das zyklische Polling
func (p *Poller) Start(interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Is(pollerRunning) {
		return nil
	}
	if err := p.state.Event(context.Background(), eventStart); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.interval = interval
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.pollLoop(ctx, interval, p.done)

	p.logger.Info("Poller started", zap.Duration("interval", interval))
	return nil
}

// Stop stoppt das Polling und wartet auf das Ende der Schleife.
// An in-flight status read is allowed to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Is(pollerRunning) {
		return
	}

	p.cancel()
	<-p.done

	if err := p.state.Event(context.Background(), eventStop); err != nil {
		p.logger.Warn("Poller state transition failed", zap.Error(err))
	}
	p.cancel = nil
	p.done = nil

	p.logger.Info("Poller stopped")
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Is(pollerRunning)
}

// State returns the poller state name
func (p *Poller) State() string {
	return p.state.Current()
}

func (p *Poller) Stats() PollerStats {
	p.mu.Lock()
	interval := p.interval
	p.mu.Unlock()

	return PollerStats{
		Attempts:        p.attempts.Load(),
		Skipped:         p.skipped.Load(),
		Failures:        p.failures.Load(),
		IntervalSeconds: interval.Seconds(),
	}
}

func (p *Poller) pollLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	_, err := p.service.tryGetStatus()
	if errors.Is(err, gateway.ErrBusy) {
		p.skipped.Add(1)
		p.logger.Debug("Poll skipped, device busy")
		return
	}

	p.attempts.Add(1)
	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("Poll failed", zap.Error(err))
		p.service.hub.Publish(events.Error{
			Timestamp: events.Now(),
			Operation: types.OpPoll,
			Message:   err.Error(),
		})
	}
}
