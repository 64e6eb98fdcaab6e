package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap"
)

// ErrBusy is returned by TryExecute when another operation holds the gate.
var ErrBusy = errors.New("device busy")

// Publisher receives the timing and error events of every call.
type Publisher interface {
	Publish(events.Event)
}

// Gateway serializes blocking device calls behind a single Gate and
// reports wait, run and total latency for each of them.
type Gateway struct {
	gate      *Gate
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(publisher Publisher, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		gate:      NewGate(),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Busy reports whether a device call is in flight.
func (g *Gateway) Busy() bool {
	return g.gate.Busy()
}

// Gate exposes the admission gate, mainly for tests that need to hold it.
func (g *Gateway) Gate() *Gate {
	return g.gate
}

// Execute runs call once the gate is free. It always publishes one
// OperationTiming and, if call fails, an Error right after it. The error is
// returned unchanged. An admitted call is never interrupted by ctx.
func (g *Gateway) Execute(ctx context.Context, operation string, call func() error) error {
	return g.execute(operation, func() error {
		if err := g.gate.Acquire(ctx); err != nil {
			return fmt.Errorf("waiting for device: %w", err)
		}
		return nil
	}, call)
}

// TryExecute runs call only if the gate is free right now. Otherwise it
// returns ErrBusy and publishes nothing. Deciding and admitting is one step,
// so a caller that skips on ErrBusy never queues behind another operation.
func (g *Gateway) TryExecute(operation string, call func() error) error {
	if !g.gate.TryAcquire() {
		return ErrBusy
	}
	return g.execute(operation, func() error { return nil }, call)
}

// execute publishes the timing and error events around call. acquire must
// leave the gate held when it returns nil.
func (g *Gateway) execute(operation string, acquire func() error, call func() error) error {
	start := g.now()
	var waitMs, runMs float64

	err := func() (err error) {
		if err := acquire(); err != nil {
			waitMs = ms(g.now().Sub(start))
			return err
		}
		defer g.gate.Release()
		waitMs = ms(g.now().Sub(start))

		runStart := g.now()
		defer func() {
			runMs = ms(g.now().Sub(runStart))
			if r := recover(); r != nil {
				g.logger.Error("Device call panicked",
					zap.String("operation", operation),
					zap.Any("panic", r))
				err = types.NewCommunicationError(fmt.Sprintf("%s: unexpected device failure: %v", operation, r))
			}
		}()
		return call()
	}()

	totalMs := ms(g.now().Sub(start))
	g.publisher.Publish(events.OperationTiming{
		Timestamp: events.Now(),
		Operation: operation,
		WaitMs:    waitMs,
		RunMs:     runMs,
		TotalMs:   totalMs,
		Success:   err == nil,
	})

	if err != nil {
		g.publisher.Publish(events.Error{
			Timestamp: events.Now(),
			Operation: operation,
			Message:   err.Error(),
		})
		g.logger.Debug("Device operation failed",
			zap.String("operation", operation),
			zap.Float64("total_ms", totalMs),
			zap.Error(err))
		return err
	}

	return nil
}

// TryCall is TryExecute for calls that produce a value.
func TryCall[T any](g *Gateway, operation string, call func() (T, error)) (T, error) {
	var result T
	err := g.TryExecute(operation, func() error {
		var err error
		result, err = call()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Call is Execute for calls that produce a value.
func Call[T any](ctx context.Context, g *Gateway, operation string, call func() (T, error)) (T, error) {
	var result T
	err := g.Execute(ctx, operation, func() error {
		var err error
		result, err = call()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
