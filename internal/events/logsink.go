package events

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes every hub event through zap. Successful timings and status
// updates go to debug, errors to warn.
type LogSink struct {
	hub    *Hub
	logger *zap.Logger
}

func NewLogSink(hub *Hub, logger *zap.Logger) *LogSink {
	return &LogSink{hub: hub, logger: logger.Named("events")}
}

// Run consumes events until ctx is done or the hub closes.
func (s *LogSink) Run(ctx context.Context) error {
	for ev := range s.hub.Stream(ctx) {
		s.log(ev)
	}
	return nil
}

func (s *LogSink) log(ev Event) {
	switch e := ev.(type) {
	case StatusUpdated:
		fields := []zap.Field{zap.Bool("quick", e.Quick)}
		if e.Status.SpeedKmh != nil {
			fields = append(fields, zap.Float64("speed_kmh", *e.Status.SpeedKmh))
		}
		if e.Status.StepCount != nil {
			fields = append(fields, zap.Int("step_count", *e.Status.StepCount))
		}
		s.logger.Debug("Status updated", fields...)

	case CommandExecuted:
		s.logger.Info("Command executed",
			zap.String("command", e.Result.Command),
			zap.String("message", e.Result.Message))

	case OperationTiming:
		fields := []zap.Field{
			zap.String("operation", e.Operation),
			zap.Float64("wait_ms", e.WaitMs),
			zap.Float64("run_ms", e.RunMs),
			zap.Float64("total_ms", e.TotalMs),
			zap.Bool("success", e.Success),
		}
		if e.Success {
			s.logger.Debug("Operation timing", fields...)
		} else {
			s.logger.Info("Operation timing", fields...)
		}

	case Error:
		s.logger.Warn("Operation failed",
			zap.String("operation", e.Operation),
			zap.String("message", e.Message))

	default:
		s.logger.Debug("Unknown event", zap.String("kind", string(ev.Kind())))
	}
}
