package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	namespace = "walkingpad"

	resultSuccess = "success"
	resultError   = "error"
)

// Recorder turns hub events into Prometheus metrics.
type Recorder struct {
	hub      *events.Hub
	registry *prometheus.Registry
	logger   *zap.Logger

	operationDuration *prometheus.HistogramVec
	operationWait     *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	commandsTotal     *prometheus.CounterVec
	statusUpdates     *prometheus.CounterVec

	speed      prometheus.Gauge
	steps      prometheus.Gauge
	distance   prometheus.Gauge
	calories   prometheus.Gauge
	powered    prometheus.Gauge
	lastUpdate prometheus.Gauge
}

// NewRecorder registers the pad metrics on a private registry.
func NewRecorder(hub *events.Hub, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		hub:      hub,
		registry: prometheus.NewRegistry(),
		logger:   logger,

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Time spent executing device operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
		operationWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_wait_seconds",
				Help:      "Time operations waited for exclusive device access.",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total device operations by result.",
			},
			[]string{"operation", "result"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total error events by operation.",
			},
			[]string{"operation"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total successfully executed commands.",
			},
			[]string{"command"},
		),
		statusUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_updates_total",
				Help:      "Total status reads by kind (quick or full).",
			},
			[]string{"kind"},
		),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speed_kmh",
			Help:      "Current belt speed in km/h.",
		}),
		steps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps",
			Help:      "Step count of the current session.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_meters",
			Help:      "Distance of the current session in meters.",
		}),
		calories: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calories",
			Help:      "Calories of the current session.",
		}),
		powered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "powered_on",
			Help:      "Whether the pad reports power on (1) or off (0).",
		}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_status_timestamp_seconds",
			Help:      "Unix time of the last successful status read.",
		}),
	}

	r.registry.MustRegister(
		r.operationDuration,
		r.operationWait,
		r.operationsTotal,
		r.errorsTotal,
		r.commandsTotal,
		r.statusUpdates,
		r.speed,
		r.steps,
		r.distance,
		r.calories,
		r.powered,
		r.lastUpdate,
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Run records events until ctx is cancelled or the hub closes.
func (r *Recorder) Run(ctx context.Context) error {
	for ev := range r.hub.Stream(ctx) {
		r.Observe(ev)
	}
	return nil
}

// Observe records a single event.
func (r *Recorder) Observe(ev events.Event) {
	switch e := ev.(type) {
	case events.OperationTiming:
		result := resultSuccess
		if !e.Success {
			result = resultError
		}
		r.operationDuration.WithLabelValues(e.Operation, result).Observe(seconds(e.RunMs))
		r.operationWait.WithLabelValues(e.Operation).Observe(seconds(e.WaitMs))
		r.operationsTotal.WithLabelValues(e.Operation, result).Inc()

	case events.Error:
		r.errorsTotal.WithLabelValues(e.Operation).Inc()

	case events.CommandExecuted:
		r.commandsTotal.WithLabelValues(e.Result.Command).Inc()

	case events.StatusUpdated:
		kind := "full"
		if e.Quick {
			kind = "quick"
		}
		r.statusUpdates.WithLabelValues(kind).Inc()
		r.lastUpdate.Set(float64(e.Timestamp.UnixNano()) / float64(time.Second))

		st := e.Status
		if st.SpeedKmh != nil {
			r.speed.Set(*st.SpeedKmh)
		}
		if st.StepCount != nil {
			r.steps.Set(float64(*st.StepCount))
		}
		if st.DistanceM != nil {
			r.distance.Set(float64(*st.DistanceM))
		}
		if st.Calories != nil {
			r.calories.Set(float64(*st.Calories))
		}
		if st.IsOn != nil {
			if *st.IsOn {
				r.powered.Set(1)
			} else {
				r.powered.Set(0)
			}
		}

	default:
		r.logger.Debug("Ignoring event", zap.String("kind", string(ev.Kind())))
	}
}

func seconds(ms float64) float64 {
	return ms / 1000
}
