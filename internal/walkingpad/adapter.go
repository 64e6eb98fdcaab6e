package walkingpad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenWalkingPad/internal/miio"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap"
)

// DefaultModel is the model identifier used when none is configured.
const DefaultModel = "ksmb.walkingpad.v1"

// Transport sends one miio RPC call. *miio.Client implements it.
type Transport interface {
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	Close() error
}

// properties not contained in the "all" payload
var extraProperties = []string{"power", "mode", "start_speed", "sensitivity"}

// Adapter drives a WalkingPad over miio. Its methods are synchronous and
// must be serialized by the caller.
type Adapter struct {
	transport Transport
	model     string
	caps      types.Capabilities
	logger    *zap.Logger
}

func NewAdapter(transport Transport, model string, caps types.Capabilities, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = DefaultModel
	}
	return &Adapter{
		transport: transport,
		model:     model,
		caps:      caps,
		logger:    logger,
	}
}

func (a *Adapter) Model() string {
	return a.model
}

func (a *Adapter) Close() error {
	return a.transport.Close()
}

func (a *Adapter) Capabilities() types.Capabilities {
	caps := a.caps
	caps.SupportedModels = append([]string(nil), a.caps.SupportedModels...)
	return caps
}

// Status reads the pad state. A full read adds the properties missing from
// the "all" payload; firmwares that reject them get the quick payload instead.
func (a *Adapter) Status(quick bool) (types.PadStatus, error) {
	data, err := a.readAll()
	if err != nil {
		return types.PadStatus{}, classify(err)
	}
	if quick {
		return mapStatus(data), nil
	}

	extra, err := a.readProperties(extraProperties)
	if err != nil {
		var devErr *miio.DeviceError
		if !errors.As(err, &devErr) && !errors.Is(err, errIncomplete) {
			return types.PadStatus{}, classify(err)
		}
		a.logger.Debug("Full status unsupported, using quick status", zap.Error(err))
		return mapStatus(data), nil
	}
	for k, v := range extra {
		data[k] = v
	}
	return mapStatus(data), nil
}

// Start runs the belt. If the pad refuses (usually because it is in standby)
// it is powered on and started again.
func (a *Adapter) Start() (types.CommandResult, error) {
	if _, err := a.send("set_state", []string{"run"}); err != nil {
		a.logger.Debug("Start refused, powering on first", zap.Error(err))
		if _, err := a.run(types.OpPowerOn, "set_power", []string{"on"}); err != nil {
			return types.CommandResult{}, err
		}
		if _, err := a.run(types.OpStart, "set_state", []string{"run"}); err != nil {
			return types.CommandResult{}, err
		}
	}
	return ok(types.OpStart), nil
}

func (a *Adapter) Stop() (types.CommandResult, error) {
	return a.run(types.OpStop, "set_state", []string{"stop"})
}

func (a *Adapter) PowerOn() (types.CommandResult, error) {
	return a.run(types.OpPowerOn, "set_power", []string{"on"})
}

func (a *Adapter) PowerOff() (types.CommandResult, error) {
	return a.run(types.OpPowerOff, "set_power", []string{"off"})
}

func (a *Adapter) Lock() (types.CommandResult, error) {
	return a.run(types.OpLock, "set_lock", []int{1})
}

func (a *Adapter) Unlock() (types.CommandResult, error) {
	return a.run(types.OpUnlock, "set_lock", []int{0})
}

func (a *Adapter) SetSpeed(speedKmh float64) (types.CommandResult, error) {
	if err := types.ValidateSpeed("speed_kmh", speedKmh); err != nil {
		return types.CommandResult{}, err
	}
	return a.run(types.OpSetSpeed, "set_speed", []float64{speedKmh})
}

func (a *Adapter) SetStartSpeed(speedKmh float64) (types.CommandResult, error) {
	if err := types.ValidateSpeed("start_speed_kmh", speedKmh); err != nil {
		return types.CommandResult{}, err
	}
	return a.run(types.OpSetStartSpeed, "set_start_speed", []float64{speedKmh})
}

func (a *Adapter) SetMode(mode types.PadMode) (types.CommandResult, error) {
	code, ok := modeCodes[mode]
	if !ok {
		return types.CommandResult{}, types.NewValidationError(fmt.Sprintf("invalid mode %q", mode))
	}
	return a.run(types.OpSetMode, "set_mode", []int{code})
}

func (a *Adapter) SetSensitivity(sensitivity types.PadSensitivity) (types.CommandResult, error) {
	code, ok := sensitivityCodes[sensitivity]
	if !ok {
		return types.CommandResult{}, types.NewValidationError(fmt.Sprintf("invalid sensitivity %q", sensitivity))
	}
	return a.run(types.OpSetSensitivity, "set_sensitivity", []int{code})
}

func (a *Adapter) run(command, method string, params any) (types.CommandResult, error) {
	if _, err := a.send(method, params); err != nil {
		return types.CommandResult{}, classify(err)
	}
	return ok(command), nil
}

func (a *Adapter) send(method string, params any) (json.RawMessage, error) {
	return a.transport.Send(context.Background(), method, params)
}

var errIncomplete = errors.New("incomplete property reply")

// readAll returns the "key:value" pairs of get_prop ["all"].
func (a *Adapter) readAll() (map[string]any, error) {
	raw, err := a.send("get_prop", []string{"all"})
	if err != nil {
		return nil, err
	}
	var pairs []string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("unexpected status payload %s: %w", raw, err)
	}

	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, found := strings.Cut(p, ":")
		if !found {
			continue
		}
		data[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return data, nil
}

func (a *Adapter) readProperties(names []string) (map[string]any, error) {
	raw, err := a.send("get_prop", names)
	if err != nil {
		return nil, err
	}
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("unexpected property payload %s: %w", raw, err)
	}
	if len(values) != len(names) {
		return nil, fmt.Errorf("%w: asked for %d, got %d", errIncomplete, len(names), len(values))
	}

	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = values[i]
	}
	return out, nil
}

func ok(command string) types.CommandResult {
	return types.CommandResult{Command: command, Success: true, Message: "ok"}
}

// classify maps device rejections to validation errors and everything
// else to communication errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrCommandValidation) || errors.Is(err, types.ErrDeviceCommunication) {
		return err
	}
	var devErr *miio.DeviceError
	if errors.As(err, &devErr) {
		return types.WrapValidation(err)
	}
	return types.WrapCommunication(err)
}
