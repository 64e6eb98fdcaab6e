// Package padtest provides a deterministic in-memory pad for tests.
package padtest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
)

// Device is a fake pad. It records every call and the maximum number of
// calls that were ever executing at once.
type Device struct {
	mu       sync.Mutex
	status   types.PadStatus
	quick    types.PadStatus
	failures map[string]error
	calls    []string
	delay    time.Duration
	caps     types.Capabilities

	depth    atomic.Int32
	maxDepth atomic.Int32
	block    chan struct{}
}

func NewDevice() *Device {
	return &Device{
		failures: make(map[string]error),
		caps: types.Capabilities{
			SupportedModels:     []string{"ksmb.walkingpad.v1"},
			ModelHint:           "ksmb.walkingpad.v1",
			SupportsPower:       true,
			SupportsLock:        true,
			SupportsMode:        true,
			SupportsSensitivity: true,
		},
	}
}

// SetStatus sets what full (and quick, unless SetQuickStatus is used) reads return.
func (d *Device) SetStatus(st types.PadStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = st
	d.quick = st
}

func (d *Device) SetQuickStatus(st types.PadStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quick = st
}

// Fail makes the named operation return err until cleared with Fail(op, nil).
func (d *Device) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// SetDelay makes every call sleep for delay.
func (d *Device) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Block makes calls wait until Unblock is called.
func (d *Device) Block() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = make(chan struct{})
}

func (d *Device) Unblock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.block != nil {
		close(d.block)
		d.block = nil
	}
}

func (d *Device) SetCapabilities(c types.Capabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = c
}

// Calls returns the operation names seen so far.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallCount counts calls of one operation.
func (d *Device) CallCount(op string) int {
	n := 0
	for _, c := range d.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// Depth is the number of calls executing right now.
func (d *Device) Depth() int {
	return int(d.depth.Load())
}

// MaxDepth is the highest concurrency ever observed.
func (d *Device) MaxDepth() int {
	return int(d.maxDepth.Load())
}

func (d *Device) enter(op string) error {
	cur := d.depth.Add(1)
	for {
		m := d.maxDepth.Load()
		if cur <= m || d.maxDepth.CompareAndSwap(m, cur) {
			break
		}
	}

	d.mu.Lock()
	d.calls = append(d.calls, op)
	delay := d.delay
	block := d.block
	err := d.failures[op]
	d.mu.Unlock()

	if block != nil {
		<-block
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (d *Device) leave() {
	d.depth.Add(-1)
}

func (d *Device) command(op string) (types.CommandResult, error) {
	defer d.leave()
	if err := d.enter(op); err != nil {
		return types.CommandResult{}, err
	}
	return types.CommandResult{Command: op, Success: true, Message: "ok"}, nil
}

func (d *Device) Status(quick bool) (types.PadStatus, error) {
	defer d.leave()
	if err := d.enter(types.OpGetStatus); err != nil {
		return types.PadStatus{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if quick {
		return d.quick, nil
	}
	return d.status, nil
}

func (d *Device) Start() (types.CommandResult, error)    { return d.command(types.OpStart) }
func (d *Device) Stop() (types.CommandResult, error)     { return d.command(types.OpStop) }
func (d *Device) PowerOn() (types.CommandResult, error)  { return d.command(types.OpPowerOn) }
func (d *Device) PowerOff() (types.CommandResult, error) { return d.command(types.OpPowerOff) }
func (d *Device) Lock() (types.CommandResult, error)     { return d.command(types.OpLock) }
func (d *Device) Unlock() (types.CommandResult, error)   { return d.command(types.OpUnlock) }

func (d *Device) SetSpeed(speedKmh float64) (types.CommandResult, error) {
	res, err := d.command(types.OpSetSpeed)
	if err == nil {
		d.mu.Lock()
		d.status.SpeedKmh = types.Ptr(speedKmh)
		d.mu.Unlock()
	}
	return res, err
}

func (d *Device) SetStartSpeed(speedKmh float64) (types.CommandResult, error) {
	res, err := d.command(types.OpSetStartSpeed)
	if err == nil {
		d.mu.Lock()
		d.status.StartSpeedKmh = types.Ptr(speedKmh)
		d.mu.Unlock()
	}
	return res, err
}

func (d *Device) SetMode(mode types.PadMode) (types.CommandResult, error) {
	res, err := d.command(types.OpSetMode)
	if err == nil {
		d.mu.Lock()
		d.status.Mode = types.Ptr(mode)
		d.mu.Unlock()
	}
	return res, err
}

func (d *Device) SetSensitivity(s types.PadSensitivity) (types.CommandResult, error) {
	res, err := d.command(types.OpSetSensitivity)
	if err == nil {
		d.mu.Lock()
		d.status.Sensitivity = types.Ptr(s)
		d.mu.Unlock()
	}
	return res, err
}

func (d *Device) Capabilities() types.Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}
