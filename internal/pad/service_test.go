package pad_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/KevinKickass/OpenWalkingPad/internal/pad/padtest"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap/zaptest"
)

func newService(t *testing.T) (*pad.Service, *padtest.Device, *events.Subscription) {
	t.Helper()
	dev := padtest.NewDevice()
	logger := zaptest.NewLogger(t)
	svc := pad.NewService(dev, events.NewHub(logger), logger)
	sub := svc.Subscribe()
	t.Cleanup(func() {
		svc.StopPolling()
		sub.Close()
	})
	return svc, dev, sub
}

func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		ev, ok := sub.TryNext()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestGetStatusUpdatesLatestAndPublishes(t *testing.T) {
	svc, dev, sub := newService(t)

	want := types.PadStatus{
		IsOn:      types.Ptr(true),
		Power:     types.Ptr("on"),
		Mode:      types.Ptr(types.ModeManual),
		SpeedKmh:  types.Ptr(3.0),
		StepCount: types.Ptr(10),
	}
	dev.SetStatus(want)

	if _, ok := svc.LatestStatus(); ok {
		t.Fatal("latest status must start unset")
	}

	got, err := svc.GetStatus(context.Background(), false)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("status = %+v, want %+v", got, want)
	}
	if got.DistanceM != nil {
		t.Fatal("distance should stay unset")
	}

	latest, ok := svc.LatestStatus()
	if !ok || !reflect.DeepEqual(latest, got) {
		t.Fatalf("latest = %+v (%v)", latest, ok)
	}

	evs := drain(sub)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(evs), evs)
	}
	if timing, ok := evs[0].(events.OperationTiming); !ok || !timing.Success || timing.Operation != types.OpGetStatus {
		t.Fatalf("first event %+v", evs[0])
	}
	upd, ok := evs[1].(events.StatusUpdated)
	if !ok || upd.Quick {
		t.Fatalf("second event %+v", evs[1])
	}
	if !reflect.DeepEqual(upd.Status, want) {
		t.Fatalf("published status %+v", upd.Status)
	}
}

func TestQuickStatusIsFlagged(t *testing.T) {
	svc, dev, sub := newService(t)
	dev.SetStatus(types.PadStatus{SpeedKmh: types.Ptr(2.0)})
	dev.SetQuickStatus(types.PadStatus{SpeedKmh: types.Ptr(1.5)})

	st, err := svc.GetStatus(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if *st.SpeedKmh != 1.5 {
		t.Fatalf("speed = %v, want quick value", *st.SpeedKmh)
	}
	evs := drain(sub)
	if upd := evs[len(evs)-1].(events.StatusUpdated); !upd.Quick {
		t.Fatal("StatusUpdated.Quick = false")
	}
}

func TestFailedStatusKeepsLatest(t *testing.T) {
	svc, dev, sub := newService(t)
	dev.SetStatus(types.PadStatus{StepCount: types.Ptr(5)})
	if _, err := svc.GetStatus(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	drain(sub)

	dev.Fail(types.OpGetStatus, types.NewCommunicationError("timeout"))
	if _, err := svc.GetStatus(context.Background(), false); !errors.Is(err, types.ErrDeviceCommunication) {
		t.Fatalf("err = %v", err)
	}

	latest, ok := svc.LatestStatus()
	if !ok || *latest.StepCount != 5 {
		t.Fatal("latest status was cleared by a failed read")
	}

	evs := drain(sub)
	if len(evs) != 2 {
		t.Fatalf("events = %+v", evs)
	}
	if _, ok := evs[0].(events.OperationTiming); !ok {
		t.Fatalf("first event %T", evs[0])
	}
	if e, ok := evs[1].(events.Error); !ok || e.Operation != types.OpGetStatus {
		t.Fatalf("second event %+v", evs[1])
	}
}

func TestCommandsPublishTimingThenCommandExecuted(t *testing.T) {
	svc, _, sub := newService(t)
	ctx := context.Background()

	tests := []struct {
		op  string
		run func() (types.CommandResult, error)
	}{
		{types.OpStart, func() (types.CommandResult, error) { return svc.Start(ctx) }},
		{types.OpStop, func() (types.CommandResult, error) { return svc.Stop(ctx) }},
		{types.OpPowerOn, func() (types.CommandResult, error) { return svc.PowerOn(ctx) }},
		{types.OpPowerOff, func() (types.CommandResult, error) { return svc.PowerOff(ctx) }},
		{types.OpLock, func() (types.CommandResult, error) { return svc.Lock(ctx) }},
		{types.OpUnlock, func() (types.CommandResult, error) { return svc.Unlock(ctx) }},
		{types.OpSetSpeed, func() (types.CommandResult, error) { return svc.SetSpeed(ctx, 2.5) }},
		{types.OpSetStartSpeed, func() (types.CommandResult, error) { return svc.SetStartSpeed(ctx, 1.0) }},
		{types.OpSetMode, func() (types.CommandResult, error) { return svc.SetMode(ctx, types.ModeAuto) }},
		{types.OpSetSensitivity, func() (types.CommandResult, error) { return svc.SetSensitivity(ctx, types.SensitivityLow) }},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			res, err := tt.run()
			if err != nil {
				t.Fatalf("%s: %v", tt.op, err)
			}
			if res.Command != tt.op || !res.Success {
				t.Fatalf("result %+v", res)
			}

			evs := drain(sub)
			if len(evs) != 2 {
				t.Fatalf("got %d events", len(evs))
			}
			timing, ok := evs[0].(events.OperationTiming)
			if !ok || timing.Operation != tt.op || !timing.Success {
				t.Fatalf("timing %+v", evs[0])
			}
			exec, ok := evs[1].(events.CommandExecuted)
			if !ok || exec.Result != res {
				t.Fatalf("command event %+v", evs[1])
			}
		})
	}
}

func TestFailedCommandPublishesNoCommandExecuted(t *testing.T) {
	svc, dev, sub := newService(t)
	cause := types.NewValidationError("device rejected lock")
	dev.Fail(types.OpLock, cause)

	_, err := svc.Lock(context.Background())
	if !errors.Is(err, cause) || !errors.Is(err, types.ErrCommandValidation) {
		t.Fatalf("err = %v", err)
	}

	evs := drain(sub)
	if len(evs) != 2 {
		t.Fatalf("events = %+v", evs)
	}
	if timing := evs[0].(events.OperationTiming); timing.Success || timing.Operation != types.OpLock {
		t.Fatalf("timing %+v", timing)
	}
	if e := evs[1].(events.Error); e.Operation != types.OpLock || e.Message != "device rejected lock" {
		t.Fatalf("error %+v", e)
	}
}

func TestSpeedValidationFastPath(t *testing.T) {
	svc, dev, sub := newService(t)
	ctx := context.Background()

	for _, speed := range []float64{-1, 6.1} {
		if _, err := svc.SetSpeed(ctx, speed); !errors.Is(err, types.ErrCommandValidation) {
			t.Fatalf("SetSpeed(%v) err = %v", speed, err)
		}
		if _, err := svc.SetStartSpeed(ctx, speed); !errors.Is(err, types.ErrCommandValidation) {
			t.Fatalf("SetStartSpeed(%v) err = %v", speed, err)
		}
	}

	if evs := drain(sub); len(evs) != 0 {
		t.Fatalf("validation failures produced events: %+v", evs)
	}
	if calls := dev.Calls(); len(calls) != 0 {
		t.Fatalf("device was called: %v", calls)
	}
}

func TestCapabilitiesDoNotTouchDevice(t *testing.T) {
	svc, dev, sub := newService(t)
	caps := svc.Capabilities()
	if caps.ModelHint != "ksmb.walkingpad.v1" || !caps.SupportsLock {
		t.Fatalf("caps = %+v", caps)
	}
	if len(dev.Calls()) != 0 || len(drain(sub)) != 0 {
		t.Fatal("capabilities produced device calls or events")
	}
}

func TestConcurrentOperationsAreSerialized(t *testing.T) {
	svc, dev, sub := newService(t)
	dev.SetDelay(2 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _, _ = svc.GetStatus(ctx, false) }()
		go func() { defer wg.Done(); _, _ = svc.Start(ctx) }()
		go func() { defer wg.Done(); _, _ = svc.SetSpeed(ctx, 1.5) }()
	}
	wg.Wait()

	if dev.MaxDepth() != 1 {
		t.Fatalf("max concurrent device calls = %d, want 1", dev.MaxDepth())
	}

	timings := 0
	for _, ev := range drain(sub) {
		if _, ok := ev.(events.OperationTiming); ok {
			timings++
		}
	}
	if timings != 30 {
		t.Fatalf("timing events = %d, want 30", timings)
	}
}

func TestEventStreamDeliversToMultipleConsumers(t *testing.T) {
	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const consumers = 3
	var ready, wg sync.WaitGroup
	results := make([][]events.Kind, consumers)
	for i := 0; i < consumers; i++ {
		ready.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := svc.Subscribe()
			defer sub.Close()
			ready.Done()
			for len(results[i]) < 2 {
				ev, err := sub.Next(ctx)
				if err != nil {
					return
				}
				results[i] = append(results[i], ev.Kind())
			}
		}(i)
	}
	ready.Wait()

	if _, err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	for i, kinds := range results {
		want := []events.Kind{events.KindOperationTiming, events.KindCommandExecuted}
		if !reflect.DeepEqual(kinds, want) {
			t.Fatalf("consumer %d got %v", i, kinds)
		}
	}
}

func TestDispatch(t *testing.T) {
	svc, dev, _ := newService(t)
	ctx := context.Background()

	cmd, err := pad.ParseCommand("set-speed")
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Dispatch(ctx, pad.CommandRequest{Command: cmd, Value: "2.5"})
	if err != nil || res.Command != types.OpSetSpeed {
		t.Fatalf("Dispatch = %+v, %v", res, err)
	}

	if _, err := svc.Dispatch(ctx, pad.CommandRequest{Command: pad.CommandSetMode, Value: "sideways"}); !errors.Is(err, types.ErrCommandValidation) {
		t.Fatalf("bad mode err = %v", err)
	}
	if _, err := svc.Dispatch(ctx, pad.CommandRequest{Command: pad.CommandSetSpeed}); !errors.Is(err, types.ErrCommandValidation) {
		t.Fatalf("missing value err = %v", err)
	}
	if _, err := svc.Dispatch(ctx, pad.CommandRequest{Command: pad.CommandSetSpeed, Value: "fast"}); !errors.Is(err, types.ErrCommandValidation) {
		t.Fatalf("bad speed err = %v", err)
	}
	if _, err := pad.ParseCommand("reboot"); !errors.Is(err, types.ErrCommandValidation) {
		t.Fatalf("unknown command err = %v", err)
	}
	if dev.CallCount(types.OpSetSpeed) != 1 {
		t.Fatalf("set_speed calls = %d", dev.CallCount(types.OpSetSpeed))
	}
}
