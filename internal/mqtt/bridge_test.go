package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap/zaptest"
)

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []published
	filter   string
	handler  MessageHandler
}

func (f *fakeBroker) Publish(_ context.Context, topic string, qos byte, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic, qos, retain, payload})
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, filter string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	f.handler = handler
	return nil
}

func (f *fakeBroker) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	reqs []pad.CommandRequest
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req pad.CommandRequest) (types.CommandResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return types.CommandResult{}, d.err
	}
	return types.CommandResult{Command: string(req.Command), Success: true, Message: "ok"}, nil
}

func TestBridgeForwardsEvents(t *testing.T) {
	hub := events.NewHub(nil)
	broker := &fakeBroker{}
	b := NewBridge(hub, broker, "/home/pad/", 1, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
	waitFor(t, func() bool { return hub.SubscriberCount() == 1 })

	hub.Publish(events.StatusUpdated{Timestamp: events.Now(), Status: types.PadStatus{SpeedKmh: types.Ptr(2.0)}})
	hub.Publish(events.OperationTiming{Timestamp: events.Now(), Operation: "get_status", Success: true})

	waitFor(t, func() bool { return len(broker.snapshot()) == 2 })
	cancel()
	<-done

	msgs := broker.snapshot()
	if msgs[0].topic != "home/pad/status_updated" || !msgs[0].retain || msgs[0].qos != 1 {
		t.Fatalf("status message = %+v", msgs[0])
	}
	if msgs[1].topic != "home/pad/operation_timing" || msgs[1].retain {
		t.Fatalf("timing message = %+v", msgs[1])
	}

	var decoded events.StatusUpdated
	if err := json.Unmarshal(msgs[0].payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Status.SpeedKmh == nil || *decoded.Status.SpeedKmh != 2.0 {
		t.Fatalf("payload = %s", msgs[0].payload)
	}
}

func TestBridgeDefaultRoot(t *testing.T) {
	b := NewBridge(events.NewHub(nil), &fakeBroker{}, "", 0, nil)
	if got := b.Topic(events.KindError); got != "walkingpad/error" {
		t.Fatalf("topic = %q", got)
	}
	if got := b.CommandFilter(); got != "walkingpad/command/+" {
		t.Fatalf("filter = %q", got)
	}
	if got := b.AvailabilityTopic(); got != "walkingpad/availability" {
		t.Fatalf("availability = %q", got)
	}
}

func TestBridgeServesCommands(t *testing.T) {
	broker := &fakeBroker{}
	d := &fakeDispatcher{}
	b := NewBridge(events.NewHub(nil), broker, "walkingpad", 0, zaptest.NewLogger(t))

	if err := b.ServeCommands(context.Background(), broker, d); err != nil {
		t.Fatal(err)
	}
	if broker.filter != "walkingpad/command/+" {
		t.Fatalf("filter = %q", broker.filter)
	}

	ctx := context.Background()
	broker.handler(ctx, "walkingpad/command/set-speed", []byte("3.5"))
	broker.handler(ctx, "walkingpad/command/set_mode", []byte(`{"value":"manual"}`))
	broker.handler(ctx, "walkingpad/command/start", nil)
	broker.handler(ctx, "walkingpad/command/self_destruct", []byte("now"))
	broker.handler(ctx, "walkingpad/command/stop", []byte(`{broken`))

	want := []pad.CommandRequest{
		{Command: pad.CommandSetSpeed, Value: "3.5"},
		{Command: pad.CommandSetMode, Value: "manual"},
		{Command: pad.CommandStart, Value: ""},
	}
	if len(d.reqs) != len(want) {
		t.Fatalf("requests = %+v", d.reqs)
	}
	for i := range want {
		if d.reqs[i] != want[i] {
			t.Fatalf("request %d = %+v, want %+v", i, d.reqs[i], want[i])
		}
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b", "a/b", true},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/#", "a/b/c", true},
		{"a/+/c", "a/x/c", true},
		{"a/b", "a/c", false},
		{"a/+/c", "a/x", false},
	}
	for _, tt := range tests {
		if got := topicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("topicMatches(%q, %q) = %v", tt.filter, tt.topic, got)
		}
	}
}

func TestClientConfigValidate(t *testing.T) {
	if _, err := NewClient(ClientConfig{BrokerURL: "mqtt://localhost:1883", ClientID: "pad"}, nil); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, cfg := range []ClientConfig{
		{ClientID: "pad"},
		{BrokerURL: "localhost", ClientID: "pad"},
		{BrokerURL: "mqtt://localhost:1883"},
	} {
		if _, err := NewClient(cfg, nil); err == nil {
			t.Errorf("config %+v accepted", cfg)
		}
	}

	c, _ := NewClient(ClientConfig{BrokerURL: "mqtt://localhost:1883", ClientID: "pad"}, nil)
	if err := c.Publish(context.Background(), "t", 0, false, nil); err == nil {
		t.Fatal("publish before Start must fail")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
