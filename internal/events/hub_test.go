package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func errorEvent(op string) Error {
	return Error{Timestamp: Now(), Operation: op, Message: op}
}

func nextWithin(t *testing.T, sub *Subscription) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return ev
}

func TestHubFanOutPreservesOrderPerSubscriber(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	defer hub.Close()

	subs := []*Subscription{hub.Subscribe(), hub.Subscribe(), hub.Subscribe()}

	hub.Publish(errorEvent("a"))
	hub.Publish(errorEvent("b"))
	hub.Publish(errorEvent("c"))

	for i, sub := range subs {
		for _, want := range []string{"a", "b", "c"} {
			ev := nextWithin(t, sub)
			if got := ev.(Error).Operation; got != want {
				t.Fatalf("subscriber %d: got %q, want %q", i, got, want)
			}
		}
		if _, ok := sub.TryNext(); ok {
			t.Fatalf("subscriber %d received a duplicate", i)
		}
	}
}

func TestHubLateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := NewHub(nil)
	early := hub.Subscribe()
	hub.Publish(errorEvent("before"))

	late := hub.Subscribe()
	hub.Publish(errorEvent("after"))

	if got := nextWithin(t, early).(Error).Operation; got != "before" {
		t.Fatalf("early got %q", got)
	}
	if got := nextWithin(t, late).(Error).Operation; got != "after" {
		t.Fatalf("late got %q, want only events after subscribing", got)
	}
	if late.Pending() != 0 {
		t.Fatalf("late pending = %d", late.Pending())
	}
}

func TestHubPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	slow := hub.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			hub.Publish(errorEvent("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an undrained subscriber")
	}
	if slow.Pending() != 10000 {
		t.Fatalf("pending = %d, want 10000", slow.Pending())
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("count = %d", hub.SubscriberCount())
	}

	sub.Close()
	sub.Close()

	if hub.SubscriberCount() != 0 {
		t.Fatalf("count after close = %d", hub.SubscriberCount())
	}
	hub.Publish(errorEvent("ignored"))
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("Next after close = %v", err)
	}
}

func TestNextHonoursContext(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next = %v, want deadline exceeded", err)
	}
}

func TestHubCloseWakesWaitingSubscribers(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe()

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSubscriptionClosed) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after hub close")
	}

	late := hub.Subscribe()
	if _, err := late.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
}

func TestStreamReleasesSubscriptionOnBreak(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	started := make(chan struct{})
	got := make(chan string, 1)
	go func() {
		for ev := range hub.Stream(ctx) {
			got <- ev.(Error).Operation
			break
		}
		close(started)
	}()

	waitFor(t, func() bool { return hub.SubscriberCount() == 1 })
	hub.Publish(errorEvent("one"))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("stream did not finish")
	}
	if op := <-got; op != "one" {
		t.Fatalf("got %q", op)
	}
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked, count = %d", hub.SubscriberCount())
	}
}

func TestStreamReleasesSubscriptionOnCancel(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range hub.Stream(ctx) {
		}
	}()

	waitFor(t, func() bool { return hub.SubscriberCount() == 1 })
	cancel()
	wg.Wait()

	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscription leaked, count = %d", hub.SubscriberCount())
	}
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	hub := NewHub(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				hub.Publish(errorEvent("p"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := hub.Subscribe()
				s.TryNext()
				s.Close()
			}
		}()
	}
	wg.Wait()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("count = %d", hub.SubscriberCount())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
