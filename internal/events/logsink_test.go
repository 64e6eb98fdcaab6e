package events

import (
	"context"
	"testing"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkWritesEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	hub := NewHub(nil)
	sink := NewLogSink(hub, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sink.Run(ctx)
		close(done)
	}()
	waitFor(t, func() bool { return hub.SubscriberCount() == 1 })

	hub.Publish(CommandExecuted{Timestamp: Now(), Result: types.CommandResult{Command: "start", Success: true, Message: "ok"}})
	hub.Publish(Error{Timestamp: Now(), Operation: "poll", Message: "timeout"})

	waitFor(t, func() bool { return logs.Len() == 2 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sink did not stop")
	}

	entries := logs.AllUntimed()
	if entries[0].Message != "Command executed" || entries[0].ContextMap()["command"] != "start" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["operation"] != "poll" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}
