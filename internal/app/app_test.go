package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/config"
	"github.com/KevinKickass/OpenWalkingPad/internal/miio"
	"github.com/KevinKickass/OpenWalkingPad/internal/miio/miiotest"
	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"go.uber.org/zap/zaptest"
)

func testConfig(addr string) *config.Config {
	return &config.Config{
		WalkingPad: config.WalkingPadConfig{
			IP:              addr,
			Token:           miiotest.Token,
			Model:           config.DefaultModel,
			PollingInterval: time.Second,
			RequestTimeout:  300 * time.Millisecond,
		},
	}
}

func TestBuildServesStatus(t *testing.T) {
	srv := miiotest.NewServer(t, func(method string, params json.RawMessage) (any, *miio.DeviceError) {
		if method == "get_prop" {
			return []string{"mode:1", "sp:2.5", "step:100"}, nil
		}
		return []string{"ok"}, nil
	})

	c, err := Build(testConfig(srv.Addr()), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	caps := c.Service.Capabilities()
	if caps.ModelHint != config.DefaultModel || !caps.SupportsLock {
		t.Fatalf("capabilities = %+v", caps)
	}

	status, err := c.Service.GetStatus(context.Background(), true)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.SpeedKmh == nil || *status.SpeedKmh != 2.5 {
		t.Fatalf("status = %+v", status)
	}
}

func TestBuildRejectsBadToken(t *testing.T) {
	cfg := testConfig("127.0.0.1")
	cfg.WalkingPad.Token = "zz"

	_, err := Build(cfg, nil)
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	c, err := Build(testConfig("127.0.0.1"), nil)
	if err != nil {
		t.Fatal(err)
	}
	sub := c.Service.Subscribe()

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := sub.Next(ctx); err == nil {
		t.Fatal("subscription still open after Close")
	}
}
