package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
)

const testToken = "00112233445566778899aabbccddeeff"

// clearEnv blanks every bound variable; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range bindings {
		t.Setenv(b.env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALKINGPAD_IP", "192.168.1.50")
	t.Setenv("WALKINGPAD_TOKEN", testToken)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wp := cfg.WalkingPad
	if wp.IP != "192.168.1.50" || wp.Token != testToken {
		t.Fatalf("walkingpad = %+v", wp)
	}
	if wp.Model != DefaultModel {
		t.Fatalf("model = %q", wp.Model)
	}
	if wp.PollingInterval != time.Second || wp.RequestTimeout != 5*time.Second {
		t.Fatalf("durations = %v / %v", wp.PollingInterval, wp.RequestTimeout)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.MQTT.Enabled() || cfg.MQTT.TopicRoot != "walkingpad" {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

func TestLoadMissingVariables(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	want := "Missing required environment variables: WALKINGPAD_IP, WALKINGPAD_TOKEN"
	if err.Error() != want {
		t.Fatalf("error = %q", err.Error())
	}

	t.Setenv("WALKINGPAD_IP", "10.0.0.2")
	_, err = Load("")
	if err == nil || err.Error() != "Missing required environment variables: WALKINGPAD_TOKEN" {
		t.Fatalf("error = %v", err)
	}
}

func TestLoadNumericValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{"polling not a number", "WALKINGPAD_POLLING_INTERVAL", "fast", "WALKINGPAD_POLLING_INTERVAL must be a number"},
		{"polling zero", "WALKINGPAD_POLLING_INTERVAL", "0", "WALKINGPAD_POLLING_INTERVAL must be > 0"},
		{"polling negative", "WALKINGPAD_POLLING_INTERVAL", "-1.5", "WALKINGPAD_POLLING_INTERVAL must be > 0"},
		{"timeout not a number", "WALKINGPAD_REQUEST_TIMEOUT", "abc", "WALKINGPAD_REQUEST_TIMEOUT must be a number"},
		{"timeout zero", "WALKINGPAD_REQUEST_TIMEOUT", "0.0", "WALKINGPAD_REQUEST_TIMEOUT must be > 0"},
		{"bad token", "WALKINGPAD_TOKEN", "not-a-token", "WALKINGPAD_TOKEN must be 32 hex characters"},
		{"bad port", "WALKINGPAD_HTTP_PORT", "70000", "WALKINGPAD_HTTP_PORT must be between 1 and 65535"},
		{"bad qos", "WALKINGPAD_MQTT_QOS", "3", "WALKINGPAD_MQTT_QOS must be 0, 1 or 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("WALKINGPAD_IP", "10.0.0.2")
			t.Setenv("WALKINGPAD_TOKEN", testToken)
			t.Setenv(tt.env, tt.value)

			_, err := Load("")
			if !errors.Is(err, types.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if err.Error() != tt.wantErr {
				t.Fatalf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadDurations(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALKINGPAD_IP", "10.0.0.2")
	t.Setenv("WALKINGPAD_TOKEN", testToken)
	t.Setenv("WALKINGPAD_POLLING_INTERVAL", "0.25")
	t.Setenv("WALKINGPAD_REQUEST_TIMEOUT", "1500ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WalkingPad.PollingInterval != 250*time.Millisecond {
		t.Fatalf("polling = %v", cfg.WalkingPad.PollingInterval)
	}
	if cfg.WalkingPad.RequestTimeout != 1500*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.WalkingPad.RequestTimeout)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "walkingpad.env")
	content := "WALKINGPAD_IP=10.1.1.1\n" +
		"WALKINGPAD_TOKEN=" + testToken + "\n" +
		"WALKINGPAD_MODEL=ksmb.walkingpad.v2\n" +
		"WALKINGPAD_PROFILE_PATHS=/etc/walkingpad, /opt/profiles\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	// Real environment wins over the file
	t.Setenv("WALKINGPAD_IP", "10.2.2.2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WalkingPad.IP != "10.2.2.2" {
		t.Fatalf("ip = %q", cfg.WalkingPad.IP)
	}
	if cfg.WalkingPad.Token != testToken || cfg.WalkingPad.Model != "ksmb.walkingpad.v2" {
		t.Fatalf("walkingpad = %+v", cfg.WalkingPad)
	}
	if want := []string{"/etc/walkingpad", "/opt/profiles"}; !reflect.DeepEqual(cfg.Devices.SearchPaths, want) {
		t.Fatalf("search paths = %v", cfg.Devices.SearchPaths)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("WALKINGPAD_IP", "10.0.0.2")
	t.Setenv("WALKINGPAD_TOKEN", testToken)

	t.Chdir(t.TempDir())
	if _, err := Load(DefaultEnvFile); err != nil {
		t.Fatalf("default env file must be optional: %v", err)
	}

	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("explicit env file must exist, got %v", err)
	}
}
