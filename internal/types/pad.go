package types

import (
	"fmt"
	"strings"
)

// Speed limits accepted by the pad, km/h.
const (
	MinSpeedKmh = 0.0
	MaxSpeedKmh = 6.0
)

type PadMode string

const (
	ModeAuto   PadMode = "auto"
	ModeManual PadMode = "manual"
	ModeOff    PadMode = "off"
)

// PadModes lists all modes in the order the dashboard cycles through them.
var PadModes = []PadMode{ModeAuto, ModeManual, ModeOff}

func ParsePadMode(s string) (PadMode, error) {
	m := PadMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeAuto, ModeManual, ModeOff:
		return m, nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid mode %q (expected auto, manual or off)", s))
}

type PadSensitivity string

const (
	SensitivityHigh   PadSensitivity = "high"
	SensitivityMedium PadSensitivity = "medium"
	SensitivityLow    PadSensitivity = "low"
)

var PadSensitivities = []PadSensitivity{SensitivityHigh, SensitivityMedium, SensitivityLow}

func ParsePadSensitivity(s string) (PadSensitivity, error) {
	v := PadSensitivity(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case SensitivityHigh, SensitivityMedium, SensitivityLow:
		return v, nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid sensitivity %q (expected high, medium or low)", s))
}

// PadStatus is a snapshot of the pad at one point in time.
// Every field is optional, firmware versions differ in what they report.
type PadStatus struct {
	IsOn          *bool           `json:"is_on" yaml:"is_on"`
	Power         *string         `json:"power" yaml:"power"`
	Mode          *PadMode        `json:"mode" yaml:"mode"`
	SpeedKmh      *float64        `json:"speed_kmh" yaml:"speed_kmh"`
	StartSpeedKmh *float64        `json:"start_speed_kmh" yaml:"start_speed_kmh"`
	Sensitivity   *PadSensitivity `json:"sensitivity" yaml:"sensitivity"`
	StepCount     *int            `json:"step_count" yaml:"step_count"`
	DistanceM     *int            `json:"distance_m" yaml:"distance_m"`
	Calories      *int            `json:"calories" yaml:"calories"`
	// WalkingTime in seconds
	WalkingTime *int `json:"walking_time" yaml:"walking_time"`
}

// Fields returns the status as ordered label/value pairs, unset values rendered as "-".
func (s PadStatus) Fields() [][2]string {
	return [][2]string{
		{"is_on", fmtPtr(s.IsOn)},
		{"power", fmtPtr(s.Power)},
		{"mode", fmtPtr(s.Mode)},
		{"speed_kmh", fmtFloat(s.SpeedKmh)},
		{"start_speed_kmh", fmtFloat(s.StartSpeedKmh)},
		{"sensitivity", fmtPtr(s.Sensitivity)},
		{"step_count", fmtPtr(s.StepCount)},
		{"distance_m", fmtPtr(s.DistanceM)},
		{"calories", fmtPtr(s.Calories)},
		{"walking_time", fmtDuration(s.WalkingTime)},
	}
}

func fmtPtr[T any](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func fmtDuration(v *int) string {
	if v == nil {
		return "-"
	}
	sec := *v
	return fmt.Sprintf("%d:%02d:%02d", sec/3600, (sec/60)%60, sec%60)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

type CommandResult struct {
	Command string `json:"command" yaml:"command"`
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
}

// Capabilities describes what the connected model supports. Immutable once built.
type Capabilities struct {
	SupportedModels     []string `json:"supported_models" yaml:"supported_models"`
	ModelHint           string   `json:"model_hint" yaml:"model_hint"`
	SupportsPower       bool     `json:"supports_power" yaml:"supports_power"`
	SupportsLock        bool     `json:"supports_lock" yaml:"supports_lock"`
	SupportsMode        bool     `json:"supports_mode" yaml:"supports_mode"`
	SupportsSensitivity bool     `json:"supports_sensitivity" yaml:"supports_sensitivity"`
}

// Operation names used for timing and error attribution
const (
	OpGetStatus      = "get_status"
	OpStart          = "start"
	OpStop           = "stop"
	OpPowerOn        = "power_on"
	OpPowerOff       = "power_off"
	OpLock           = "lock"
	OpUnlock         = "unlock"
	OpSetSpeed       = "set_speed"
	OpSetStartSpeed  = "set_start_speed"
	OpSetMode        = "set_mode"
	OpSetSensitivity = "set_sensitivity"
	OpPoll           = "poll"
)

// ValidateSpeed checks a speed argument against the pad limits.
func ValidateSpeed(field string, speedKmh float64) error {
	if speedKmh != speedKmh || speedKmh < MinSpeedKmh || speedKmh > MaxSpeedKmh {
		return NewValidationError(fmt.Sprintf("%s must be between %g and %g", field, MinSpeedKmh, MaxSpeedKmh))
	}
	return nil
}
