package walkingpad

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
)

var modeCodes = map[types.PadMode]int{
	types.ModeAuto:   0,
	types.ModeManual: 1,
	types.ModeOff:    2,
}

var sensitivityCodes = map[types.PadSensitivity]int{
	types.SensitivityHigh:   1,
	types.SensitivityMedium: 2,
	types.SensitivityLow:    3,
}

// mapStatus converts raw device properties. Missing or unparsable values stay unset.
func mapStatus(data map[string]any) types.PadStatus {
	var st types.PadStatus

	if v, ok := data["power"]; ok {
		power := fmt.Sprint(v)
		st.Power = &power
		st.IsOn = types.Ptr(power == "on")
	}
	if code, ok := intValue(data, "mode"); ok {
		for mode, c := range modeCodes {
			if c == code {
				st.Mode = types.Ptr(mode)
			}
		}
	}
	if code, ok := intValue(data, "sensitivity"); ok {
		for sens, c := range sensitivityCodes {
			if c == code {
				st.Sensitivity = types.Ptr(sens)
			}
		}
	}
	if v, ok := floatValue(data, "sp"); ok {
		st.SpeedKmh = &v
	}
	if v, ok := floatValue(data, "start_speed"); ok {
		st.StartSpeedKmh = &v
	}
	if v, ok := intValue(data, "step"); ok {
		st.StepCount = &v
	}
	if v, ok := intValue(data, "dist"); ok {
		st.DistanceM = &v
	}
	if v, ok := intValue(data, "cal"); ok {
		st.Calories = &v
	}
	if v, ok := intValue(data, "time"); ok && v >= 0 {
		st.WalkingTime = &v
	}

	return st
}

func floatValue(data map[string]any, key string) (float64, bool) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func intValue(data map[string]any, key string) (int, bool) {
	f, ok := floatValue(data, key)
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
