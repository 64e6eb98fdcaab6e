package types

// PadProfileDefinition describes one supported pad model.
type PadProfileDefinition struct {
	PadProfile PadProfileInfo  `json:"pad_profile"`
	Features   FeatureSet      `json:"features"`
	Speed      SpeedRangeLimit `json:"speed"`
}

type PadProfileInfo struct {
	Model       string `json:"model"`
	Vendor      string `json:"vendor"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type FeatureSet struct {
	Power       bool `json:"power"`
	Lock        bool `json:"lock"`
	Mode        bool `json:"mode"`
	Sensitivity bool `json:"sensitivity"`
}

type SpeedRangeLimit struct {
	MinKmh float64 `json:"min_kmh"`
	MaxKmh float64 `json:"max_kmh"`
}
