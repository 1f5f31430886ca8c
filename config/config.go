// Package config loads the JSON machine-description document a host
// tool or LCD settings menu would hand the firmware at boot, and turns it
// into the typed configuration each core package actually consumes.
//
// Grounded on standalone/config/config.go's LoadConfig/applyDefaults
// pattern from the teacher, extended with the axis jerk, travel/retract
// acceleration, min-feedrate, min-segment-time, and heater/runaway fields
// spec.md requires that the teacher's standalone mode never needed.
package config

import (
	"encoding/json"
	"fmt"

	"gopper/persist"
	"gopper/planner"
	"gopper/thermal"
)

// AxisConfig is one axis's motion limits, the JSON mirror of
// planner.Limits' per-axis arrays.
type AxisConfig struct {
	StepsPerMM      float64 `json:"steps_per_mm"`
	MaxFeedrate     float64 `json:"max_feedrate_mm_s"`
	MaxAcceleration float64 `json:"max_acceleration_mm_s2"`
	MaxJerk         float64 `json:"max_jerk_mm_s"`
}

// TablePoint is one ADC/temperature calibration vertex, the JSON mirror
// of thermal.Point.
type TablePoint struct {
	ADC   int32   `json:"adc"`
	TempC float64 `json:"temp_c"`
}

// HeaterConfig is one heater's calibration table, safety bounds, and
// control-loop tuning.
type HeaterConfig struct {
	Table []TablePoint `json:"table"`

	MinTempC float64    `json:"min_temp_c"`
	MaxTempC float64    `json:"max_temp_c"`
	PID      [3]float64 `json:"pid"`

	Hysteresis         float64 `json:"hysteresis_c"`
	WatchMarginC       float64 `json:"watch_margin_c"`
	WatchIncreaseC     float64 `json:"watch_increase_c"`
	WatchPeriodTicks   uint32  `json:"watch_period_ticks"`
	RunawayHysteresisC float64 `json:"runaway_hysteresis_c"`
	RunawayPeriodTicks uint32  `json:"runaway_period_ticks"`
}

// PreheatPreset mirrors persist.PreheatPreset for JSON round-tripping.
type PreheatPreset struct {
	HotendC float64 `json:"hotend_c"`
	BedC    float64 `json:"bed_c"`
}

// MachineConfig is the full JSON-backed machine description: per-axis
// motion limits, shared acceleration/feedrate floors, and per-heater
// thermal configuration. Axes is keyed by axis letter, lowercase:
// "x", "y", "z", "e".
type MachineConfig struct {
	Kinematics string `json:"kinematics"`

	Axes map[string]AxisConfig `json:"axes"`

	Acceleration        float64 `json:"acceleration_mm_s2"`
	TravelAcceleration  float64 `json:"travel_acceleration_mm_s2"`
	RetractAcceleration float64 `json:"retract_acceleration_mm_s2"`

	MinFeedrate       float64 `json:"min_feedrate_mm_s"`
	MinTravelFeedrate float64 `json:"min_travel_feedrate_mm_s"`
	MinSegmentTime    float64 `json:"min_segment_time_s"`

	MinExtrudeTempC float64 `json:"min_extrude_temp_c"`

	Heaters map[string]HeaterConfig `json:"heaters"`

	HomeOffset [3]float64      `json:"home_offset"`
	Preheat    [3]PreheatPreset `json:"preheat"`
	FanSpeed   [2]uint8         `json:"fan_speed"`
}

var axisOrder = [planner.NAxes]string{"x", "y", "z", "e"}

// Load parses a JSON machine description and fills in any field left at
// its zero value with a sensible default, the way
// standalone/config/config.go's applyDefaults does.
func Load(data []byte) (*MachineConfig, error) {
	var cfg MachineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *MachineConfig) {
	if cfg.Kinematics == "" {
		cfg.Kinematics = "cartesian"
	}
	if cfg.MinFeedrate == 0 {
		cfg.MinFeedrate = 0.05
	}
	if cfg.MinTravelFeedrate == 0 {
		cfg.MinTravelFeedrate = 0.05
	}
	if cfg.Acceleration == 0 {
		cfg.Acceleration = 1000
	}
	if cfg.TravelAcceleration == 0 {
		cfg.TravelAcceleration = cfg.Acceleration
	}
	if cfg.RetractAcceleration == 0 {
		cfg.RetractAcceleration = cfg.Acceleration
	}
	if cfg.Axes == nil {
		cfg.Axes = map[string]AxisConfig{}
	}
	for _, name := range axisOrder {
		a := cfg.Axes[name]
		if a.StepsPerMM == 0 {
			a.StepsPerMM = 80
		}
		if a.MaxFeedrate == 0 {
			a.MaxFeedrate = 300
		}
		if a.MaxAcceleration == 0 {
			a.MaxAcceleration = 1500
		}
		if a.MaxJerk == 0 {
			a.MaxJerk = 10
		}
		cfg.Axes[name] = a
	}
}

// ToLimits builds the planner.Limits this configuration describes.
func (cfg *MachineConfig) ToLimits() planner.Limits {
	lim := planner.DefaultLimits()
	for i, name := range axisOrder {
		a := cfg.Axes[name]
		lim.StepsPerMM[i] = a.StepsPerMM
		lim.MaxFeedrate[i] = a.MaxFeedrate
		lim.MaxAccelSteps[i] = a.MaxAcceleration * a.StepsPerMM
		lim.MaxJerk[i] = a.MaxJerk
	}
	lim.Acceleration = cfg.Acceleration
	lim.TravelAcceleration = cfg.TravelAcceleration
	lim.RetractAcceleration = cfg.RetractAcceleration
	lim.MinFeedrate = cfg.MinFeedrate
	lim.MinTravelFeedrate = cfg.MinTravelFeedrate
	lim.MinSegmentTime = cfg.MinSegmentTime
	lim.ExtrudeFlowPercent = 100
	lim.ExtrudeVolumetricMultiplier = 1
	return lim
}

// HeaterController builds a thermal.Controller for the named heater
// ("hotend" or "bed"), or nil if it isn't configured.
func (cfg *MachineConfig) HeaterController(name string) *thermal.Controller {
	hc, ok := cfg.Heaters[name]
	if !ok {
		return nil
	}
	points := make([]thermal.Point, len(hc.Table))
	for i, p := range hc.Table {
		points[i] = thermal.Point{ADC: p.ADC, TempC: p.TempC}
	}
	return &thermal.Controller{Config: thermal.HeaterConfig{
		Table:              thermal.NewTable(points),
		MinTempC:           hc.MinTempC,
		MaxTempC:           hc.MaxTempC,
		PID:                hc.PID,
		Hysteresis:         hc.Hysteresis,
		WatchMarginC:       hc.WatchMarginC,
		WatchIncreaseC:     hc.WatchIncreaseC,
		WatchPeriodTicks:   hc.WatchPeriodTicks,
		RunawayHysteresisC: hc.RunawayHysteresisC,
		RunawayPeriodTicks: hc.RunawayPeriodTicks,
	}}
}

// ToPersist builds the EEPROM-image Config this MachineConfig projects
// onto - the subset of fields spec 6 lists as persisted.
func (cfg *MachineConfig) ToPersist() *persist.Config {
	var p persist.Config
	for i, name := range axisOrder {
		a := cfg.Axes[name]
		p.AxisStepsPerMM[i] = a.StepsPerMM
		p.MaxFeedrate[i] = a.MaxFeedrate
		p.MaxAcceleration[i] = a.MaxAcceleration
		p.MaxJerk[i] = a.MaxJerk
	}
	p.Acceleration = cfg.Acceleration
	p.RetractAcceleration = cfg.RetractAcceleration
	p.TravelAcceleration = cfg.TravelAcceleration
	p.MinFeedrate = cfg.MinFeedrate
	p.MinTravelFeedrate = cfg.MinTravelFeedrate
	p.MinSegmentTime = cfg.MinSegmentTime
	p.HomeOffset = cfg.HomeOffset
	if h, ok := cfg.Heaters["hotend"]; ok {
		p.HotendPID = h.PID
	}
	if h, ok := cfg.Heaters["bed"]; ok {
		p.BedPID = h.PID
	}
	p.MinExtrudeTempC = cfg.MinExtrudeTempC
	for i, pre := range cfg.Preheat {
		p.Preheat[i] = persist.PreheatPreset{HotendC: pre.HotendC, BedC: pre.BedC}
	}
	p.FanSpeed = cfg.FanSpeed
	return &p
}

// ApplyPersisted overwrites the fields of cfg that persist.Config covers
// with values loaded from an EEPROM image, the way gcode_M501 would.
func (cfg *MachineConfig) ApplyPersisted(p *persist.Config) {
	for i, name := range axisOrder {
		a := cfg.Axes[name]
		a.StepsPerMM = p.AxisStepsPerMM[i]
		a.MaxFeedrate = p.MaxFeedrate[i]
		a.MaxAcceleration = p.MaxAcceleration[i]
		a.MaxJerk = p.MaxJerk[i]
		cfg.Axes[name] = a
	}
	cfg.Acceleration = p.Acceleration
	cfg.RetractAcceleration = p.RetractAcceleration
	cfg.TravelAcceleration = p.TravelAcceleration
	cfg.MinFeedrate = p.MinFeedrate
	cfg.MinTravelFeedrate = p.MinTravelFeedrate
	cfg.MinSegmentTime = p.MinSegmentTime
	cfg.HomeOffset = p.HomeOffset
	cfg.MinExtrudeTempC = p.MinExtrudeTempC
	for i, pre := range p.Preheat {
		cfg.Preheat[i] = PreheatPreset{HotendC: pre.HotendC, BedC: pre.BedC}
	}
	cfg.FanSpeed = p.FanSpeed
}
