package safety

import "fmt"

// Config holds the governor thresholds. Enforcement hour and storm limits
// are plant tuning values and belong in configuration files.
type Config struct {
	MinReserveRatio      float64 `json:"min_reserve_ratio"`
	MaxLevel             float64 `json:"max_level_m"`
	MinLevel             float64 `json:"min_level_m"`
	FlushLevel           float64 `json:"flush_level_m"`
	FlushEnforcementHour int     `json:"flush_enforcement_hour"`
	FlushDeadlineBuffer  int     `json:"flush_deadline_buffer_steps"`
	FlushInflowThreshold float64 `json:"flush_inflow_threshold_m3h"`
	MaxFlushFlow         float64 `json:"max_flush_flow_m3h"`
	FlushVolumeStep      float64 `json:"flush_volume_step_m3"`
	FlushTolerance       float64 `json:"flush_tolerance_m3"`
	PostFlushHoldLevel   float64 `json:"post_flush_hold_level_m"`
	PostFlushHoldSteps   int     `json:"post_flush_hold_steps"`
	StormInflowThreshold float64 `json:"storm_inflow_threshold_m3h"`
	StormReliefSteps     int     `json:"storm_relief_steps"`
	MinTotalFlow         float64 `json:"min_total_flow_m3h"`
	MinFlowLevelBuffer   float64 `json:"min_flow_level_buffer_m"`
	MinRuntimeSteps      int     `json:"min_runtime_steps"`
	MinRestSteps         int     `json:"min_rest_steps"`
	ActivationThreshold  float64 `json:"activation_threshold_m3h"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinReserveRatio:      0.1,
		MaxLevel:             7.5,
		MinLevel:             0.5,
		FlushLevel:           0.5,
		FlushEnforcementHour: 10,
		FlushDeadlineBuffer:  4,
		FlushInflowThreshold: 2200,
		MaxFlushFlow:         12000,
		FlushVolumeStep:      2000,
		FlushTolerance:       150,
		PostFlushHoldLevel:   1.8,
		PostFlushHoldSteps:   12,
		StormInflowThreshold: 2600,
		StormReliefSteps:     12,
		MinTotalFlow:         1400,
		MinFlowLevelBuffer:   0.2,
		MinRuntimeSteps:      8,
		MinRestSteps:         8,
		ActivationThreshold:  50,
	}
}

// MultiAgentConfig returns the thresholds used behind the planner: the
// planner already keeps a total-flow floor, so the assist is disabled, and
// the post-flush hold lasts until a higher level.
func MultiAgentConfig() Config {
	c := DefaultConfig()
	c.PostFlushHoldLevel = 2.5
	c.MinTotalFlow = 0
	c.MinFlowLevelBuffer = 0
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxLevel <= c.MinLevel {
		return fmt.Errorf("safety: max_level_m %.2f must exceed min_level_m %.2f", c.MaxLevel, c.MinLevel)
	}
	if c.FlushEnforcementHour < 0 || c.FlushEnforcementHour > 23 {
		return fmt.Errorf("safety: flush_enforcement_hour %d out of range", c.FlushEnforcementHour)
	}
	if c.MinRuntimeSteps < 0 || c.MinRestSteps < 0 || c.PostFlushHoldSteps < 0 || c.StormReliefSteps < 0 {
		return fmt.Errorf("safety: step counts must be >= 0")
	}
	if c.FlushTolerance < 0 || c.FlushVolumeStep <= 0 {
		return fmt.Errorf("safety: invalid flush volume settings")
	}
	return nil
}
