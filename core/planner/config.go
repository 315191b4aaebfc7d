package planner

import "fmt"

// Config holds the MILP weights and limits.
type Config struct {
	HorizonSteps           int     `json:"horizon_steps"`
	VolumeSafetyMargin     float64 `json:"volume_safety_margin_m3"`
	RampLimit              float64 `json:"ramp_limit_m3h"`
	TargetLevel            float64 `json:"target_level_m"`
	OperationalMinLevel    float64 `json:"operational_min_level_m"`
	OperationalLevelWeight float64 `json:"operational_level_weight"`
	ConstantFlowWeight     float64 `json:"constant_flow_weight"`
	FlowChangeWeight       float64 `json:"flow_change_weight"`
	UsageBalanceWeight     float64 `json:"usage_balance_weight"`
	MinTotalFlow           float64 `json:"min_total_flow_m3h"`
	MaxTotalFlow           float64 `json:"max_total_flow_m3h"`
	VolumeDeficitWeight    float64 `json:"volume_deficit_weight"`
	VolumeExcessWeight     float64 `json:"volume_excess_weight"`
	FinalVolumeSlack       float64 `json:"final_volume_slack_m3"`
	// MaxNodes bounds the branch and bound search of the default solver.
	MaxNodes int `json:"max_nodes"`
	// Gap is the relative optimality gap of the default solver.
	Gap float64 `json:"mip_gap"`
}

// DefaultConfig returns the default planner configuration.
func DefaultConfig() Config {
	return Config{
		HorizonSteps:           8,
		VolumeSafetyMargin:     50,
		RampLimit:              150,
		TargetLevel:            3.8,
		OperationalMinLevel:    1.2,
		OperationalLevelWeight: 800,
		ConstantFlowWeight:     25,
		FlowChangeWeight:       40,
		UsageBalanceWeight:     5,
		MinTotalFlow:           1400,
		MaxTotalFlow:           16000,
		VolumeDeficitWeight:    60,
		VolumeExcessWeight:     8,
		FinalVolumeSlack:       2000,
		MaxNodes:               500,
		Gap:                    1e-4,
	}
}

// SetDefaults fills unset limits. Weights may legitimately be zero and are
// left untouched.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.HorizonSteps <= 0 {
		c.HorizonSteps = d.HorizonSteps
	}
	if c.RampLimit <= 0 {
		c.RampLimit = d.RampLimit
	}
	if c.MaxTotalFlow <= 0 {
		c.MaxTotalFlow = d.MaxTotalFlow
	}
	if c.TargetLevel <= 0 {
		c.TargetLevel = d.TargetLevel
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.Gap <= 0 {
		c.Gap = d.Gap
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HorizonSteps <= 0 {
		return fmt.Errorf("planner: horizon_steps must be positive")
	}
	if c.MinTotalFlow < 0 || c.MaxTotalFlow < c.MinTotalFlow {
		return fmt.Errorf("planner: invalid total flow range [%g, %g]", c.MinTotalFlow, c.MaxTotalFlow)
	}
	if c.RampLimit <= 0 {
		return fmt.Errorf("planner: ramp_limit_m3h must be positive")
	}
	if c.Gap >= 1 {
		return fmt.Errorf("planner: mip_gap must be below 1")
	}
	if c.FinalVolumeSlack < 0 || c.VolumeSafetyMargin < 0 {
		return fmt.Errorf("planner: slack and margin must be >= 0")
	}
	return nil
}
