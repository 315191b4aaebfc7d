package forecast

import "fmt"

// Config holds the forecaster parameters.
type Config struct {
	HorizonSteps    int     `json:"horizon_steps"`
	LagSteps        int     `json:"lag_steps"`
	RidgeAlpha      float64 `json:"ridge_alpha"`
	MinTrainingRows int     `json:"min_training_rows"`
	// Oracle enables perfect foresight when future records exist.
	Oracle *bool `json:"oracle"`
	// PriceMinorPerUnit converts recorded prices to €/kWh. It follows the
	// plant setting and is not read from the forecast section.
	PriceMinorPerUnit float64 `json:"-"`
}

// DefaultConfig returns the default forecaster configuration.
func DefaultConfig() Config {
	c := Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills zero values with the defaults.
func (c *Config) SetDefaults() {
	if c.HorizonSteps <= 0 {
		c.HorizonSteps = 8
	}
	if c.LagSteps <= 0 {
		c.LagSteps = 8
	}
	if c.RidgeAlpha == 0 {
		c.RidgeAlpha = 1.0
	}
	if c.MinTrainingRows <= 0 {
		c.MinTrainingRows = 10
	}
	if c.PriceMinorPerUnit <= 0 {
		c.PriceMinorPerUnit = 100
	}
	if c.Oracle == nil {
		on := true
		c.Oracle = &on
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HorizonSteps <= 0 {
		return fmt.Errorf("forecast: horizon_steps must be positive")
	}
	if c.LagSteps <= 0 {
		return fmt.Errorf("forecast: lag_steps must be positive")
	}
	if c.RidgeAlpha < 0 {
		return fmt.Errorf("forecast: ridge_alpha must be >= 0")
	}
	return nil
}

// OracleEnabled reports whether perfect foresight is allowed.
func (c Config) OracleEnabled() bool { return c.Oracle == nil || *c.Oracle }
