package model

import "time"

// ReservoirState is the tunnel state at one tick. It is produced by the
// physics replay and replaced, never mutated, on the next step.
type ReservoirState struct {
	Timestamp time.Time
	Volume    float64 // m³
	Level     float64 // m
	Price     float64 // €/kWh
	Inflow    float64 // m³/h
	Flows     Flows   // m³/h per pump
}

// StepInfo describes what happened during one physics step.
type StepInfo struct {
	TotalOutflow float64 // m³/h
	Inflow       float64 // m³/h used by the mass balance
	Price        float64 // €/kWh during the step
	EnergyKWh    float64
	Commands     Flows // sanitized commands actually executed
	// AtEnd is set once the replay cursor is held on the last record.
	AtEnd bool
}

// Strategy labels the controller that produced a run.
type Strategy string

const (
	StrategyMultiAgent Strategy = "multi_agent"
	StrategyBaseline   Strategy = "baseline"
)

// Record is one row of a run table.
type Record struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     float64   `json:"level_m"`
	Volume    float64   `json:"volume_m3"`
	Price     float64   `json:"price_eur_kwh"`
	Inflow    float64   `json:"inflow_m3_h"`
	Outflow   float64   `json:"outflow_m3_h"`
	EnergyKWh float64   `json:"energy_kwh"`
	Flows     Flows     `json:"flows"`
	Strategy  Strategy  `json:"strategy"`
}

// Event is one entry of the chronological decision log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}
