package model

import (
	"errors"
	"fmt"
	"strings"
)

// PumpID identifies one pump of the fixed eight-pump fleet.
type PumpID uint8

const (
	Pump11 PumpID = iota
	Pump12
	Pump13
	Pump14
	Pump21
	Pump22
	Pump23
	Pump24

	// NumPumps is the size of the fleet.
	NumPumps = 8
)

// PumpClass groups pumps sharing the same hydraulic curve.
type PumpClass int

const (
	ClassSmall PumpClass = iota
	ClassLarge
)

// ErrUnknownPump is returned when a pump identifier cannot be parsed.
var ErrUnknownPump = errors.New("unknown pump")

var pumpNames = [NumPumps]string{"1.1", "1.2", "1.3", "1.4", "2.1", "2.2", "2.3", "2.4"}

// AllPumps lists the fleet in canonical order.
var AllPumps = [NumPumps]PumpID{Pump11, Pump12, Pump13, Pump14, Pump21, Pump22, Pump23, Pump24}

// String returns the plant name of the pump, e.g. "2.3".
func (p PumpID) String() string {
	if int(p) < NumPumps {
		return pumpNames[p]
	}
	return "unknown"
}

// Class returns the size class of the pump. Pumps 1.x are small, 2.x large.
func (p PumpID) Class() PumpClass {
	if p >= Pump21 {
		return ClassLarge
	}
	return ClassSmall
}

// Valid reports whether p is a member of the fleet.
func (p PumpID) Valid() bool { return int(p) < NumPumps }

// ParsePumpID accepts "1.1", "pump 1.1" or the historical column name
// "Pump flow 1.1".
func ParsePumpID(s string) (PumpID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "pump flow ")
	name = strings.TrimPrefix(name, "pump ")
	for i, n := range pumpNames {
		if n == name {
			return PumpID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPump, s)
}

// String returns a human-readable representation of the pump class.
func (c PumpClass) String() string {
	switch c {
	case ClassSmall:
		return "small"
	case ClassLarge:
		return "large"
	default:
		return "unknown"
	}
}

// Flows holds one flow value in m³/h per pump, indexed by PumpID.
type Flows [NumPumps]float64

// Total returns the aggregate flow of the fleet.
func (f Flows) Total() float64 {
	var sum float64
	for _, v := range f {
		sum += v
	}
	return sum
}

// Get returns the flow of pump p.
func (f Flows) Get(p PumpID) float64 { return f[p] }

// Map converts the flows to a name keyed map, mostly for reporting.
func (f Flows) Map() map[string]float64 {
	m := make(map[string]float64, NumPumps)
	for _, p := range AllPumps {
		m[p.String()] = f[p]
	}
	return m
}
