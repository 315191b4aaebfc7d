// Package curve holds the static plant curves: the analytic tunnel
// level↔volume mapping and the interpolated pump efficiency and drive
// frequency tables.
package curve

import "math"

// Level breakpoints in metres.
const (
	LevelMin = 0.4
	LevelB   = 5.9
	LevelC   = 8.6
	LevelMax = 14.1
)

// Volume checkpoints in m³ at the level breakpoints.
const (
	VolumeMin = 350.0
	VolumeB   = 75_975.0
	VolumeC   = 150_225.0
	VolumeMax = 225_850.0
)

const (
	lowerQuadCoeff = 2_500.0
	linearCoeff    = 27_500.0
	upperQuadCoeff = 2_500.0
)

// VolumeFromLevel returns the tunnel volume in m³ for a level in metres.
// The mapping is constant below LevelMin and above LevelMax, quadratic up to
// LevelB, linear up to LevelC and an inverted parabola up to LevelMax.
func VolumeFromLevel(level float64) float64 {
	switch {
	case level < LevelMin:
		return VolumeMin
	case level < LevelB:
		d := level - LevelMin
		return VolumeMin + lowerQuadCoeff*d*d
	case level < LevelC:
		return VolumeB + linearCoeff*(level-LevelB)
	case level <= LevelMax:
		d := LevelMax - level
		return VolumeMax - upperQuadCoeff*d*d
	default:
		return VolumeMax
	}
}

// LevelFromVolume is the analytic inverse of VolumeFromLevel. Volumes
// outside [VolumeMin, VolumeMax] map to the nearest level bound.
func LevelFromVolume(volume float64) float64 {
	switch {
	case volume <= VolumeMin:
		return LevelMin
	case volume <= VolumeB:
		return LevelMin + math.Sqrt(math.Max(volume-VolumeMin, 0)/lowerQuadCoeff)
	case volume <= VolumeC:
		return LevelB + (volume-VolumeB)/linearCoeff
	case volume <= VolumeMax:
		return LevelMax - math.Sqrt(math.Max(VolumeMax-volume, 0)/upperQuadCoeff)
	default:
		return LevelMax
	}
}
