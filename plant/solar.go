package plant

import (
	"math"
	"math/rand"
	"time"
)

// Daylight is the hour-of-day window in which the plant produces.
type Daylight struct {
	Start float64
	End   float64
}

// DefaultDaylight is the 06:00 to 18:00 window.
var DefaultDaylight = Daylight{Start: 6, End: 18}

// SolarFactor is the environmental driver for a fractional hour of day.
// cloud scales the clear-sky curve by (1 + cloud). The result is never negative.
func SolarFactor(hour, cloud float64, window Daylight) float64 {
	if hour < window.Start || hour > window.End || window.End <= window.Start {
		return 0
	}
	angle := (hour - window.Start) / (window.End - window.Start) * math.Pi
	f := math.Sin(angle) * (1 + cloud)
	if f < 0 {
		return 0
	}
	return f
}

// HourOfDay returns the local hour of t with minutes as a fraction.
func HourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

// Driver draws the solar factor once per tick.
type Driver struct {
	Window     Daylight
	CloudNoise float64
	rnd        *rand.Rand
}

// NewDriver returns a driver with cloud noise uniform in [-cloudNoise, +cloudNoise).
func NewDriver(window Daylight, cloudNoise float64, rnd *rand.Rand) *Driver {
	return &Driver{Window: window, CloudNoise: cloudNoise, rnd: rnd}
}

// Factor computes the solar factor at t.
func (d *Driver) Factor(t time.Time) float64 {
	cloud := 0.0
	if d.CloudNoise > 0 {
		cloud = (d.rnd.Float64()*2 - 1) * d.CloudNoise
	}
	return SolarFactor(HourOfDay(t), cloud, d.Window)
}
