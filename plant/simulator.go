package plant

import (
	"math"
	"math/rand"
	"time"
)

const (
	nominalLineVoltage = 400.0
	sqrt3              = 1.7320508075688772
	secondsPerDay      = 86400.0
)

// SimulatorConfig tunes the physical model.
type SimulatorConfig struct {
	Window     Daylight
	CloudNoise float64
	Efficiency float64
	// Nominal is the step length assumed for the very first tick.
	Nominal time.Duration
}

// DefaultSimulatorConfig matches a 1 s cadence plant.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Window:     DefaultDaylight,
		CloudNoise: 0.15,
		Efficiency: 0.97,
		Nominal:    time.Second,
	}
}

// Simulator advances all analog points once per tick.
type Simulator struct {
	cfg      SimulatorConfig
	rnd      *rand.Rand
	driver   *Driver
	lastStep time.Time
}

// NewSimulator creates a simulator drawing all randomness from rnd.
func NewSimulator(cfg SimulatorConfig, rnd *rand.Rand) *Simulator {
	if cfg.Nominal <= 0 {
		cfg.Nominal = time.Second
	}
	return &Simulator{
		cfg:    cfg,
		rnd:    rnd,
		driver: NewDriver(cfg.Window, cfg.CloudNoise, rnd),
	}
}

// Step draws the solar factor for now and applies it. It returns the factor used.
func (s *Simulator) Step(tx *Tx, now time.Time) float64 {
	f := s.driver.Factor(now)
	s.Apply(tx, now, f)
	return f
}

// Apply advances the model with a given solar factor.
func (s *Simulator) Apply(tx *Tx, now time.Time, f float64) {
	dt := s.elapsed(now)
	for inv := 0; inv < InverterCount; inv++ {
		s.updateInverter(tx, inv, f)
	}
	s.updateEnvironment(tx, now, f)
	s.updateTotals(tx, dt)
}

func (s *Simulator) elapsed(now time.Time) time.Duration {
	dt := s.cfg.Nominal
	if !s.lastStep.IsZero() {
		dt = now.Sub(s.lastStep)
	}
	s.lastStep = now
	if dt < 0 {
		return 0
	}
	return dt
}

func (s *Simulator) updateInverter(tx *Tx, inv int, f float64) {
	addr := func(field int) int { return InverterAddress(inv, field) }

	if !tx.Status(StatusAddress(inv)) {
		for _, field := range []int{FieldDCCurrent, FieldDCPower, FieldACCurrentA, FieldACCurrentB, FieldACCurrentC, FieldACPower} {
			tx.SetValue(addr(field), 0)
		}
		return
	}

	dcVoltage := 600 + f*150 + s.noise(10)
	dcCurrent := 0.0
	if f > 0 {
		dcCurrent = floor0(f*45 + s.noise(2))
	}
	dcPower := dcVoltage * dcCurrent / 1000
	tx.SetValue(addr(FieldDCVoltage), dcVoltage)
	tx.SetValue(addr(FieldDCCurrent), dcCurrent)
	tx.SetValue(addr(FieldDCPower), dcPower)

	for _, field := range []int{FieldACVoltageA, FieldACVoltageB, FieldACVoltageC} {
		tx.SetValue(addr(field), nominalLineVoltage+s.noise(5))
	}

	acPower := dcPower * s.cfg.Efficiency
	for _, field := range []int{FieldACCurrentA, FieldACCurrentB, FieldACCurrentC} {
		current := 0.0
		if f > 0 {
			current = floor0(acPower*1000/(sqrt3*nominalLineVoltage) + s.noise(0.5))
		}
		tx.SetValue(addr(field), current)
	}
	tx.SetValue(addr(FieldACPower), acPower)
}

func (s *Simulator) updateEnvironment(tx *Tx, now time.Time, f float64) {
	tx.SetValue(AddrIrradiance, clamp(f*1000+s.noise(50), 0, 1200))

	ambient := 20 + 10*math.Sin(secondOfDay(now)/secondsPerDay*2*math.Pi) + s.noise(2)
	tx.SetValue(AddrAmbientTemp, ambient)
	tx.SetValue(AddrModuleTemp, ambient+f*25+s.noise(3))

	tx.SetValue(AddrWindSpeed, floor0(3+s.uniform(-4, 5)))
	tx.SetValue(AddrWindDirection, math.Mod(tx.Value(AddrWindDirection)+s.noise(10)+360, 360))

	tx.SetValue(AddrHumidity, clamp(70-f*20+s.noise(5), 20, 95))
}

func (s *Simulator) updateTotals(tx *Tx, dt time.Duration) {
	total := 0.0
	for inv := 0; inv < InverterCount; inv++ {
		total += tx.Value(InverterAddress(inv, FieldACPower))
	}

	tx.SetValue(AddrTotalActivePower, total)
	tx.SetValue(AddrTotalReactivePower, total*0.05+s.noise(2))
	pf := 1.0
	if total > 0 {
		pf = 0.98 + s.noise(0.01)
	}
	tx.SetValue(AddrPowerFactor, pf)
	tx.SetValue(AddrGridFrequency, 50+s.noise(0.1))

	// kWh and MWh accumulators; no midnight rollover.
	kwh := total * dt.Hours()
	tx.SetValue(AddrDailyEnergy, tx.Value(AddrDailyEnergy)+kwh)
	tx.SetValue(AddrTotalEnergy, tx.Value(AddrTotalEnergy)+kwh/1000)
}

// noise is uniform in [-amplitude, +amplitude).
func (s *Simulator) noise(amplitude float64) float64 {
	return s.uniform(-amplitude, amplitude)
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}

func secondOfDay(t time.Time) float64 {
	return float64(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
