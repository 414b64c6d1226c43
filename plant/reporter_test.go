package plant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settledRegistry returns a registry whose snapshots equal the current values.
func settledRegistry(now time.Time) *Registry {
	reg := NewRegistry(DefaultPoints())
	reg.Update(func(tx *Tx) {
		tx.Each(func(p *Point) {
			p.LastReportedValue = p.Value
			p.LastReportedState = p.State
			p.LastReportTime = now
		})
	})
	return reg
}

func scan(reg *Registry, r *Reporter, now time.Time) []Batch {
	var out []Batch
	reg.Update(func(tx *Tx) { out = r.Scan(tx, now) })
	return out
}

func TestReporterIrradianceThresholdIsInclusive(t *testing.T) {
	t0 := at(12, 0)
	r := NewReporter(DefaultCooldown)
	later := t0.Add(DefaultCooldown)

	reg := settledRegistry(t0)
	reg.SetValue(AddrIrradiance, 800+49.9)
	assert.Empty(t, scan(reg, r, later))

	reg = settledRegistry(t0)
	reg.SetValue(AddrIrradiance, 800+50.0)
	batches := scan(reg, r, later)
	require.Len(t, batches, 1)
	assert.Equal(t, CauseSpontaneous, batches[0].Cause)
	assert.Equal(t, Analog, batches[0].Kind)
	assert.Equal(t, []Item{{Address: AddrIrradiance, Name: "Irradiance", Value: 850}}, batches[0].Items)

	p := reg.Get(AddrIrradiance)
	assert.Equal(t, 850.0, p.LastReportedValue)
	assert.Equal(t, later, p.LastReportTime)
}

func TestReporterClassThresholds(t *testing.T) {
	t0 := at(12, 0)
	later := t0.Add(time.Minute)
	r := NewReporter(DefaultCooldown)

	reg := settledRegistry(t0)
	reg.SetValue(AddrDailyEnergy, 9.99)
	reg.SetValue(AddrAmbientTemp, 25.99)
	assert.Empty(t, scan(reg, r, later))

	reg.SetValue(AddrDailyEnergy, 10)
	reg.SetValue(AddrAmbientTemp, 26)
	batches := scan(reg, r, later)
	require.Len(t, batches, 2)
	assert.Equal(t, AddrAmbientTemp, batches[0].Items[0].Address)
	assert.Equal(t, AddrDailyEnergy, batches[1].Items[0].Address)
}

func TestReporterCooldown(t *testing.T) {
	t0 := at(12, 0)
	r := NewReporter(DefaultCooldown)
	reg := settledRegistry(t0)

	reg.SetValue(AddrAmbientTemp, 40)
	assert.Empty(t, scan(reg, r, t0.Add(4*time.Second)))
	assert.Len(t, scan(reg, r, t0.Add(5*time.Second)), 1)

	reg.SetValue(AddrAmbientTemp, 50)
	assert.Empty(t, scan(reg, r, t0.Add(9*time.Second)))
	assert.Len(t, scan(reg, r, t0.Add(10*time.Second)), 1)
	assert.Equal(t, 50.0, reg.Get(AddrAmbientTemp).LastReportedValue)
}

func TestReporterFirstReportHasNoCooldown(t *testing.T) {
	reg := NewRegistry(DefaultPoints())
	batches := scan(reg, NewReporter(DefaultCooldown), at(12, 0))

	// every seeded analog that is at least its threshold away from zero
	var addrs []int
	for _, b := range batches {
		addrs = append(addrs, b.Items[0].Address)
	}
	assert.Equal(t, []int{100, 101, 102, 103, 104, 105, 200, 201, 203, 205}, addrs)
}

func TestReporterBinaryImmediate(t *testing.T) {
	t0 := at(12, 0)
	r := NewReporter(DefaultCooldown)
	reg := settledRegistry(t0)

	reg.SetStatus(StatusAddress(2), false)
	batches := scan(reg, r, t0)
	require.Len(t, batches, 1)
	assert.Equal(t, BinaryStatus, batches[0].Kind)
	assert.Equal(t, Item{Address: 1003, Name: "INV3_Status", State: false}, batches[0].Items[0])

	assert.Empty(t, scan(reg, r, t0))

	reg.SetStatus(StatusAddress(2), true)
	assert.Len(t, scan(reg, r, t0.Add(time.Millisecond)), 1)
}

func TestReporterIgnoresCommandTargets(t *testing.T) {
	t0 := at(12, 0)
	reg := settledRegistry(t0)
	reg.SetStatus(CommandAddress(0), true)

	assert.Empty(t, scan(reg, NewReporter(DefaultCooldown), t0.Add(time.Hour)))
}

func TestReporterStalenessBound(t *testing.T) {
	// a ramp of 0.5 per tick crosses the threshold every other tick,
	// so reports are paced by the cool-down alone
	t0 := at(12, 0)
	r := NewReporter(DefaultCooldown)
	reg := settledRegistry(t0)

	lastReport := t0
	for i := 1; i <= 60; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		reg.SetValue(AddrModuleTemp, 45+0.5*float64(i))
		if len(scan(reg, r, now)) > 0 {
			lastReport = now
		}
		assert.LessOrEqual(t, now.Sub(lastReport), DefaultCooldown+time.Second)
	}
	p := reg.Get(AddrModuleTemp)
	assert.Less(t, p.Value-p.LastReportedValue, 5*0.5+p.Threshold)
}
