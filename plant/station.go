package plant

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const statusEvery = 10

// Options configures a Station.
type Options struct {
	Simulator    SimulatorConfig
	TickInterval time.Duration
	Cooldown     time.Duration
	BatchSize    int
	Seed         int64
	Logger       logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the options of the reference plant.
func DefaultOptions() Options {
	return Options{
		Simulator:    DefaultSimulatorConfig(),
		TickInterval: time.Second,
		Cooldown:     DefaultCooldown,
		BatchSize:    DefaultBatchSize,
	}
}

// TickStats summarises one tick for observers.
type TickStats struct {
	Time        time.Time
	SolarFactor float64
	TotalPower  float64
	DailyEnergy float64
	Reports     int
	Dropped     int
	Inverters   [InverterCount]InverterStats
}

// InverterStats is the per inverter part of TickStats.
type InverterStats struct {
	State   InverterState
	ACPower float64
}

// Observer is notified about station activity. Calls happen outside the registry lock.
type Observer interface {
	TickCompleted(s TickStats)
	ReportDropped(b Batch, err error)
	InterrogationHandled(accepted bool, batches int)
	CommandHandled(addr int, accepted bool)
	ConnectionChanged(ev ConnEvent, peer string)
}

// NopObserver can be embedded to implement only part of Observer.
type NopObserver struct{}

func (NopObserver) TickCompleted(TickStats) {}
func (NopObserver) ReportDropped(Batch, error) {}
func (NopObserver) InterrogationHandled(bool, int) {}
func (NopObserver) CommandHandled(int, bool) {}
func (NopObserver) ConnectionChanged(ConnEvent, string) {}

// Station is the simulated PV outstation: registry, physics, reporting
// and request handling behind one lock.
type Station struct {
	opts      Options
	log       logrus.FieldLogger
	registry  *Registry
	simulator *Simulator
	reporter  *Reporter

	mu        sync.RWMutex
	publisher Publishers
	observers []Observer
	ticks     int
}

// NewStation builds a station over the default point table.
func NewStation(opts Options) *Station {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = def.Cooldown
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Simulator.Efficiency == 0 {
		opts.Simulator.Efficiency = def.Simulator.Efficiency
	}
	if opts.Simulator.Window == (Daylight{}) {
		opts.Simulator.Window = def.Simulator.Window
	}
	if opts.Simulator.Nominal <= 0 {
		opts.Simulator.Nominal = opts.TickInterval
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Station{
		opts:      opts,
		log:       opts.Logger.WithField("component", "station"),
		registry:  NewRegistry(DefaultPoints()),
		simulator: NewSimulator(opts.Simulator, rand.New(rand.NewSource(opts.Seed))),
		reporter:  NewReporter(opts.Cooldown),
	}
}

// Registry exposes the point table.
func (s *Station) Registry() *Registry {
	return s.registry
}

// AddPublisher registers a destination for spontaneous batches.
func (s *Station) AddPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = append(s.publisher, p)
}

// AddObserver registers an activity observer.
func (s *Station) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Run advances the station every tick interval until ctx is cancelled.
func (s *Station) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	s.log.WithField("interval", s.opts.TickInterval).Info("tick driver started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("tick driver stopped")
			return nil
		case <-ticker.C:
			s.Tick(s.opts.Now())
		}
	}
}

// Tick simulates one step at now and publishes the resulting spontaneous reports.
func (s *Station) Tick(now time.Time) TickStats {
	var (
		batches []Batch
		stats   = TickStats{Time: now}
	)
	s.registry.Update(func(tx *Tx) {
		stats.SolarFactor = s.simulator.Step(tx, now)
		batches = s.reporter.Scan(tx, now)

		stats.TotalPower = tx.Value(AddrTotalActivePower)
		stats.DailyEnergy = tx.Value(AddrDailyEnergy)
		for inv := 0; inv < InverterCount; inv++ {
			stats.Inverters[inv] = InverterStats{
				State:   stateOf(tx.Status(StatusAddress(inv))),
				ACPower: tx.Value(InverterAddress(inv, FieldACPower)),
			}
		}
	})

	publisher, observers := s.listeners()
	for _, b := range batches {
		s.logReport(b)
		if err := publisher.Enqueue(b); err != nil {
			stats.Dropped++
			s.log.WithError(err).WithField("ioa", b.Items[0].Address).Debug("spontaneous report dropped")
			for _, o := range observers {
				o.ReportDropped(b, err)
			}
		}
	}
	stats.Reports = len(batches)

	s.mu.Lock()
	s.ticks++
	periodic := s.ticks%statusEvery == 0
	s.mu.Unlock()
	if periodic {
		s.logStatus(stats)
	}

	for _, o := range observers {
		o.TickCompleted(stats)
	}
	return stats
}

// Interrogate returns the interrogation response without sending it.
func (s *Station) Interrogate(scope Scope) InterrogationResult {
	return Interrogate(s.registry, scope, s.opts.BatchSize)
}

// Command applies a single command without acknowledging it.
func (s *Station) Command(addr int, on bool) CommandResult {
	res := ApplyCommand(s.registry, addr, on)
	entry := s.log.WithFields(logrus.Fields{"ioa": addr, "value": onOff(on)})
	if !res.Accepted {
		entry.Warn("command rejected: not a command address")
	} else {
		entry.WithFields(logrus.Fields{
			"inverter": res.Inverter + 1,
			"from":     res.From,
			"to":       res.To,
		}).Info("command accepted")
	}
	_, observers := s.listeners()
	for _, o := range observers {
		o.CommandHandled(addr, res.Accepted)
	}
	return res
}

// OnInterrogation answers an interrogation request through r.
func (s *Station) OnInterrogation(scope Scope, r Replier) {
	res := s.Interrogate(scope)
	entry := s.log.WithField("qoi", uint8(scope))

	if !res.Accepted {
		entry.Warn("interrogation rejected: scope not supported")
		if err := r.Confirm(false); err != nil {
			entry.WithError(err).Error("send negative confirmation")
		}
		s.notifyInterrogation(false, 0)
		return
	}

	if err := r.Confirm(true); err != nil {
		entry.WithError(err).Error("send confirmation")
	}
	for _, b := range res.Batches {
		if err := r.Send(b); err != nil {
			entry.WithError(err).WithField("kind", b.Kind).Error("send interrogation batch")
		}
	}
	if err := r.Terminate(); err != nil {
		entry.WithError(err).Error("send termination")
	}
	entry.WithField("batches", len(res.Batches)).Info("interrogation completed")
	s.notifyInterrogation(true, len(res.Batches))
}

// OnCommand applies a command and confirms or rejects it through a.
func (s *Station) OnCommand(addr int, on bool, a Acknowledger) {
	res := s.Command(addr, on)
	if err := a.Confirm(res.Accepted); err != nil {
		s.log.WithError(err).WithField("ioa", addr).Error("send command confirmation")
	}
}

// OnConnectionEvent records a connection lifecycle event.
func (s *Station) OnConnectionEvent(ev ConnEvent, peer string) {
	s.log.WithFields(logrus.Fields{"event": ev, "peer": peer}).Info("connection event")
	_, observers := s.listeners()
	for _, o := range observers {
		o.ConnectionChanged(ev, peer)
	}
}

// Snapshot returns copies of all reportable points.
func (s *Station) Snapshot() []Point {
	return s.registry.ForEach(func(p Point) bool { return p.Kind != BinaryCommand })
}

// Banner describes the address plan, one line per range.
func Banner() []string {
	return []string{
		fmt.Sprintf("IOA %d-%d: inverter 1-%d analogs (M_ME_NC_1)", InverterAddress(0, 0), InverterAddress(InverterCount-1, InverterFieldCount-1), InverterCount),
		fmt.Sprintf("IOA %d-%d: environment (M_ME_NC_1)", AddrIrradiance, AddrHumidity),
		fmt.Sprintf("IOA %d-%d: plant totals (M_ME_NC_1)", AddrTotalActivePower, AddrTotalEnergy),
		fmt.Sprintf("IOA %d-%d: inverter status (M_SP_NA_1)", StatusAddress(0), StatusAddress(InverterCount-1)),
		fmt.Sprintf("IOA %d-%d: inverter control (C_SC_NA_1)", CommandAddress(0), CommandAddress(InverterCount-1)),
	}
}

func (s *Station) listeners() (Publishers, []Observer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(Publishers(nil), s.publisher...), append([]Observer(nil), s.observers...)
}

func (s *Station) notifyInterrogation(accepted bool, batches int) {
	_, observers := s.listeners()
	for _, o := range observers {
		o.InterrogationHandled(accepted, batches)
	}
}

func (s *Station) logReport(b Batch) {
	it := b.Items[0]
	entry := s.log.WithFields(logrus.Fields{"ioa": it.Address, "name": it.Name})
	if b.Kind == Analog {
		entry.WithField("value", fmt.Sprintf("%.2f", it.Value)).Debug("spontaneous report")
		return
	}
	entry.WithField("state", onOff(it.State)).Info("spontaneous report")
}

func (s *Station) logStatus(st TickStats) {
	var inv strings.Builder
	for i, is := range st.Inverters {
		if i > 0 {
			inv.WriteString(" | ")
		}
		fmt.Fprintf(&inv, "INV%d %s %.1fkW", i+1, is.State, is.ACPower)
	}
	s.log.WithFields(logrus.Fields{
		"solar_factor": fmt.Sprintf("%.2f", st.SolarFactor),
		"total_kw":     fmt.Sprintf("%.1f", st.TotalPower),
		"daily_kwh":    fmt.Sprintf("%.1f", st.DailyEnergy),
	}).Info(inv.String())
}
