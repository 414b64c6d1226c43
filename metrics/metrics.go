package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"pvsim104/plant"
)

const namespace = "pvsim"

// Collector records station activity as Prometheus metrics.
type Collector struct {
	plant.NopObserver

	Ticks          prometheus.Counter
	Reports        prometheus.Counter
	Dropped        prometheus.Counter
	Interrogations *prometheus.CounterVec
	Commands       *prometheus.CounterVec
	Connections    prometheus.Gauge

	SolarFactor     prometheus.Gauge
	ActivePower     prometheus.Gauge
	DailyEnergy     prometheus.Gauge
	InverterRunning *prometheus.GaugeVec
	InverterPower   *prometheus.GaugeVec
}

var _ plant.Observer = (*Collector)(nil)

func NewCollector() *Collector {
	return &Collector{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks completed.",
		}),
		Reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spontaneous_reports_total",
			Help:      "Spontaneous reports produced by change detection.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spontaneous_dropped_total",
			Help:      "Spontaneous reports no transport accepted.",
		}),
		Interrogations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrogations_total",
			Help:      "Interrogation requests by result.",
		}, []string{"result"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Single commands by result.",
		}, []string{"result"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "master_connections",
			Help:      "Connected IEC 104 masters.",
		}),
		SolarFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solar_factor",
			Help:      "Solar factor of the last tick.",
		}),
		ActivePower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_power_kw",
			Help:      "Plant active power.",
		}),
		DailyEnergy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_energy_kwh",
			Help:      "Energy produced since start-up.",
		}),
		InverterRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_running",
			Help:      "1 when the inverter is running.",
		}, []string{"inverter"}),
		InverterPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inverter_ac_power_kw",
			Help:      "Inverter AC output power.",
		}, []string{"inverter"}),
	}
}

// Register adds every collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.Ticks, c.Reports, c.Dropped, c.Interrogations, c.Commands, c.Connections,
		c.SolarFactor, c.ActivePower, c.DailyEnergy, c.InverterRunning, c.InverterPower,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

func (c *Collector) TickCompleted(s plant.TickStats) {
	c.Ticks.Inc()
	c.Reports.Add(float64(s.Reports))
	c.SolarFactor.Set(s.SolarFactor)
	c.ActivePower.Set(s.TotalPower)
	c.DailyEnergy.Set(s.DailyEnergy)
	for i, inv := range s.Inverters {
		label := strconv.Itoa(i + 1)
		running := 0.0
		if inv.State == plant.Running {
			running = 1
		}
		c.InverterRunning.WithLabelValues(label).Set(running)
		c.InverterPower.WithLabelValues(label).Set(inv.ACPower)
	}
}

func (c *Collector) ReportDropped(plant.Batch, error) {
	c.Dropped.Inc()
}

func (c *Collector) InterrogationHandled(accepted bool, _ int) {
	c.Interrogations.WithLabelValues(result(accepted)).Inc()
}

func (c *Collector) CommandHandled(_ int, accepted bool) {
	c.Commands.WithLabelValues(result(accepted)).Inc()
}

func (c *Collector) ConnectionChanged(ev plant.ConnEvent, _ string) {
	switch ev {
	case plant.ConnOpened:
		c.Connections.Inc()
	case plant.ConnClosed:
		c.Connections.Dec()
	}
}
