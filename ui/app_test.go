package ui

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvsim104/config"
	"pvsim104/plant"
)

func newTestApp(t *testing.T) (*App, *plant.Station) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	st := plant.NewStation(plant.Options{Seed: 1, Logger: l})
	return NewApp(config.Default(), st, nil, nil), st
}

func TestInverterGrid(t *testing.T) {
	a, st := newTestApp(t)
	st.Registry().SetValue(plant.InverterAddress(1, plant.FieldACPower), 31.25)
	a.refresh()

	assert.Equal(t, plant.InverterFieldCount+1, a.dataTable.GetRowCount())
	assert.Equal(t, plant.InverterCount+1, a.dataTable.GetColumnCount())
	assert.Equal(t, "INV2", a.dataTable.GetCell(0, 2).Text)
	assert.Equal(t, "DC_Voltage", a.dataTable.GetCell(1, 0).Text)
	assert.Equal(t, "AC_Power", a.dataTable.GetCell(plant.FieldACPower+1, 0).Text)
	assert.Equal(t, "31.25", a.dataTable.GetCell(plant.FieldACPower+1, 2).Text)
}

func TestPointListTabs(t *testing.T) {
	a, st := newTestApp(t)

	a.switchTab(plant.GroupEnvironment)
	require.Equal(t, 7, a.dataTable.GetRowCount())
	assert.Equal(t, "100", a.dataTable.GetCell(1, 0).Text)
	assert.Equal(t, "800.00", a.dataTable.GetCell(1, 2).Text)
	assert.Equal(t, "-", a.dataTable.GetCell(1, 4).Text)

	st.Registry().SetStatus(plant.StatusAddress(2), false)
	a.switchTab(plant.GroupStatus)
	require.Equal(t, 4, a.dataTable.GetRowCount())
	assert.Equal(t, "1003", a.dataTable.GetCell(3, 0).Text)
	assert.Contains(t, a.dataTable.GetCell(3, 2).Text, "STOPPED")
	assert.Contains(t, a.dataTable.GetCell(1, 2).Text, "RUNNING")
	assert.Contains(t, a.tabBar.GetText(true), "F4 Status")
}

func TestStatusBar(t *testing.T) {
	a, _ := newTestApp(t)
	a.mu.Lock()
	a.last = plant.TickStats{SolarFactor: 0.5, TotalPower: 48.5, DailyEnergy: 3}
	a.mu.Unlock()
	a.updateStatusBar()

	text := a.statusBar.GetText(true)
	assert.Contains(t, text, "Masters: 0")
	assert.Contains(t, text, "0.0.0.0:2404")
	assert.Contains(t, text, "Power: 48.5 kW")
}

func TestLoggerHook(t *testing.T) {
	view := tview.NewTextView().SetDynamicColors(true)
	hook := NewLogger(view)

	l := logrus.New()
	l.SetOutput(io.Discard)
	l.AddHook(hook)

	l.WithFields(logrus.Fields{"component": "station", "ioa": 2002}).Info("command accepted")
	l.Debug("hidden")
	l.Warn("[not a color tag]")

	text := view.GetText(true)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Info:")
	assert.Contains(t, lines[0], "command accepted ioa=2002")
	assert.NotContains(t, lines[0], "component")
	assert.Contains(t, lines[1], "not a color tag")

	hook.Level = logrus.DebugLevel
	assert.Contains(t, hook.Levels(), logrus.DebugLevel)
	hook.Clear()
	assert.Empty(t, view.GetText(true))
}

func TestDrawRequestsNeverBlock(t *testing.T) {
	a, _ := newTestApp(t)
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.AddHook(a.Logger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			l.WithField("ioa", 2002).Info("command accepted")
			a.TickCompleted(plant.TickStats{TotalPower: float64(i)})
			a.ConnectionChanged(plant.ConnOpened, "127.0.0.1:50000")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("log writes or tick updates blocked without a running console")
	}
	assert.Len(t, a.redraw, 1)
	assert.Contains(t, a.logView.GetText(true), "command accepted")
}
