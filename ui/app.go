package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"pvsim104/config"
	"pvsim104/plant"
)

// Station is the part of plant.Station the console drives.
type Station interface {
	Snapshot() []plant.Point
	Command(addr int, on bool) plant.CommandResult
}

// SessionCounter reports connected IEC 104 masters.
type SessionCounter interface {
	Sessions() int
}

// App is the operator console
type App struct {
	plant.NopObserver

	app       *tview.Application
	config    *config.Config
	station   Station
	sessions  SessionCounter
	onStop    func()
	logger    *Logger
	pages     *tview.Pages
	dataTable *tview.Table
	logView   *tview.TextView
	tabBar    *tview.TextView
	statusBar *tview.TextView

	mu         sync.Mutex
	currentTab plant.Group
	last       plant.TickStats

	// redraw coalesces draw requests; drawLoop turns them into queued updates
	redraw   chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
}

var _ plant.Observer = (*App)(nil)

// NewApp creates the console. onStop is called when the operator quits.
func NewApp(cfg *config.Config, station Station, sessions SessionCounter, onStop func()) *App {
	app := &App{
		app:        tview.NewApplication(),
		config:     cfg,
		station:    station,
		sessions:   sessions,
		onStop:     onStop,
		currentTab: plant.GroupInverter,
		redraw:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}

	app.setupUI()

	return app
}

// Logger returns the hook that feeds the log pane.
func (a *App) Logger() *Logger {
	return a.logger
}

func (a *App) setupUI() {
	a.pages = tview.NewPages()

	a.setupLogView()
	a.logger = NewLogger(a.logView)

	a.setupDataTable()
	a.setupTabBar()
	a.setupStatusBar()

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.tabBar, 1, 1, false).
		AddItem(a.dataTable, 0, 10, true).
		AddItem(a.logView, 8, 1, false).
		AddItem(a.statusBar, 1, 1, false)

	a.pages.AddPage("main", flex, true, true)

	a.setupKeyBindings()
	a.refresh()
}

func (a *App) setupDataTable() {
	a.dataTable = tview.NewTable().SetBorders(true)
	a.dataTable.SetBorder(true).SetTitle("Points")
	a.dataTable.SetFixed(1, 0)
	a.dataTable.SetSelectable(true, false)

	a.dataTable.SetSelectedFunc(func(row, _ int) {
		if a.tab() != plant.GroupStatus || row == 0 {
			return
		}
		a.showCommandDialog(row - 1)
	})
}

func (a *App) setupTabBar() {
	a.tabBar = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWrap(false)
	a.updateTabBar()
}

func (a *App) setupLogView() {
	a.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetMaxLines(500).
		SetChangedFunc(a.requestDraw)
	a.logView.SetBorder(true).SetTitle("Logs")
}

func (a *App) setupStatusBar() {
	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.updateStatusBar()
}

func (a *App) setupKeyBindings() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF1:
			a.switchTab(plant.GroupInverter)
		case tcell.KeyF2:
			a.switchTab(plant.GroupEnvironment)
		case tcell.KeyF3:
			a.switchTab(plant.GroupTotals)
		case tcell.KeyF4:
			a.switchTab(plant.GroupStatus)
		case tcell.KeyEscape:
			if a.pages.HasPage("dialog") {
				a.pages.RemovePage("dialog")
				return nil
			}
			a.Stop()
		default:
			return event
		}
		return nil
	})
}

func (a *App) tab() plant.Group {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTab
}

func (a *App) switchTab(tab plant.Group) {
	a.mu.Lock()
	a.currentTab = tab
	a.mu.Unlock()

	a.updateTabBar()
	a.refresh()
}

// refresh redraws the table from a fresh snapshot. Must run on the UI goroutine
// once the application is running.
func (a *App) refresh() {
	tab := a.tab()
	var points []plant.Point
	for _, p := range a.station.Snapshot() {
		if p.Group == tab {
			points = append(points, p)
		}
	}

	a.dataTable.Clear()
	if tab == plant.GroupInverter {
		fillInverterGrid(a.dataTable, points)
	} else {
		fillPointList(a.dataTable, points)
	}
	a.updateStatusBar()
}

func header(t *tview.Table, titles ...string) {
	for col, title := range titles {
		t.SetCell(0, col, tview.NewTableCell(title).
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetTextColor(tcell.ColorYellow))
	}
}

// fillInverterGrid lays out one row per field and one column per inverter.
func fillInverterGrid(t *tview.Table, points []plant.Point) {
	titles := []string{"Field"}
	for inv := 0; inv < plant.InverterCount; inv++ {
		titles = append(titles, fmt.Sprintf("INV%d", inv+1))
	}
	header(t, titles...)

	for _, p := range points {
		offset := p.Address - plant.InverterBaseAddress
		inv, field := offset/plant.InverterFieldCount, offset%plant.InverterFieldCount
		if inv == 0 {
			t.SetCell(field+1, 0, tview.NewTableCell(fieldLabel(p)).SetTextColor(tcell.ColorGreen))
		}
		t.SetCell(field+1, inv+1, tview.NewTableCell(formatValue(p)).SetAlign(tview.AlignRight))
	}
}

func fillPointList(t *tview.Table, points []plant.Point) {
	header(t, "IOA", "Name", "Value", "Unit", "Last report")
	for i, p := range points {
		row := i + 1
		t.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", p.Address)))
		t.SetCell(row, 1, tview.NewTableCell(p.Name).SetTextColor(tcell.ColorGreen))
		t.SetCell(row, 2, tview.NewTableCell(formatValue(p)).SetAlign(tview.AlignRight))
		t.SetCell(row, 3, tview.NewTableCell(p.Unit))
		last := "-"
		if !p.LastReportTime.IsZero() {
			last = p.LastReportTime.Format("15:04:05")
		}
		t.SetCell(row, 4, tview.NewTableCell(last))
	}
}

// fieldLabel strips the inverter prefix from a point name.
func fieldLabel(p plant.Point) string {
	if _, field, ok := strings.Cut(p.Name, "_"); ok {
		return field
	}
	return p.Name
}

func formatValue(p plant.Point) string {
	if p.Kind == plant.Analog {
		return fmt.Sprintf("%.2f", p.Value)
	}
	if p.State {
		return "[green]RUNNING"
	}
	return "[red]STOPPED"
}

func (a *App) updateTabBar() {
	tab := a.tab()
	a.tabBar.Clear()
	fmt.Fprintf(a.tabBar, "%s F1 Inverters %s | %s F2 Environment %s | %s F3 Totals %s | %s F4 Status %s",
		getTabHighlight(tab == plant.GroupInverter),
		getTabHighlight(false),
		getTabHighlight(tab == plant.GroupEnvironment),
		getTabHighlight(false),
		getTabHighlight(tab == plant.GroupTotals),
		getTabHighlight(false),
		getTabHighlight(tab == plant.GroupStatus),
		getTabHighlight(false))
}

func (a *App) updateStatusBar() {
	a.mu.Lock()
	last := a.last
	a.mu.Unlock()

	masters := 0
	if a.sessions != nil {
		masters = a.sessions.Sessions()
	}
	color := "red"
	if masters > 0 {
		color = "green"
	}
	a.statusBar.Clear()
	fmt.Fprintf(a.statusBar, "Masters: [%s]%d[white] | Listen: %s | CA: %d | Solar: %.2f | Power: %.1f kW | Today: %.1f kWh",
		color, masters, a.config.Server.Address(), a.config.Server.CommonAddress,
		last.SolarFactor, last.TotalPower, last.DailyEnergy)
}

func (a *App) showCommandDialog(inv int) {
	if inv < 0 || inv >= plant.InverterCount {
		return
	}
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(fmt.Sprintf("Inverter %d", inv+1))

	addr := plant.CommandAddress(inv)
	form.AddInputField("IOA", fmt.Sprintf("%d", addr), 10, nil, nil).
		SetFieldBackgroundColor(tcell.ColorDarkGray)

	running := true
	for _, p := range a.station.Snapshot() {
		if p.Address == plant.StatusAddress(inv) {
			running = p.State
		}
	}
	form.AddCheckbox("Running", running, func(checked bool) {
		running = checked
	})

	form.AddButton("Send", func() {
		res := a.station.Command(addr, running)
		if !res.Accepted {
			a.logger.Errorf("command to %d rejected", addr)
		}
		a.pages.RemovePage("dialog")
		a.refresh()
	})
	form.AddButton("Cancel", func() {
		a.pages.RemovePage("dialog")
	})

	modal := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(form, 40, 1, true).
			AddItem(nil, 0, 1, false),
			10, 1, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("dialog", modal, true, true)
}

// requestDraw never blocks, so it is safe from the UI goroutine and from
// the station's tick.
func (a *App) requestDraw() {
	select {
	case a.redraw <- struct{}{}:
	default:
	}
}

func (a *App) drawLoop() {
	for {
		select {
		case <-a.quit:
			return
		case <-a.redraw:
			a.app.QueueUpdateDraw(a.refresh)
		}
	}
}

// TickCompleted refreshes the console after every simulation step.
func (a *App) TickCompleted(s plant.TickStats) {
	a.mu.Lock()
	a.last = s
	a.mu.Unlock()
	a.requestDraw()
}

func (a *App) ConnectionChanged(plant.ConnEvent, string) {
	a.requestDraw()
}

// Run blocks until the operator quits or Stop is called.
func (a *App) Run() error {
	go a.drawLoop()
	defer a.stopOnce.Do(func() { close(a.quit) })
	return a.app.SetRoot(a.pages, true).EnableMouse(true).Run()
}

func (a *App) Stop() {
	a.stopOnce.Do(func() { close(a.quit) })
	a.app.Stop()
	if a.onStop != nil {
		a.onStop()
	}
}

// getTabHighlight returns the highlight formatting for a tab
func getTabHighlight(active bool) string {
	if active {
		return "[black:white]"
	}
	return "[white:black]"
}
