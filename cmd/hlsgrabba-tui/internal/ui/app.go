// Package ui provides the terminal user interface for hlsgrabba.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iconidentify/hlsgrabba/cmd/hlsgrabba-tui/internal/client"
	"github.com/iconidentify/hlsgrabba/cmd/hlsgrabba-tui/internal/config"
	"github.com/iconidentify/hlsgrabba/internal/domain"
	"github.com/iconidentify/hlsgrabba/internal/service"
)

// Panel represents a UI panel type.
type Panel int

const (
	PanelJobs Panel = iota
	PanelEvents
	PanelAdd
	PanelHelp
)

// App is the main TUI application.
type App struct {
	app          *tview.Application
	pages        *tview.Pages
	cfg          *config.Config
	client       *client.Client
	jobs         *jobStore
	status       *service.QueueStatus
	statusMu     sync.RWMutex
	currentPanel Panel
	ctx          context.Context
	cancel       context.CancelFunc

	// UI components
	mainFlex    *tview.Flex
	header      *tview.TextView
	footer      *tview.TextView
	statusBar   *tview.TextView
	jobsView    *tview.Flex
	summaryView *tview.TextView
	jobsTable   *tview.Table
	eventsView  *tview.TextView
	addForm     *tview.Form
	helpView    *tview.TextView

	// State
	eventsAutoScroll bool
	refreshTicker    *time.Ticker
}

// NewApp creates a new TUI application.
func NewApp(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:              tview.NewApplication(),
		pages:            tview.NewPages(),
		cfg:              cfg,
		client:           client.NewClient(cfg.ServerURL, cfg.APIKey),
		jobs:             newJobStore(),
		ctx:              ctx,
		cancel:           cancel,
		eventsAutoScroll: true,
	}

	a.setupUI()
	return a, nil
}

// setupUI initializes all UI components.
func (a *App) setupUI() {
	// Header
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)
	a.updateHeader()

	// Footer with keybindings
	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[yellow]1[white]:Jobs [yellow]2[white]:Events [yellow]3[white]:Add [yellow]?[white]:Help [yellow]r[white]:Refresh [yellow]q[white]:Quit")
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	// Status bar
	a.statusBar = tview.NewTextView().
		SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tcell.ColorDarkGreen)

	// Create panels
	a.createJobsPanel()
	a.createEventsPanel()
	a.createAddPanel()
	a.createHelpPanel()

	// Add panels to pages
	a.pages.AddPage("jobs", a.jobsView, true, true)
	a.pages.AddPage("events", a.eventsView, true, false)
	a.pages.AddPage("add", a.addForm, true, false)
	a.pages.AddPage("help", a.helpView, true, false)

	// Main layout
	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false).
		AddItem(a.footer, 1, 0, false)

	// Global key bindings
	a.app.SetInputCapture(a.handleGlobalKeys)

	a.app.SetRoot(a.mainFlex, true)
}

// handleGlobalKeys handles global keyboard shortcuts.
func (a *App) handleGlobalKeys(event *tcell.EventKey) *tcell.EventKey {
	// Don't intercept runes while the add form has focus
	if a.currentPanel == PanelAdd {
		switch event.Key() {
		case tcell.KeyEscape:
			a.switchPanel(PanelJobs)
			return nil
		case tcell.KeyF1:
			a.switchPanel(PanelJobs)
			return nil
		case tcell.KeyF2:
			a.switchPanel(PanelEvents)
			return nil
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case '1':
			a.switchPanel(PanelJobs)
			return nil
		case '2':
			a.switchPanel(PanelEvents)
			return nil
		case '3', 'a', 'A':
			a.switchPanel(PanelAdd)
			return nil
		case '?':
			a.switchPanel(PanelHelp)
			return nil
		case 'q', 'Q':
			a.Stop()
			return nil
		case 'r', 'R':
			go a.refreshStatus()
			return nil
		}
	case tcell.KeyF1:
		a.switchPanel(PanelJobs)
		return nil
	case tcell.KeyF2:
		a.switchPanel(PanelEvents)
		return nil
	case tcell.KeyF3:
		a.switchPanel(PanelAdd)
		return nil
	case tcell.KeyEscape:
		a.switchPanel(PanelJobs)
		return nil
	}

	return event
}

// switchPanel shows the given panel.
func (a *App) switchPanel(panel Panel) {
	a.currentPanel = panel

	switch panel {
	case PanelJobs:
		a.pages.SwitchToPage("jobs")
		a.app.SetFocus(a.jobsTable)
	case PanelEvents:
		a.pages.SwitchToPage("events")
		a.app.SetFocus(a.eventsView)
	case PanelAdd:
		a.pages.SwitchToPage("add")
		a.app.SetFocus(a.addForm)
	case PanelHelp:
		a.pages.SwitchToPage("help")
	}

	a.updateHeader()
}

// updateHeader updates the header with current panel name.
func (a *App) updateHeader() {
	var panelName string
	switch a.currentPanel {
	case PanelJobs:
		panelName = "Jobs"
	case PanelEvents:
		panelName = "Events"
	case PanelAdd:
		panelName = "Add Download"
	case PanelHelp:
		panelName = "Help"
	}

	a.header.SetText(fmt.Sprintf("\n[white::b]hlsgrabba[white] - [yellow]%s[white] | Server: [green]%s",
		panelName, a.cfg.ServerURL))
}

// updateStatusBar updates the status bar with current status.
func (a *App) updateStatusBar(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetText(fmt.Sprintf(" %s | %s", msg, time.Now().Format("15:04:05")))
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	// Start background refresh
	go a.startBackgroundRefresh()

	// Event stream with reconnect
	go a.streamEvents()

	// Initial status fetch
	go a.refreshStatus()

	return a.app.Run()
}

// Stop stops the TUI application.
func (a *App) Stop() {
	a.cancel()
	if a.refreshTicker != nil {
		a.refreshTicker.Stop()
	}
	a.app.Stop()
}

// startBackgroundRefresh starts periodic status refresh. Events keep the
// view current between refreshes; this catches anything a dropped stream
// missed.
func (a *App) startBackgroundRefresh() {
	a.refreshTicker = time.NewTicker(a.cfg.StatusRefresh)
	defer a.refreshTicker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.refreshTicker.C:
			a.refreshStatus()
		}
	}
}

// refreshStatus fetches the job list and queue status.
func (a *App) refreshStatus() {
	ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
	defer cancel()

	jobs, err := a.client.ListJobs(ctx)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error: %v", err))
		return
	}
	status, err := a.client.QueueStatus(ctx)
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Error: %v", err))
		return
	}

	a.jobs.replace(jobs)
	a.statusMu.Lock()
	a.status = status
	a.statusMu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.updateSummary()
		a.updateJobsTable()
	})
}

// streamEvents follows the daemon's event stream, reconnecting and resuming
// from the last sequence number seen.
func (a *App) streamEvents() {
	var last uint64
	for {
		events, err := a.client.Stream(a.ctx, last)
		if err != nil {
			a.updateStatusBar(fmt.Sprintf("[red]Event stream: %v", err))
		} else {
			a.updateStatusBar("[green]Connected")
			for ev := range events {
				if ev.Seq > last {
					last = ev.Seq
				}
				a.handleEvent(ev)
			}
			if a.ctx.Err() == nil {
				a.updateStatusBar("[yellow]Event stream closed, reconnecting")
			}
		}

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(a.cfg.ReconnectDelay):
		}
	}
}

func (a *App) handleEvent(ev domain.Event) {
	name := ""
	if j, ok := a.jobs.get(ev.JobID.String()); ok {
		name = jobName(j)
	}
	if line, ok := formatEvent(ev, name); ok {
		a.app.QueueUpdateDraw(func() {
			fmt.Fprintln(a.eventsView, line)
			if a.eventsAutoScroll {
				a.eventsView.ScrollToEnd()
			}
		})
	}

	switch ev.Type {
	case domain.EventItemUpdated:
		if !a.jobs.apply(ev) {
			go a.refreshStatus()
			return
		}
		a.app.QueueUpdateDraw(a.updateJobsTable)
	case domain.EventLog:
	default:
		go a.refreshStatus()
	}
}

// getStatus returns the current queue status.
func (a *App) getStatus() *service.QueueStatus {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

// runAction calls the daemon off the UI goroutine and reports the outcome.
func (a *App) runAction(desc string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.updateStatusBar(fmt.Sprintf("[red]%s failed: %v", desc, err))
			return
		}
		a.updateStatusBar(fmt.Sprintf("[green]%s", desc))
		a.refreshStatus()
	}()
}
