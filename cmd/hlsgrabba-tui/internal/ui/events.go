package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// createEventsPanel creates the live event log.
func (a *App) createEventsPanel() {
	a.eventsView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(a.cfg.EventLines)
	a.eventsView.SetBorder(true).SetTitle(" Events - Press 'c' clear, 'p' pause scroll, 'b' back ")

	a.eventsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'c', 'C':
			a.eventsView.Clear()
			return nil
		case 'p', 'P':
			// Pause/resume auto-scroll
			a.eventsAutoScroll = !a.eventsAutoScroll
			if a.eventsAutoScroll {
				a.eventsView.ScrollToEnd()
				a.updateStatusBar("[green]Event auto-scroll enabled")
			} else {
				a.updateStatusBar("[yellow]Event auto-scroll paused")
			}
			return nil
		case 'b', 'B':
			a.switchPanel(PanelJobs)
			return nil
		}
		return event
	})
}
