package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// createJobsPanel creates the queue summary and job table.
func (a *App) createJobsPanel() {
	a.summaryView = tview.NewTextView().
		SetDynamicColors(true)
	a.summaryView.SetBorder(true).SetTitle(" Queue ")

	a.jobsTable = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.jobsTable.SetBorder(true).SetTitle(" Jobs - 's' start, 't' stop queue, 'c' cancel, 'e' requeue, 'd' delete ")

	a.jobsTable.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorDarkCyan))

	// Header row
	headers := []string{"NAME", "STATUS", "PRIORITY", "PROGRESS", "SPEED", "ETA", "RETRIES", "ID"}
	for i, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1)
		if i == 0 {
			cell.SetExpansion(3)
		}
		a.jobsTable.SetCell(0, i, cell)
	}

	a.jobsTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune && event.Key() != tcell.KeyDelete && event.Key() != tcell.KeyEnter {
			return event
		}

		// Queue-wide actions work without a selection
		switch event.Rune() {
		case 's', 'S':
			a.runAction("Queue started", a.client.StartQueue)
			return nil
		case 't', 'T':
			a.updateStatusBar("[yellow]Stopping queue")
			a.runAction("Queue stopped", a.client.StopQueue)
			return nil
		}

		id := a.selectedJobID()
		if id == "" {
			return event
		}

		if event.Key() == tcell.KeyDelete {
			a.runAction("Job removed", func(ctx context.Context) error { return a.client.RemoveJob(ctx, id) })
			return nil
		}
		if event.Key() == tcell.KeyEnter {
			a.showJobDetails(id)
			return nil
		}

		switch event.Rune() {
		case 'c', 'C':
			a.runAction("Job canceled", func(ctx context.Context) error { return a.client.StopJob(ctx, id) })
			return nil
		case 'e', 'E':
			a.runAction("Job requeued", func(ctx context.Context) error { return a.client.RequeueJob(ctx, id) })
			return nil
		case 'd', 'D':
			a.runAction("Job removed", func(ctx context.Context) error { return a.client.RemoveJob(ctx, id) })
			return nil
		}
		return event
	})

	a.jobsView = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.summaryView, 5, 0, false).
		AddItem(a.jobsTable, 0, 1, true)
}

// selectedJobID returns the ID in the selected row, or "" for the header.
func (a *App) selectedJobID() string {
	row, _ := a.jobsTable.GetSelection()
	if row <= 0 {
		return ""
	}
	cell := a.jobsTable.GetCell(row, 7)
	if cell == nil {
		return ""
	}
	if id, ok := cell.GetReference().(string); ok {
		return id
	}
	return ""
}

// updateSummary shows the scheduler state and job counts.
func (a *App) updateSummary() {
	status := a.getStatus()
	if status == nil {
		return
	}

	var b strings.Builder
	if status.Running {
		b.WriteString("[green::b]RUNNING[white::-]")
	} else {
		b.WriteString("[yellow::b]STOPPED[white::-]")
	}
	fmt.Fprintf(&b, "  active %d/%d\n", len(status.Active), status.Concurrency)
	s := status.Stats
	fmt.Fprintf(&b, "[white]queued [white::b]%d[white::-]  downloading [aqua::b]%d[white::-]  completed [green::b]%d[white::-]  failed [red::b]%d[white::-]  canceled [yellow::b]%d[white::-]",
		s.Queued, s.Downloading, s.Completed, s.Failed, s.Canceled)
	a.summaryView.SetText(b.String())
}

// updateJobsTable redraws the job rows, keeping the selection on the same job.
func (a *App) updateJobsTable() {
	selected := a.selectedJobID()

	// Clear existing rows (except header)
	for row := a.jobsTable.GetRowCount() - 1; row > 0; row-- {
		a.jobsTable.RemoveRow(row)
	}

	selectRow := 0
	for i, j := range a.jobs.sorted() {
		row := i + 1
		if j.ID == selected {
			selectRow = row
		}

		color := tcell.GetColor(statusColorName(j.Status))
		a.jobsTable.SetCell(row, 0, tview.NewTableCell(truncateString(jobName(j), 48)).
			SetExpansion(3).
			SetTextColor(tcell.ColorWhite))
		a.jobsTable.SetCell(row, 1, tview.NewTableCell(j.StatusLabel).
			SetExpansion(1).
			SetTextColor(color))
		a.jobsTable.SetCell(row, 2, tview.NewTableCell(j.PriorityLabel).
			SetExpansion(1))
		a.jobsTable.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%s %3d%%", progressBar(j.Progress, 10), j.Progress)).
			SetExpansion(1).
			SetTextColor(color))
		a.jobsTable.SetCell(row, 4, tview.NewTableCell(j.Speed).
			SetExpansion(1))
		a.jobsTable.SetCell(row, 5, tview.NewTableCell(j.ETA).
			SetExpansion(1))
		a.jobsTable.SetCell(row, 6, tview.NewTableCell(fmt.Sprintf("%d/%d", j.RetryCount, j.MaxRetries)).
			SetExpansion(1))
		a.jobsTable.SetCell(row, 7, tview.NewTableCell(truncateString(j.ID, 8)).
			SetExpansion(1).
			SetTextColor(tcell.ColorGray).
			SetReference(j.ID))
	}

	if selectRow > 0 {
		a.jobsTable.Select(selectRow, 0)
	} else if a.jobsTable.GetRowCount() > 1 {
		row, _ := a.jobsTable.GetSelection()
		if row <= 0 || row >= a.jobsTable.GetRowCount() {
			a.jobsTable.Select(1, 0)
		}
	}
}

// showJobDetails shows the selected job in a modal.
func (a *App) showJobDetails(id string) {
	j, ok := a.jobs.get(id)
	if !ok {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", j.URL)
	fmt.Fprintf(&b, "Output: %s\n", j.OutputPath)
	fmt.Fprintf(&b, "Status: %s (%d%%)\n", j.StatusLabel, j.Progress)
	if j.Quality != "" {
		fmt.Fprintf(&b, "Quality: %s\n", j.Quality)
	}
	if j.BandwidthLimitKBps > 0 {
		fmt.Fprintf(&b, "Bandwidth limit: %d KB/s\n", j.BandwidthLimitKBps)
	}
	if j.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nError: %s\n", j.ErrorMessage)
	}

	modal := tview.NewModal().
		SetText(b.String()).
		AddButtons([]string{"Close"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage("details")
			a.app.SetFocus(a.jobsTable)
		})
	a.pages.AddPage("details", modal, true, true)
	a.app.SetFocus(modal)
}
