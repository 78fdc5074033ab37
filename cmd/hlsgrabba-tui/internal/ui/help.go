package ui

import (
	"github.com/rivo/tview"
)

// createHelpPanel creates the help panel.
func (a *App) createHelpPanel() {
	a.helpView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.helpView.SetBorder(true).SetTitle(" Help ")

	helpText := `[yellow::b]hlsgrabba TUI[white]

Watches and drives a running hlsgrabba daemon over its HTTP API.
Job state follows the daemon's event stream and is re-read every few
seconds.

[yellow::b]GLOBAL NAVIGATION[white]
[cyan]1[white] or [cyan]F1[white]     Jobs           - Queue summary and job list
[cyan]2[white] or [cyan]F2[white]     Events         - Live event log
[cyan]3[white] or [cyan]F3[white]     Add            - Enqueue a download
[cyan]?[white]            Help           - This help screen
[cyan]r[white]            Refresh        - Re-read jobs and queue status
[cyan]q[white]            Quit           - Exit the application
[cyan]Escape[white]       Jobs           - Return to the job list

[yellow::b]JOBS PANEL[white]
[cyan]s[white]            Start the queue
[cyan]t[white]            Stop the queue (running jobs are canceled)
[cyan]Enter[white]        Show job details
[cyan]c[white]            Cancel the selected job
[cyan]e[white]            Requeue a failed or canceled job
[cyan]d[white] / [cyan]Delete[white]   Remove the selected job

[yellow::b]EVENTS PANEL[white]
[cyan]c[white]            Clear the log
[cyan]p[white]            Pause or resume auto-scroll
[cyan]b[white]            Back to jobs

[yellow::b]ADD PANEL[white]
[cyan]Tab[white]          Move between fields
[cyan]Enter[white]        Activate the selected button
Headers are entered as [white::b]Name: value[white::-] pairs separated by ';'.
Empty fields use the daemon's defaults.

[yellow::b]ENVIRONMENT VARIABLES[white]
[cyan]HLSGRABBA_URL[white]              Daemon address (default: http://127.0.0.1:9848)
[cyan]HLSGRABBA_API_KEY[white]          API key, if the daemon requires one
[cyan]HLSGRABBA_STATUS_REFRESH[white]   Status refresh interval (default: 5s)
[cyan]HLSGRABBA_RECONNECT_DELAY[white]  Event stream reconnect delay (default: 3s)

[dim]Press any navigation key to return to a panel[white]
`

	a.helpView.SetText(helpText)
}
