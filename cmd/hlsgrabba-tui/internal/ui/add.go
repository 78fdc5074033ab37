package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/iconidentify/hlsgrabba/internal/service"
)

var priorityOptions = []string{"HIGH", "NORMAL", "LOW"}

// createAddPanel creates the form for enqueueing a download.
func (a *App) createAddPanel() {
	a.addForm = tview.NewForm().
		AddInputField("URL", "", 70, nil, nil).
		AddInputField("Output path", "", 70, nil, nil).
		AddInputField("Quality", "", 30, nil, nil).
		AddDropDown("Priority", priorityOptions, 1, nil).
		AddInputField("Headers", "", 70, nil, nil).
		AddInputField("Bandwidth KB/s", "", 10, tview.InputFieldInteger, nil)
	a.addForm.SetBorder(true).SetTitle(" Add Download - Esc to cancel ")

	a.addForm.AddButton("Add", a.submitAddForm)
	a.addForm.AddButton("Clear", a.clearAddForm)
}

func (a *App) formText(label string) string {
	return strings.TrimSpace(a.addForm.GetFormItemByLabel(label).(*tview.InputField).GetText())
}

func (a *App) submitAddForm() {
	req, err := a.addRequest()
	if err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]%v", err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
		defer cancel()

		job, err := a.client.AddJob(ctx, req)
		if err != nil {
			a.updateStatusBar(fmt.Sprintf("[red]Add failed: %v", err))
			return
		}
		a.updateStatusBar(fmt.Sprintf("[green]Added %s", jobName(*job)))
		a.app.QueueUpdateDraw(func() {
			a.clearAddForm()
			a.switchPanel(PanelJobs)
		})
		a.refreshStatus()
	}()
}

// addRequest builds the add request from the form fields.
func (a *App) addRequest() (service.AddJobRequest, error) {
	_, priority := a.addForm.GetFormItemByLabel("Priority").(*tview.DropDown).GetCurrentOption()
	req := service.AddJobRequest{
		URL:        a.formText("URL"),
		OutputPath: a.formText("Output path"),
		Quality:    a.formText("Quality"),
		Priority:   priority,
	}
	if req.URL == "" {
		return req, fmt.Errorf("URL is required")
	}

	headers, err := parseHeaders(a.formText("Headers"))
	if err != nil {
		return req, err
	}
	req.CustomHeaders = headers

	if bw := a.formText("Bandwidth KB/s"); bw != "" {
		n, err := strconv.Atoi(bw)
		if err != nil || n < 0 {
			return req, fmt.Errorf("bandwidth must be a non-negative number")
		}
		req.BandwidthLimitKBps = &n
	}
	return req, nil
}

func (a *App) clearAddForm() {
	for _, label := range []string{"URL", "Output path", "Quality", "Headers", "Bandwidth KB/s"} {
		a.addForm.GetFormItemByLabel(label).(*tview.InputField).SetText("")
	}
	a.addForm.GetFormItemByLabel("Priority").(*tview.DropDown).SetCurrentOption(1)
}
