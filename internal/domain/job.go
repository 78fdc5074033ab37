package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// NewJobID returns a fresh random job identifier.
func NewJobID() JobID {
	return JobID(uuid.New().String())
}

// Priority is the scheduling priority of a job. The value is the stable
// machine name that is persisted and compared; Label is for display only.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// Rank returns the numeric scheduling rank. Lower ranks run first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Label returns the human readable name of the priority.
func (p Priority) Label() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityNormal:
		return "Normal"
	case PriorityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// ParsePriority converts a machine name (case-insensitive) into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "QUEUED"
	JobStatusDownloading JobStatus = "DOWNLOADING"
	JobStatusPaused      JobStatus = "PAUSED"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusFailed      JobStatus = "FAILED"
	JobStatusCanceled    JobStatus = "CANCELED"
)

// Label returns the human readable name of the status.
func (s JobStatus) Label() string {
	switch s {
	case JobStatusQueued:
		return "Queued"
	case JobStatusDownloading:
		return "Downloading"
	case JobStatusPaused:
		return "Paused"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusDownloading, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsTerminal returns true once a run has ended.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}

// ParseJobStatus converts a machine name (case-insensitive) into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Defaults applied to new jobs and to records with missing fields.
const (
	DefaultQuality    = "best"
	DefaultMaxRetries = 3
)

// Job is a single queued remux download.
//
// URL, OutputPath and Priority never change after creation. Speed, ETA,
// ErrorMessage and RetryCount describe the current run only and are never
// persisted.
type Job struct {
	ID                 JobID
	URL                string
	OutputPath         string
	Quality            string
	Priority           Priority
	CustomHeaders      map[string]string
	BandwidthLimitKBps int
	MaxRetries         int

	Status   JobStatus
	Progress int

	Speed        string
	ETA          string
	ErrorMessage string
	RetryCount   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob creates a queued job with default settings.
func NewJob(url, outputPath string) *Job {
	now := time.Now()
	return &Job{
		ID:            NewJobID(),
		URL:           url,
		OutputPath:    outputPath,
		Quality:       DefaultQuality,
		Priority:      PriorityNormal,
		CustomHeaders: map[string]string{},
		MaxRetries:    DefaultMaxRetries,
		Status:        JobStatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the fields a caller controls.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.URL) == "" {
		return ErrEmptyURL
	}
	if strings.TrimSpace(j.OutputPath) == "" {
		return ErrEmptyOutputPath
	}
	if !j.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, j.Priority)
	}
	if j.BandwidthLimitKBps < 0 {
		return fmt.Errorf("%w: bandwidth limit must not be negative: %d", ErrInvalidJob, j.BandwidthLimitKBps)
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative: %d", ErrInvalidJob, j.MaxRetries)
	}
	return nil
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	c.CustomHeaders = maps.Clone(j.CustomHeaders)
	if c.CustomHeaders == nil {
		c.CustomHeaders = map[string]string{}
	}
	return &c
}

// MarkDownloading claims the job for a run.
func (j *Job) MarkDownloading() {
	j.Status = JobStatusDownloading
	j.Progress = 0
	j.Speed = ""
	j.ETA = ""
	j.ErrorMessage = ""
	j.RetryCount = 0
	j.UpdatedAt = time.Now()
}

// Requeue makes a finished job eligible for scheduling again.
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.Progress = 0
	j.Speed = ""
	j.ETA = ""
	j.ErrorMessage = ""
	j.RetryCount = 0
	j.UpdatedAt = time.Now()
}

// Apply merges a partial update into the job.
func (j *Job) Apply(u JobUpdate) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Progress != nil {
		j.Progress = clampProgress(*u.Progress)
	}
	if u.Speed != nil {
		j.Speed = *u.Speed
	}
	if u.ETA != nil {
		j.ETA = *u.ETA
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = *u.ErrorMessage
	}
	if u.RetryCount != nil {
		j.RetryCount = *u.RetryCount
	}
	j.UpdatedAt = time.Now()
}

// JobUpdate is a partial set of run-state fields. Nil fields are unchanged.
type JobUpdate struct {
	Status       *JobStatus `json:"status,omitempty"`
	Progress     *int       `json:"progress,omitempty"`
	Speed        *string    `json:"speed,omitempty"`
	ETA          *string    `json:"eta,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	RetryCount   *int       `json:"retryCount,omitempty"`
}

// WithStatus returns a copy of u that sets the status.
func (u JobUpdate) WithStatus(s JobStatus) JobUpdate {
	u.Status = &s
	return u
}

// WithProgress returns a copy of u that sets progress, clamped to 0..100.
func (u JobUpdate) WithProgress(p int) JobUpdate {
	p = clampProgress(p)
	u.Progress = &p
	return u
}

// WithSpeed returns a copy of u that sets the speed text.
func (u JobUpdate) WithSpeed(s string) JobUpdate {
	u.Speed = &s
	return u
}

// WithETA returns a copy of u that sets the ETA text.
func (u JobUpdate) WithETA(s string) JobUpdate {
	u.ETA = &s
	return u
}

// WithError returns a copy of u that sets the error message.
func (u JobUpdate) WithError(msg string) JobUpdate {
	u.ErrorMessage = &msg
	return u
}

// WithRetryCount returns a copy of u that sets the retry count.
func (u JobUpdate) WithRetryCount(n int) JobUpdate {
	u.RetryCount = &n
	return u
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
