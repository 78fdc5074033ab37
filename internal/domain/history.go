package domain

import "time"

// JobOutcome records how a job run ended.
type JobOutcome struct {
	JobID        JobID     `json:"job_id"`
	URL          string    `json:"url"`
	OutputPath   string    `json:"output_path"`
	Quality      string    `json:"quality"`
	Priority     Priority  `json:"priority"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewJobOutcome captures the terminal state of a job.
func NewJobOutcome(j *Job) JobOutcome {
	return JobOutcome{
		JobID:        j.ID,
		URL:          j.URL,
		OutputPath:   j.OutputPath,
		Quality:      j.Quality,
		Priority:     j.Priority,
		Status:       j.Status,
		Attempts:     j.RetryCount + 1,
		ErrorMessage: j.ErrorMessage,
		FinishedAt:   time.Now(),
	}
}
