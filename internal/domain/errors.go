package domain

import "errors"

// Domain errors.
var (
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no queued jobs to run.
	ErrNoJobs = errors.New("no jobs available")

	// ErrDuplicateJob is returned when a job with the same ID is already queued.
	ErrDuplicateJob = errors.New("job already exists")

	// ErrEmptyURL is returned when a job has no source URL.
	ErrEmptyURL = errors.New("job URL cannot be empty")

	// ErrEmptyOutputPath is returned when a job has no destination path.
	ErrEmptyOutputPath = errors.New("job output path cannot be empty")

	// ErrInvalidJob is returned when a job field is out of range.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidPriority is returned for an unknown priority name.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidStatus is returned for an unknown status name.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrJobActive is returned when an operation needs a job that is not running.
	ErrJobActive = errors.New("job is downloading")

	// ErrJobNotRunning is returned when stopping a job that is not downloading.
	ErrJobNotRunning = errors.New("job is not running")

	// ErrQueueRunning is returned when starting a queue that is already running.
	ErrQueueRunning = errors.New("queue is already running")

	// ErrQueueNotRunning is returned when stopping a queue that is idle.
	ErrQueueNotRunning = errors.New("queue is not running")

	// ErrCanceled is returned when a job run was stopped on request.
	ErrCanceled = errors.New("canceled")

	// ErrInvalidSettings is returned when user settings fail validation.
	ErrInvalidSettings = errors.New("invalid settings")
)

// ErrorKind classifies failures of the orchestration layer.
type ErrorKind string

const (
	KindDurationProbe       ErrorKind = "duration_probe_failed"
	KindProcessLaunch       ErrorKind = "process_launch_failed"
	KindProcessExit         ErrorKind = "process_exit_nonzero"
	KindCanceled            ErrorKind = "canceled"
	KindQueuePersistence    ErrorKind = "queue_persistence_failed"
	KindSettingsPersistence ErrorKind = "settings_persistence_failed"
)

// JobError wraps an error with job context and a failure kind.
type JobError struct {
	JobID JobID
	Kind  ErrorKind
	Op    string
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return e.Op + " [" + e.JobID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError.
func NewJobError(jobID JobID, kind ErrorKind, op string, err error) *JobError {
	return &JobError{
		JobID: jobID,
		Kind:  kind,
		Op:    op,
		Err:   err,
	}
}

// IsKind reports whether any JobError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var je *JobError
	for err != nil {
		if !errors.As(err, &je) {
			return false
		}
		if je.Kind == kind {
			return true
		}
		err = je.Err
	}
	return false
}
