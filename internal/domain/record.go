package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Record is the persisted form of a Job. Enum fields hold machine names.
type Record struct {
	ID                 string            `json:"id"`
	URL                string            `json:"url"`
	OutputPath         string            `json:"outputPath"`
	Quality            string            `json:"quality,omitempty"`
	Priority           string            `json:"priority,omitempty"`
	CustomHeaders      map[string]string `json:"customHeaders,omitempty"`
	BandwidthLimitKBps int               `json:"bandwidthLimitKBps"`
	MaxRetries         *int              `json:"maxRetries,omitempty"`
	Status             string            `json:"status,omitempty"`
	Progress           int               `json:"progress"`
}

// Serialize converts the job into its persisted form.
func (j *Job) Serialize() Record {
	retries := j.MaxRetries
	return Record{
		ID:                 j.ID.String(),
		URL:                j.URL,
		OutputPath:         j.OutputPath,
		Quality:            j.Quality,
		Priority:           string(j.Priority),
		CustomHeaders:      maps.Clone(j.CustomHeaders),
		BandwidthLimitKBps: j.BandwidthLimitKBps,
		MaxRetries:         &retries,
		Status:             string(j.Status),
		Progress:           j.Progress,
	}
}

// Deserialize rebuilds a Job from a record. Missing optional fields take
// their defaults; an unknown priority or status is an error. Transient run
// state always starts empty.
func Deserialize(r Record) (*Job, error) {
	if strings.TrimSpace(r.URL) == "" {
		return nil, ErrEmptyURL
	}
	if strings.TrimSpace(r.OutputPath) == "" {
		return nil, ErrEmptyOutputPath
	}

	priority := PriorityNormal
	if r.Priority != "" {
		p, err := ParsePriority(r.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	status := JobStatusQueued
	if r.Status != "" {
		s, err := ParseJobStatus(r.Status)
		if err != nil {
			return nil, err
		}
		status = s
	}

	id := JobID(r.ID)
	if id == "" {
		id = NewJobID()
	}

	quality := r.Quality
	if quality == "" {
		quality = DefaultQuality
	}

	retries := DefaultMaxRetries
	if r.MaxRetries != nil {
		retries = *r.MaxRetries
	}
	if retries < 0 {
		return nil, fmt.Errorf("max retries must not be negative: %d", retries)
	}

	headers := maps.Clone(r.CustomHeaders)
	if headers == nil {
		headers = map[string]string{}
	}

	bandwidth := r.BandwidthLimitKBps
	if bandwidth < 0 {
		bandwidth = 0
	}

	now := time.Now()
	return &Job{
		ID:                 id,
		URL:                r.URL,
		OutputPath:         r.OutputPath,
		Quality:            quality,
		Priority:           priority,
		CustomHeaders:      headers,
		BandwidthLimitKBps: bandwidth,
		MaxRetries:         retries,
		Status:             status,
		Progress:           clampProgress(r.Progress),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}
