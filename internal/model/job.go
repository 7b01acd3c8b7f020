package model

import "time"

// JobStatus is the lifecycle state of a bulk enrichment job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusStopped   JobStatus = "stopped"
)

// ProcessingMode controls how a bulk job fans out over prospects.
type ProcessingMode string

const (
	ModeParallel   ProcessingMode = "parallel"
	ModeSequential ProcessingMode = "sequential"
)

// Valid reports whether m is a known processing mode.
func (m ProcessingMode) Valid() bool {
	return m == ModeParallel || m == ModeSequential
}

// EnrichmentJob tracks one bulk enrichment batch.
type EnrichmentJob struct {
	ID            string         `json:"id"`
	Status        JobStatus      `json:"status"`
	Mode          ProcessingMode `json:"processing_mode"`
	Total         int            `json:"total"`
	Processed     int            `json:"processed"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	StopRequested bool           `json:"stop_requested"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Stopping reports whether a user asked the job to halt.
func (j *EnrichmentJob) Stopping() bool {
	return j.StopRequested || j.Status == JobStatusStopped
}

// JobItemStatus is the outcome of one prospect within a bulk job.
type JobItemStatus string

const (
	JobItemPending     JobItemStatus = "pending"
	JobItemProcessing  JobItemStatus = "processing"
	JobItemSuccess     JobItemStatus = "success"
	JobItemFailed      JobItemStatus = "failed"
	JobItemRateLimited JobItemStatus = "rate_limited"
)

// JobItem tracks one prospect's outcome within a job.
type JobItem struct {
	JobID       string        `json:"job_id"`
	ProspectID  string        `json:"prospect_id"`
	Status      JobItemStatus `json:"status"`
	EmailsFound bool          `json:"emails_found"`
	Message     string        `json:"message,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// JobCounters are additive deltas applied to a job's progress counters.
type JobCounters struct {
	Processed int
	Succeeded int
	Failed    int
}
