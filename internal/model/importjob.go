package model

import "time"

// ImportStatus is the lifecycle state of a CSV import job.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusCancelled  ImportStatus = "cancelled"
	ImportStatusFailed     ImportStatus = "failed"
)

// Terminal reports whether the job will not be resumed.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusCancelled || s == ImportStatusFailed
}

// ImportJob holds a stored CSV payload and its cumulative progress.
type ImportJob struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Status         ImportStatus  `json:"status"`
	CSV            string        `json:"-"`
	TotalRows      int           `json:"total_rows"`
	ProcessedRows  int           `json:"processed_rows"`
	SuccessfulRows int           `json:"successful_rows"`
	FailedRows     int           `json:"failed_rows"`
	ErrorLog       []ImportError `json:"error_log"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Done reports whether the watermark has reached the end of the payload.
func (j *ImportJob) Done() bool {
	return j.ProcessedRows >= j.TotalRows
}

// ImportError is one structured entry in an import job's error log.
type ImportError struct {
	Row       int       `json:"row"`
	Domain    string    `json:"domain,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ImportProgress is an additive checkpoint written by the import runner.
type ImportProgress struct {
	Processed  int
	Successful int
	Failed     int
	Errors     []ImportError
}

// Empty reports whether the checkpoint carries nothing to write.
func (p ImportProgress) Empty() bool {
	return p.Processed == 0 && p.Successful == 0 && p.Failed == 0 && len(p.Errors) == 0
}
