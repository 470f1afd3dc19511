package models

import "time"

// JobState tracks the run history of one batch job type
type JobState struct {
	JobType          string     `gorm:"type:varchar(50);primaryKey" json:"job_type"`
	LastRunAt        *time.Time `json:"last_run_at"`
	LastSuccessAt    *time.Time `json:"last_success_at"`
	LastError        string     `gorm:"type:text" json:"last_error,omitempty"`
	LastProcessed    int        `gorm:"not null;default:0" json:"last_processed"`
	LastFailed       int        `gorm:"not null;default:0" json:"last_failed"`
	TotalRuns        int        `gorm:"not null;default:0" json:"total_runs"`
	TotalProcessed   int64      `gorm:"not null;default:0" json:"total_processed"`
	TotalFailed      int64      `gorm:"not null;default:0" json:"total_failed"`
	ConsecutiveFails int        `gorm:"not null;default:0" json:"consecutive_fails"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name
func (JobState) TableName() string {
	return "job_states"
}

// RecordSuccess records a completed run. A run with per-record failures still
// counts as completed; only a run that could not start or was aborted is a failure.
func (s *JobState) RecordSuccess(processed, failed int, at time.Time) {
	s.TotalRuns++
	s.LastRunAt = &at
	s.LastSuccessAt = &at
	s.LastProcessed = processed
	s.LastFailed = failed
	s.TotalProcessed += int64(processed)
	s.TotalFailed += int64(failed)
	s.ConsecutiveFails = 0 // Reset on success
	s.LastError = ""
	s.UpdatedAt = at
}

// RecordFailure records an aborted run
func (s *JobState) RecordFailure(err error, at time.Time) {
	s.TotalRuns++
	s.LastRunAt = &at
	s.ConsecutiveFails++
	if err != nil {
		s.LastError = err.Error()
	}
	s.UpdatedAt = at
}
