package domain

import "time"

// ImportStatus represents the lifecycle state of an import job.
// Transitions only move forward: pending -> in_progress -> completed|failed.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusInProgress ImportStatus = "in_progress"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// Terminal reports whether no further status transitions may occur.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// ImportJob tracks one CSV import submission and its aggregate progress.
// Success and Failed are monotonically increasing counters; once Total is
// finalized, Success+Failed never exceeds it. Status is written by the
// coordinator only.
type ImportJob struct {
	ID        string       `gorm:"type:text;primaryKey" json:"id"`
	Filename  string       `gorm:"not null" json:"filename"`
	Path      string       `gorm:"not null" json:"-"`
	Status    ImportStatus `gorm:"default:pending;index" json:"status"`
	Total     int          `gorm:"default:0" json:"total"`
	Success   int          `gorm:"default:0" json:"success"`
	Failed    int          `gorm:"default:0" json:"failed"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}
