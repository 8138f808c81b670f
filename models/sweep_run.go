package models

import (
	"time"

	"github.com/lib/pq"
)

// SweepKind names the scheduled job that produced a sweep run
type SweepKind string

const (
	SweepKindReminders SweepKind = "reminders"
	SweepKindCampaigns SweepKind = "campaigns"
	SweepKindExpansion SweepKind = "expansion"
)

// SweepRun records one non-empty sweep invocation for auditing.
// ReminderIDs stores the claimed reminder ids in processing order.
// Table: sweep_runs
type SweepRun struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Kind        SweepKind     `gorm:"type:varchar(20);not null;index:idx_sweep_runs_kind" json:"kind"`
	Processed   int           `gorm:"not null;default:0" json:"processed"`
	Sent        int           `gorm:"not null;default:0" json:"sent"`
	Failed      int           `gorm:"not null;default:0" json:"failed"`
	ReminderIDs pq.Int64Array `gorm:"type:bigint[]" json:"reminder_ids"`
	StartedAt   time.Time     `gorm:"not null" json:"started_at"`
	FinishedAt  time.Time     `gorm:"not null" json:"finished_at"`
	CreatedAt   time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_sweep_runs_created_at" json:"created_at"`
}

func (SweepRun) TableName() string { return "sweep_runs" }

// SweepRunFilter provides filter fields for repository queries
type SweepRunFilter struct {
	ID            *uint
	Kind          *SweepKind
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
