package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Read models are derived, disposable snapshots keyed by the source
// aggregate's id. Version only ever increases; every recompute bumps it.

type SprintSummary struct {
	SprintID         uint64          `gorm:"primaryKey"`
	ProjectID        uint64          `gorm:"not null;index"`
	OrgID            uint64          `gorm:"not null"`
	SprintName       string          `gorm:"size:64;not null"`
	Status           string          `gorm:"size:32;not null"`
	StartDate        time.Time       `gorm:"not null"`
	EndDate          time.Time       `gorm:"not null"`
	TotalTasks       int             `gorm:"not null;default:0"`
	TodoTasks        int             `gorm:"not null;default:0"`
	InProgressTasks  int             `gorm:"not null;default:0"`
	DoneTasks        int             `gorm:"not null;default:0"`
	PlannedPoints    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	CompletedPoints  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	InProgressPoints decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	AvgVelocity      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	Burndown         string          `gorm:"type:jsonb;not null;default:'[]'"`
	Version          uint64          `gorm:"not null;default:0"`
	LastUpdated      time.Time       `gorm:"not null"`
}

func (SprintSummary) TableName() string { return "sprint_summary" }

type ProjectOverview struct {
	ProjectID        uint64          `gorm:"primaryKey"`
	OrgID            uint64          `gorm:"not null"`
	Name             string          `gorm:"size:128;not null"`
	ActiveSprintID   *uint64
	TotalSprints     int             `gorm:"not null;default:0"`
	PlannedSprints   int             `gorm:"not null;default:0"`
	ActiveSprints    int             `gorm:"not null;default:0"`
	CompletedSprints int             `gorm:"not null;default:0"`
	TotalTasks       int             `gorm:"not null;default:0"`
	TodoTasks        int             `gorm:"not null;default:0"`
	InProgressTasks  int             `gorm:"not null;default:0"`
	DoneTasks        int             `gorm:"not null;default:0"`
	TotalDefects     int             `gorm:"not null;default:0"`
	OpenDefects      int             `gorm:"not null;default:0"`
	TotalPoints      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	CompletedPoints  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	AvgVelocity      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	Team             string          `gorm:"type:jsonb;not null;default:'[]'"`
	VelocityTrend    string          `gorm:"type:jsonb;not null;default:'[]'"`
	Activity7d       int             `gorm:"not null;default:0"`
	Activity30d      int             `gorm:"not null;default:0"`
	HealthScore      int             `gorm:"not null;default:0"`
	Version          uint64          `gorm:"not null;default:0"`
	LastUpdated      time.Time       `gorm:"not null"`
}

func (ProjectOverview) TableName() string { return "project_overview" }

// BurndownPoint is one day of the serialized burndown series.
type BurndownPoint struct {
	Day       time.Time       `json:"day"`
	Ideal     decimal.Decimal `json:"ideal"`
	Remaining decimal.Decimal `json:"remaining"`
}

// MemberStat is one roster row of the serialized team series.
type MemberStat struct {
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Assigned    int    `json:"assigned"`
	Completed   int    `json:"completed"`
}

// VelocityPoint is one completed sprint of the serialized velocity trend.
type VelocityPoint struct {
	SprintNumber int             `json:"sprint_number"`
	Points       decimal.Decimal `json:"points"`
}
