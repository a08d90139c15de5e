package model

import "time"

const (
	SprintPlanned   = "Planned"
	SprintActive    = "Active"
	SprintCompleted = "Completed"
)

type Sprint struct {
	ID        uint64    `gorm:"primaryKey"`
	ProjectID uint64    `gorm:"not null;index"`
	Number    int       `gorm:"not null"`
	Status    string    `gorm:"size:32;not null;default:'Planned'"`
	StartDate time.Time `gorm:"not null"`
	EndDate   time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Sprint) TableName() string { return "sprint" }
