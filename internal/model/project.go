package model

import "time"

type Project struct {
	ID        uint64    `gorm:"primaryKey"`
	OrgID     uint64    `gorm:"not null;index"`
	Name      string    `gorm:"size:128;not null"`
	Status    string    `gorm:"size:32;not null;default:'Active'"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Project) TableName() string { return "project" }

type ProjectMember struct {
	ID          uint64    `gorm:"primaryKey"`
	ProjectID   uint64    `gorm:"not null;uniqueIndex:idx_project_user"`
	UserID      uint64    `gorm:"not null;uniqueIndex:idx_project_user"`
	DisplayName string    `gorm:"size:128;not null"`
	Role        string    `gorm:"size:32;not null;default:'Member'"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (ProjectMember) TableName() string { return "project_member" }
