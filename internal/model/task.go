package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TaskTodo       = "Todo"
	TaskInProgress = "InProgress"
	TaskDone       = "Done"

	TaskTypeTask   = "Task"
	TaskTypeDefect = "Defect"
)

type Task struct {
	ID          uint64          `gorm:"primaryKey"`
	ProjectID   uint64          `gorm:"not null;index"`
	SprintID    *uint64         `gorm:"index"`
	AssigneeID  *uint64
	Title       string          `gorm:"size:256;not null"`
	Type        string          `gorm:"size:32;not null;default:'Task'"`
	Status      string          `gorm:"size:32;not null;default:'Todo'"`
	StoryPoints decimal.Decimal `gorm:"type:numeric(10,2);not null;default:'0'"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (Task) TableName() string { return "task" }

type Comment struct {
	ID        uint64    `gorm:"primaryKey"`
	TaskID    uint64    `gorm:"not null;index"`
	ProjectID uint64    `gorm:"not null;index"`
	AuthorID  uint64    `gorm:"not null"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Comment) TableName() string { return "comment" }

// Activity is an append-only audit trail row; the project overview counts
// rows in trailing windows.
type Activity struct {
	ID        uint64    `gorm:"primaryKey"`
	ProjectID uint64    `gorm:"not null;index"`
	ActorID   uint64    `gorm:"not null"`
	Action    string    `gorm:"size:64;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (Activity) TableName() string { return "activity" }
