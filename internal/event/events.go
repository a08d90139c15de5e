package event

import "github.com/shopspring/decimal"

const (
	TypeProjectCreated      = "ProjectCreated"
	TypeMemberAdded         = "MemberAdded"
	TypeSprintCreated       = "SprintCreated"
	TypeSprintStatusChanged = "SprintStatusChanged"
	TypeTaskCreated         = "TaskCreated"
	TypeTaskStatusChanged   = "TaskStatusChanged"
	TypeTaskMoved           = "TaskMoved"
	TypeCommentAdded        = "CommentAdded"
)

const (
	AggregateProject = "Project"
	AggregateSprint  = "Sprint"
	AggregateTask    = "Task"
)

type ProjectCreated struct {
	Base
	ProjectID uint64 `json:"project_id"`
	OrgID     uint64 `json:"org_id"`
	Name      string `json:"name"`
}

func (e ProjectCreated) EventType() string     { return TypeProjectCreated }
func (e ProjectCreated) AggregateType() string { return AggregateProject }
func (e ProjectCreated) AggregateID() uint64   { return e.ProjectID }

type MemberAdded struct {
	Base
	ProjectID   uint64 `json:"project_id"`
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (e MemberAdded) EventType() string     { return TypeMemberAdded }
func (e MemberAdded) AggregateType() string { return AggregateProject }
func (e MemberAdded) AggregateID() uint64   { return e.ProjectID }

type SprintCreated struct {
	Base
	SprintID  uint64 `json:"sprint_id"`
	ProjectID uint64 `json:"project_id"`
	Number    int    `json:"number"`
	Status    string `json:"status"`
}

func (e SprintCreated) EventType() string     { return TypeSprintCreated }
func (e SprintCreated) AggregateType() string { return AggregateSprint }
func (e SprintCreated) AggregateID() uint64   { return e.SprintID }

type SprintStatusChanged struct {
	Base
	SprintID  uint64 `json:"sprint_id"`
	ProjectID uint64 `json:"project_id"`
	Status    string `json:"status"`
}

func (e SprintStatusChanged) EventType() string     { return TypeSprintStatusChanged }
func (e SprintStatusChanged) AggregateType() string { return AggregateSprint }
func (e SprintStatusChanged) AggregateID() uint64   { return e.SprintID }

type TaskCreated struct {
	Base
	TaskID      uint64          `json:"task_id"`
	ProjectID   uint64          `json:"project_id"`
	SprintID    *uint64         `json:"sprint_id,omitempty"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	StoryPoints decimal.Decimal `json:"story_points"`
}

func (e TaskCreated) EventType() string     { return TypeTaskCreated }
func (e TaskCreated) AggregateType() string { return AggregateTask }
func (e TaskCreated) AggregateID() uint64   { return e.TaskID }

type TaskStatusChanged struct {
	Base
	TaskID    uint64  `json:"task_id"`
	ProjectID uint64  `json:"project_id"`
	SprintID  *uint64 `json:"sprint_id,omitempty"`
	Status    string  `json:"status"`
}

func (e TaskStatusChanged) EventType() string     { return TypeTaskStatusChanged }
func (e TaskStatusChanged) AggregateType() string { return AggregateTask }
func (e TaskStatusChanged) AggregateID() uint64   { return e.TaskID }

// TaskMoved reports a task changing sprints; both the old and the new sprint
// summaries must be recomputed.
type TaskMoved struct {
	Base
	TaskID       uint64  `json:"task_id"`
	ProjectID    uint64  `json:"project_id"`
	FromSprintID *uint64 `json:"from_sprint_id,omitempty"`
	ToSprintID   *uint64 `json:"to_sprint_id,omitempty"`
}

func (e TaskMoved) EventType() string     { return TypeTaskMoved }
func (e TaskMoved) AggregateType() string { return AggregateTask }
func (e TaskMoved) AggregateID() uint64   { return e.TaskID }

type CommentAdded struct {
	Base
	CommentID uint64 `json:"comment_id"`
	TaskID    uint64 `json:"task_id"`
	ProjectID uint64 `json:"project_id"`
	AuthorID  uint64 `json:"author_id"`
}

func (e CommentAdded) EventType() string     { return TypeCommentAdded }
func (e CommentAdded) AggregateType() string { return AggregateTask }
func (e CommentAdded) AggregateID() uint64   { return e.TaskID }
