package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/model"
)

func TestProjectOverview_CreatedOnProjectCreated(t *testing.T) {
	r, db := newProjectionRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h := NewProjectOverviewHandler(r, zap.NewNop().Sugar(), func() time.Time { return now })

	assert.NoError(t, db.Create(&model.Project{ID: 1, OrgID: 42, Name: "Apollo"}).Error)
	assert.NoError(t, h.Handle(ctx, event.ProjectCreated{Base: event.NewBase(now), ProjectID: 1, OrgID: 42, Name: "Apollo"}))

	ov, err := r.GetProjectOverview(ctx, 1)
	assert.NoError(t, err)
	assert.NotNil(t, ov)
	assert.Equal(t, "Apollo", ov.Name)
	assert.EqualValues(t, 42, ov.OrgID)
	assert.EqualValues(t, 1, ov.Version)
	assert.Equal(t, "[]", ov.Team)
	assert.Equal(t, "[]", ov.VelocityTrend)
	assert.True(t, ov.AvgVelocity.IsZero())
	assert.Nil(t, ov.ActiveSprintID)
}

func TestProjectOverview_MissingOnUpdateEventIsNoOp(t *testing.T) {
	r, db := newProjectionRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h := NewProjectOverviewHandler(r, zap.NewNop().Sugar(), func() time.Time { return now })

	assert.NoError(t, db.Create(&model.Project{ID: 1, OrgID: 1, Name: "Apollo"}).Error)
	assert.NoError(t, h.Handle(ctx, event.MemberAdded{Base: event.NewBase(now), ProjectID: 1, UserID: 7, DisplayName: "Dana"}))

	ov, err := r.GetProjectOverview(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, ov)
}

func TestProjectOverview_RosterSprintsAndDefects(t *testing.T) {
	r, db := newProjectionRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h := NewProjectOverviewHandler(r, zap.NewNop().Sugar(), func() time.Time { return now })

	assert.NoError(t, db.Create(&model.Project{ID: 1, OrgID: 1, Name: "Apollo"}).Error)
	assert.NoError(t, db.Create(&model.ProjectMember{ID: 1, ProjectID: 1, UserID: 7, DisplayName: "Dana", Role: "Lead"}).Error)
	assert.NoError(t, db.Create(&model.ProjectMember{ID: 2, ProjectID: 1, UserID: 8, DisplayName: "Kim", Role: "Member"}).Error)

	assert.NoError(t, db.Create(&model.Sprint{ID: 1, ProjectID: 1, Number: 1, Status: model.SprintCompleted, StartDate: now.AddDate(0, 0, -28), EndDate: now.AddDate(0, 0, -14)}).Error)
	assert.NoError(t, db.Create(&model.Sprint{ID: 2, ProjectID: 1, Number: 2, Status: model.SprintActive, StartDate: now.AddDate(0, 0, -14), EndDate: now}).Error)

	dana, kim := uint64(7), uint64(8)
	s1, s2 := uint64(1), uint64(2)
	done := now.AddDate(0, 0, -20)
	assert.NoError(t, db.Create(&model.Task{ID: 1, ProjectID: 1, SprintID: &s1, AssigneeID: &dana, Title: "Schema", Status: model.TaskDone, StoryPoints: decimal.NewFromInt(8), CompletedAt: &done}).Error)
	assert.NoError(t, db.Create(&model.Task{ID: 2, ProjectID: 1, SprintID: &s2, AssigneeID: &dana, Title: "API", Status: model.TaskInProgress, StoryPoints: decimal.NewFromInt(5)}).Error)
	assert.NoError(t, db.Create(&model.Task{ID: 3, ProjectID: 1, SprintID: &s2, AssigneeID: &kim, Title: "Crash on save", Type: model.TaskTypeDefect, Status: model.TaskTodo, StoryPoints: decimal.NewFromInt(2)}).Error)

	assert.NoError(t, db.Create(&model.Activity{ID: 1, ProjectID: 1, ActorID: 7, Action: "task-created", CreatedAt: now.AddDate(0, 0, -1)}).Error)
	assert.NoError(t, db.Create(&model.Activity{ID: 2, ProjectID: 1, ActorID: 8, Action: "task-created", CreatedAt: now.AddDate(0, 0, -10)}).Error)

	assert.NoError(t, h.Handle(ctx, event.ProjectCreated{Base: event.NewBase(now), ProjectID: 1, OrgID: 1, Name: "Apollo"}))

	ov, err := r.GetProjectOverview(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, 2, ov.TotalSprints)
	assert.Equal(t, 1, ov.ActiveSprints)
	assert.Equal(t, 1, ov.CompletedSprints)
	assert.NotNil(t, ov.ActiveSprintID)
	assert.EqualValues(t, 2, *ov.ActiveSprintID)

	assert.Equal(t, 3, ov.TotalTasks)
	assert.Equal(t, 1, ov.DoneTasks)
	assert.Equal(t, 1, ov.InProgressTasks)
	assert.Equal(t, 1, ov.TodoTasks)
	assert.Equal(t, 1, ov.TotalDefects)
	assert.Equal(t, 1, ov.OpenDefects)
	assert.True(t, ov.TotalPoints.Equal(decimal.NewFromInt(15)))
	assert.True(t, ov.CompletedPoints.Equal(decimal.NewFromInt(8)))

	assert.Equal(t, 1, ov.Activity7d)
	assert.Equal(t, 2, ov.Activity30d)

	var roster []model.MemberStat
	assert.NoError(t, json.Unmarshal([]byte(ov.Team), &roster))
	assert.Len(t, roster, 2)
	assert.Equal(t, "Dana", roster[0].DisplayName)
	assert.Equal(t, 2, roster[0].Assigned)
	assert.Equal(t, 1, roster[0].Completed)
	assert.Equal(t, 1, roster[1].Assigned)
	assert.Equal(t, 0, roster[1].Completed)

	var trend []model.VelocityPoint
	assert.NoError(t, json.Unmarshal([]byte(ov.VelocityTrend), &trend))
	assert.Len(t, trend, 1)
	assert.Equal(t, 1, trend[0].SprintNumber)
	assert.True(t, trend[0].Points.Equal(decimal.NewFromInt(8)))
	assert.True(t, ov.AvgVelocity.Equal(decimal.NewFromInt(8)))
}

func TestProjectOverview_VersionMonotonicAcrossEvents(t *testing.T) {
	r, db := newProjectionRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	h := NewProjectOverviewHandler(r, zap.NewNop().Sugar(), func() time.Time { return now })

	assert.NoError(t, db.Create(&model.Project{ID: 1, OrgID: 1, Name: "Apollo"}).Error)
	assert.NoError(t, h.Handle(ctx, event.ProjectCreated{Base: event.NewBase(now), ProjectID: 1, OrgID: 1, Name: "Apollo"}))

	assert.NoError(t, db.Create(&model.ProjectMember{ID: 1, ProjectID: 1, UserID: 7, DisplayName: "Dana"}).Error)
	assert.NoError(t, h.Handle(ctx, event.MemberAdded{Base: event.NewBase(now), ProjectID: 1, UserID: 7, DisplayName: "Dana"}))

	assert.NoError(t, db.Create(&model.Task{ID: 1, ProjectID: 1, Title: "Backlog item"}).Error)
	assert.NoError(t, h.Handle(ctx, event.TaskCreated{Base: event.NewBase(now), TaskID: 1, ProjectID: 1, Status: model.TaskTodo}))

	ov, err := r.GetProjectOverview(ctx, 1)
	assert.NoError(t, err)
	assert.EqualValues(t, 3, ov.Version)
	assert.Equal(t, 1, ov.TotalTasks)
}

func TestHealthScore(t *testing.T) {
	// empty project defaults to full completion credit
	assert.Equal(t, 40, healthScore(0, 0, false, 0))
	// everything firing
	assert.Equal(t, 100, healthScore(10, 10, true, 10))
	// activity saturates at 10 events
	assert.Equal(t, 100, healthScore(10, 10, true, 500))
	// half done, active sprint, quiet week
	assert.Equal(t, 50, healthScore(10, 5, true, 0))
}
