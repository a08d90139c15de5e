package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/User159951/IntelliPM-sub015/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Project{}, &model.Sprint{}, &model.Task{},
		&model.SprintSummary{}, &model.ProjectOverview{},
	))
	return db
}

func TestSprintSummary_VersionNeverDecreases(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, 0, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	sum := &model.SprintSummary{
		SprintID: 7, ProjectID: 3, OrgID: 1, SprintName: "Sprint 2",
		Status: model.SprintPlanned, StartDate: now, EndDate: now.AddDate(0, 0, 14),
		Burndown: "[]", Version: 1, LastUpdated: now,
	}
	assert.NoError(t, r.CreateSprintSummary(ctx, sum))

	next := *sum
	next.TotalTasks = 1
	next.Version = 2
	assert.NoError(t, r.UpdateSprintSummary(ctx, &next, 1))

	// a writer holding the stale version-1 snapshot must lose the race
	stale := *sum
	stale.TotalTasks = 99
	stale.Version = 2
	assert.ErrorIs(t, r.UpdateSprintSummary(ctx, &stale, 1), ErrStaleReadModel)

	stored, err := r.GetSprintSummary(ctx, 7)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, stored.Version)
	assert.Equal(t, 1, stored.TotalTasks)
}

func TestProjectOverview_StaleWriteRejected(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, 0, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	ov := &model.ProjectOverview{
		ProjectID: 1, OrgID: 1, Name: "Apollo", Team: "[]", VelocityTrend: "[]",
		Version: 1, LastUpdated: now,
	}
	assert.NoError(t, r.CreateProjectOverview(ctx, ov))

	next := *ov
	next.Version = 2
	assert.NoError(t, r.UpdateProjectOverview(ctx, &next, 1))
	assert.ErrorIs(t, r.UpdateProjectOverview(ctx, &next, 1), ErrStaleReadModel)
}

func TestGetSprintSummary_MissingIsNilNotError(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, 0, zap.NewNop().Sugar())

	sum, err := r.GetSprintSummary(context.Background(), 12345)
	assert.NoError(t, err)
	assert.Nil(t, sum)
}

func TestSprintCompletedPoints_SumsDoneTasksOnly(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, 0, zap.NewNop().Sugar())
	ctx := context.Background()

	sprintID := uint64(1)
	assert.NoError(t, db.Create(&model.Task{ID: 1, ProjectID: 1, SprintID: &sprintID, Title: "a", Status: model.TaskDone, StoryPoints: decimal.NewFromInt(3)}).Error)
	assert.NoError(t, db.Create(&model.Task{ID: 2, ProjectID: 1, SprintID: &sprintID, Title: "b", Status: model.TaskDone, StoryPoints: decimal.NewFromInt(2)}).Error)
	assert.NoError(t, db.Create(&model.Task{ID: 3, ProjectID: 1, SprintID: &sprintID, Title: "c", Status: model.TaskTodo, StoryPoints: decimal.NewFromInt(8)}).Error)

	pts, err := r.SprintCompletedPoints(ctx, sprintID)
	assert.NoError(t, err)
	assert.True(t, pts.Equal(decimal.NewFromInt(5)), "got %s", pts)
}

func TestReadModelCache_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	rdb, mock := redismock.NewClientMock()
	r := NewRepository(db, rdb, 30*time.Second, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	sum := &model.SprintSummary{
		SprintID: 7, ProjectID: 3, OrgID: 1, SprintName: "Sprint 2",
		Status: model.SprintPlanned, StartDate: now, EndDate: now.AddDate(0, 0, 14),
		Burndown: "[]", Version: 1, LastUpdated: now,
	}
	b, err := json.Marshal(sum)
	assert.NoError(t, err)

	mock.ExpectSet("sprint-summary:7", string(b), 30*time.Second).SetVal("OK")
	assert.NoError(t, r.CacheSprintSummary(ctx, sum))

	mock.ExpectGet("sprint-summary:7").SetVal(string(b))
	got, err := r.GetCachedSprintSummary(ctx, 7)
	assert.NoError(t, err)
	assert.Equal(t, "Sprint 2", got.SprintName)
	assert.EqualValues(t, 1, got.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadModelCache_NilClientIsNoOp(t *testing.T) {
	db := newTestDB(t)
	r := NewRepository(db, nil, 0, zap.NewNop().Sugar())
	ctx := context.Background()

	assert.NoError(t, r.CacheSprintSummary(ctx, &model.SprintSummary{SprintID: 1, Burndown: "[]"}))
	_, err := r.GetCachedSprintSummary(ctx, 1)
	assert.Error(t, err)
}
