package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/User159951/IntelliPM-sub015/internal/model"
)

// ErrStaleReadModel is returned when a versioned read-model write loses a
// compare-and-set race. The winning writer recomputed from the same or newer
// source state, so the loser can treat it as a no-op.
var ErrStaleReadModel = errors.New("stale read model version")

// RepositoryInterface restricts Repo methods (makes unit-test mocks easy).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	CreateProject(ctx context.Context, tx *gorm.DB, p *model.Project) error
	GetProject(ctx context.Context, id uint64) (*model.Project, error)
	GetProjectTx(ctx context.Context, tx *gorm.DB, id uint64) (*model.Project, error)
	CreateMember(ctx context.Context, tx *gorm.DB, m *model.ProjectMember) error
	MemberExists(ctx context.Context, tx *gorm.DB, projectID, userID uint64) (bool, error)
	MembersByProject(ctx context.Context, projectID uint64) ([]model.ProjectMember, error)

	CreateSprint(ctx context.Context, tx *gorm.DB, s *model.Sprint) error
	GetSprint(ctx context.Context, id uint64) (*model.Sprint, error)
	GetSprintTx(ctx context.Context, tx *gorm.DB, id uint64) (*model.Sprint, error)
	GetSprintForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Sprint, error)
	SaveSprint(ctx context.Context, tx *gorm.DB, s *model.Sprint) error
	SprintsByProject(ctx context.Context, projectID uint64) ([]model.Sprint, error)
	CompletedSprints(ctx context.Context, projectID uint64, limit int) ([]model.Sprint, error)
	SprintCompletedPoints(ctx context.Context, sprintID uint64) (decimal.Decimal, error)

	CreateTask(ctx context.Context, tx *gorm.DB, t *model.Task) error
	GetTask(ctx context.Context, id uint64) (*model.Task, error)
	GetTaskTx(ctx context.Context, tx *gorm.DB, id uint64) (*model.Task, error)
	GetTaskForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Task, error)
	SaveTask(ctx context.Context, tx *gorm.DB, t *model.Task) error
	TasksBySprint(ctx context.Context, sprintID uint64) ([]model.Task, error)
	TasksByProject(ctx context.Context, projectID uint64) ([]model.Task, error)

	CreateComment(ctx context.Context, tx *gorm.DB, c *model.Comment) error
	CreateActivity(ctx context.Context, tx *gorm.DB, a *model.Activity) error
	ActivityCountSince(ctx context.Context, projectID uint64, since time.Time) (int64, error)

	GetSprintSummary(ctx context.Context, sprintID uint64) (*model.SprintSummary, error)
	CreateSprintSummary(ctx context.Context, s *model.SprintSummary) error
	UpdateSprintSummary(ctx context.Context, s *model.SprintSummary, prevVersion uint64) error
	GetProjectOverview(ctx context.Context, projectID uint64) (*model.ProjectOverview, error)
	CreateProjectOverview(ctx context.Context, o *model.ProjectOverview) error
	UpdateProjectOverview(ctx context.Context, o *model.ProjectOverview, prevVersion uint64) error

	CacheSprintSummary(ctx context.Context, s *model.SprintSummary) error
	GetCachedSprintSummary(ctx context.Context, sprintID uint64) (*model.SprintSummary, error)
	CacheProjectOverview(ctx context.Context, o *model.ProjectOverview) error
	GetCachedProjectOverview(ctx context.Context, projectID uint64) (*model.ProjectOverview, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db       *gorm.DB
	rdb      *redis.Client
	cacheTTL time.Duration
	log      *zap.SugaredLogger
}

// NewRepository constructs repo. rdb may be nil; caching then becomes a no-op.
func NewRepository(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, cacheTTL: cacheTTL, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) CreateProject(ctx context.Context, tx *gorm.DB, p *model.Project) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *Repository) GetProject(ctx context.Context, id uint64) (*model.Project, error) {
	var p model.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProjectTx reads through the caller's transaction so command validation
// sees the same snapshot the command writes to.
func (r *Repository) GetProjectTx(ctx context.Context, tx *gorm.DB, id uint64) (*model.Project, error) {
	var p model.Project
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreateMember(ctx context.Context, tx *gorm.DB, m *model.ProjectMember) error {
	return tx.WithContext(ctx).Create(m).Error
}

// MemberExists checks the (project, user) pair so a retried add stays idempotent.
func (r *Repository) MemberExists(ctx context.Context, tx *gorm.DB, projectID, userID uint64) (bool, error) {
	var m model.ProjectMember
	err := tx.WithContext(ctx).Where("project_id = ? AND user_id = ?", projectID, userID).First(&m).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (r *Repository) MembersByProject(ctx context.Context, projectID uint64) ([]model.ProjectMember, error) {
	var ms []model.ProjectMember
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at").Find(&ms).Error
	return ms, err
}

func (r *Repository) CreateSprint(ctx context.Context, tx *gorm.DB, s *model.Sprint) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *Repository) GetSprint(ctx context.Context, id uint64) (*model.Sprint, error) {
	var s model.Sprint
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetSprintTx(ctx context.Context, tx *gorm.DB, id uint64) (*model.Sprint, error) {
	var s model.Sprint
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSprintForUpdate locks the sprint row for a status transition.
func (r *Repository) GetSprintForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Sprint, error) {
	var s model.Sprint
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) SaveSprint(ctx context.Context, tx *gorm.DB, s *model.Sprint) error {
	return tx.WithContext(ctx).Save(s).Error
}

func (r *Repository) SprintsByProject(ctx context.Context, projectID uint64) ([]model.Sprint, error) {
	var ss []model.Sprint
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("number").Find(&ss).Error
	return ss, err
}

// CompletedSprints returns the most recently finished sprints, newest first.
func (r *Repository) CompletedSprints(ctx context.Context, projectID uint64, limit int) ([]model.Sprint, error) {
	var ss []model.Sprint
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, model.SprintCompleted).
		Order("end_date desc").Limit(limit).Find(&ss).Error
	return ss, err
}

func (r *Repository) SprintCompletedPoints(ctx context.Context, sprintID uint64) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Select("COALESCE(SUM(story_points), 0)").
		Where("sprint_id = ? AND status = ?", sprintID, model.TaskDone).
		Scan(&out).Error
	return out, err
}

func (r *Repository) CreateTask(ctx context.Context, tx *gorm.DB, t *model.Task) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *Repository) GetTask(ctx context.Context, id uint64) (*model.Task, error) {
	var t model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) GetTaskTx(ctx context.Context, tx *gorm.DB, id uint64) (*model.Task, error) {
	var t model.Task
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTaskForUpdate locks the task row for a status change or sprint move.
func (r *Repository) GetTaskForUpdate(ctx context.Context, tx *gorm.DB, id uint64) (*model.Task, error) {
	var t model.Task
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) SaveTask(ctx context.Context, tx *gorm.DB, t *model.Task) error {
	return tx.WithContext(ctx).Save(t).Error
}

func (r *Repository) TasksBySprint(ctx context.Context, sprintID uint64) ([]model.Task, error) {
	var ts []model.Task
	err := r.db.WithContext(ctx).Where("sprint_id = ?", sprintID).Find(&ts).Error
	return ts, err
}

func (r *Repository) TasksByProject(ctx context.Context, projectID uint64) ([]model.Task, error) {
	var ts []model.Task
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&ts).Error
	return ts, err
}

func (r *Repository) CreateComment(ctx context.Context, tx *gorm.DB, c *model.Comment) error {
	return tx.WithContext(ctx).Create(c).Error
}

func (r *Repository) CreateActivity(ctx context.Context, tx *gorm.DB, a *model.Activity) error {
	return tx.WithContext(ctx).Create(a).Error
}

func (r *Repository) ActivityCountSince(ctx context.Context, projectID uint64, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Activity{}).
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Count(&n).Error
	return n, err
}

// GetSprintSummary returns (nil, nil) when the read model does not exist yet;
// missing is an ordinary branch in recompute loops, not an error path.
func (r *Repository) GetSprintSummary(ctx context.Context, sprintID uint64) (*model.SprintSummary, error) {
	var s model.SprintSummary
	err := r.db.WithContext(ctx).Where("sprint_id = ?", sprintID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) CreateSprintSummary(ctx context.Context, s *model.SprintSummary) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// UpdateSprintSummary writes a recomputed summary guarded by the version the
// recompute started from, so Version never decreases under concurrent writers.
func (r *Repository) UpdateSprintSummary(ctx context.Context, s *model.SprintSummary, prevVersion uint64) error {
	res := r.db.WithContext(ctx).Model(&model.SprintSummary{}).
		Where("sprint_id = ? AND version = ?", s.SprintID, prevVersion).
		Select("*").Omit("sprint_id").Updates(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleReadModel
	}
	return nil
}

func (r *Repository) GetProjectOverview(ctx context.Context, projectID uint64) (*model.ProjectOverview, error) {
	var o model.ProjectOverview
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) CreateProjectOverview(ctx context.Context, o *model.ProjectOverview) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *Repository) UpdateProjectOverview(ctx context.Context, o *model.ProjectOverview, prevVersion uint64) error {
	res := r.db.WithContext(ctx).Model(&model.ProjectOverview{}).
		Where("project_id = ? AND version = ?", o.ProjectID, prevVersion).
		Select("*").Omit("project_id").Updates(o)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleReadModel
	}
	return nil
}

func sprintSummaryKey(sprintID uint64) string { return fmt.Sprintf("sprint-summary:%d", sprintID) }

func projectOverviewKey(projectID uint64) string {
	return fmt.Sprintf("project-overview:%d", projectID)
}

// CacheSprintSummary writes the dashboard cache.
func (r *Repository) CacheSprintSummary(ctx context.Context, s *model.SprintSummary) error {
	if r.rdb == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sprintSummaryKey(s.SprintID), string(b), r.cacheTTL).Err()
}

func (r *Repository) GetCachedSprintSummary(ctx context.Context, sprintID uint64) (*model.SprintSummary, error) {
	if r.rdb == nil {
		return nil, redis.Nil
	}
	str, err := r.rdb.Get(ctx, sprintSummaryKey(sprintID)).Result()
	if err != nil {
		return nil, err
	}
	var s model.SprintSummary
	if err := json.Unmarshal([]byte(str), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) CacheProjectOverview(ctx context.Context, o *model.ProjectOverview) error {
	if r.rdb == nil {
		return nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, projectOverviewKey(o.ProjectID), string(b), r.cacheTTL).Err()
}

func (r *Repository) GetCachedProjectOverview(ctx context.Context, projectID uint64) (*model.ProjectOverview, error) {
	if r.rdb == nil {
		return nil, redis.Nil
	}
	str, err := r.rdb.Get(ctx, projectOverviewKey(projectID)).Result()
	if err != nil {
		return nil, err
	}
	var o model.ProjectOverview
	if err := json.Unmarshal([]byte(str), &o); err != nil {
		return nil, err
	}
	return &o, nil
}
