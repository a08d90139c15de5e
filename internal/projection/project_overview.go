package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/model"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
)

// ProjectOverviewHandler maintains the per-project dashboard read model with
// the same get-or-create + full-recompute strategy as the sprint summary.
type ProjectOverviewHandler struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
	now  event.Clock
}

func NewProjectOverviewHandler(r repo.RepositoryInterface, logger *zap.SugaredLogger, now event.Clock) *ProjectOverviewHandler {
	return &ProjectOverviewHandler{repo: r, log: logger, now: now}
}

func (h *ProjectOverviewHandler) Name() string { return "project-overview" }

func (h *ProjectOverviewHandler) EventTypes() []string {
	return []string{
		event.TypeProjectCreated,
		event.TypeMemberAdded,
		event.TypeSprintCreated,
		event.TypeSprintStatusChanged,
		event.TypeTaskCreated,
		event.TypeTaskStatusChanged,
		event.TypeTaskMoved,
		event.TypeCommentAdded,
	}
}

func (h *ProjectOverviewHandler) Handle(ctx context.Context, evt event.Event) error {
	switch e := evt.(type) {
	case event.ProjectCreated:
		return h.recompute(ctx, e.ProjectID, true)
	case event.MemberAdded:
		return h.recompute(ctx, e.ProjectID, false)
	case event.SprintCreated:
		return h.recompute(ctx, e.ProjectID, false)
	case event.SprintStatusChanged:
		return h.recompute(ctx, e.ProjectID, false)
	case event.TaskCreated:
		return h.recompute(ctx, e.ProjectID, false)
	case event.TaskStatusChanged:
		return h.recompute(ctx, e.ProjectID, false)
	case event.TaskMoved:
		return h.recompute(ctx, e.ProjectID, false)
	case event.CommentAdded:
		return h.recompute(ctx, e.ProjectID, false)
	}
	return nil
}

func (h *ProjectOverviewHandler) recompute(ctx context.Context, projectID uint64, createIfMissing bool) error {
	project, err := h.repo.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", projectID, err)
	}
	existing, err := h.repo.GetProjectOverview(ctx, projectID)
	if err != nil {
		return err
	}
	if existing == nil && !createIfMissing {
		h.log.Warnf("project overview %d missing, skipping recompute", projectID)
		return nil
	}
	sprints, err := h.repo.SprintsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	tasks, err := h.repo.TasksByProject(ctx, projectID)
	if err != nil {
		return err
	}
	members, err := h.repo.MembersByProject(ctx, projectID)
	if err != nil {
		return err
	}
	avgVelocity, trend, err := velocityTrend(ctx, h.repo, projectID)
	if err != nil {
		return err
	}

	now := h.now()
	a7, err := h.repo.ActivityCountSince(ctx, projectID, now.AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	a30, err := h.repo.ActivityCountSince(ctx, projectID, now.AddDate(0, 0, -30))
	if err != nil {
		return err
	}

	ov := &model.ProjectOverview{
		ProjectID:   projectID,
		OrgID:       project.OrgID,
		Name:        project.Name,
		AvgVelocity: avgVelocity,
		Activity7d:  int(a7),
		Activity30d: int(a30),
		LastUpdated: now,
	}
	for _, s := range sprints {
		ov.TotalSprints++
		switch s.Status {
		case model.SprintPlanned:
			ov.PlannedSprints++
		case model.SprintActive:
			ov.ActiveSprints++
			// sprints are ordered by number, so the latest active one wins
			id := s.ID
			ov.ActiveSprintID = &id
		case model.SprintCompleted:
			ov.CompletedSprints++
		}
	}
	ov.TotalPoints = decimal.Zero
	ov.CompletedPoints = decimal.Zero
	for _, t := range tasks {
		ov.TotalTasks++
		ov.TotalPoints = ov.TotalPoints.Add(t.StoryPoints)
		switch t.Status {
		case model.TaskTodo:
			ov.TodoTasks++
		case model.TaskInProgress:
			ov.InProgressTasks++
		case model.TaskDone:
			ov.DoneTasks++
			ov.CompletedPoints = ov.CompletedPoints.Add(t.StoryPoints)
		}
		if t.Type == model.TaskTypeDefect {
			ov.TotalDefects++
			if t.Status != model.TaskDone {
				ov.OpenDefects++
			}
		}
	}
	roster := make([]model.MemberStat, 0, len(members))
	for _, m := range members {
		stat := model.MemberStat{UserID: m.UserID, DisplayName: m.DisplayName, Role: m.Role}
		for _, t := range tasks {
			if t.AssigneeID == nil || *t.AssigneeID != m.UserID {
				continue
			}
			stat.Assigned++
			if t.Status == model.TaskDone {
				stat.Completed++
			}
		}
		roster = append(roster, stat)
	}
	teamJSON, err := encodeJSON(roster)
	if err != nil {
		return err
	}
	trendJSON, err := encodeJSON(trend)
	if err != nil {
		return err
	}
	ov.Team = teamJSON
	ov.VelocityTrend = trendJSON
	ov.HealthScore = healthScore(ov.TotalTasks, ov.DoneTasks, ov.ActiveSprints > 0, ov.Activity7d)

	if existing == nil {
		ov.Version = 1
		if err := h.repo.CreateProjectOverview(ctx, ov); err != nil {
			return err
		}
	} else {
		ov.Version = existing.Version + 1
		if err := h.repo.UpdateProjectOverview(ctx, ov, existing.Version); err != nil {
			if errors.Is(err, repo.ErrStaleReadModel) {
				h.log.Warnf("project overview %d version raced, newer state already written", projectID)
				return nil
			}
			return err
		}
	}
	if err := h.repo.CacheProjectOverview(ctx, ov); err != nil {
		h.log.Warnf("cache project overview %d: %v", projectID, err)
	}
	return nil
}
