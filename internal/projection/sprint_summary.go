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

// SprintSummaryHandler maintains the per-sprint read model. Every event
// triggers a full recompute from the current source-of-truth rows, so running
// it twice for the same event converges to the same state.
type SprintSummaryHandler struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
	now  event.Clock
}

func NewSprintSummaryHandler(r repo.RepositoryInterface, logger *zap.SugaredLogger, now event.Clock) *SprintSummaryHandler {
	return &SprintSummaryHandler{repo: r, log: logger, now: now}
}

func (h *SprintSummaryHandler) Name() string { return "sprint-summary" }

func (h *SprintSummaryHandler) EventTypes() []string {
	return []string{
		event.TypeSprintCreated,
		event.TypeSprintStatusChanged,
		event.TypeTaskCreated,
		event.TypeTaskStatusChanged,
		event.TypeTaskMoved,
	}
}

func (h *SprintSummaryHandler) Handle(ctx context.Context, evt event.Event) error {
	switch e := evt.(type) {
	case event.SprintCreated:
		return h.recompute(ctx, e.SprintID, true)
	case event.SprintStatusChanged:
		return h.recompute(ctx, e.SprintID, false)
	case event.TaskCreated:
		if e.SprintID == nil {
			return nil
		}
		return h.recompute(ctx, *e.SprintID, false)
	case event.TaskStatusChanged:
		if e.SprintID == nil {
			return nil
		}
		return h.recompute(ctx, *e.SprintID, false)
	case event.TaskMoved:
		// both the old and the new sprint change shape; recompute each in
		// its own pass even when the first one fails
		var firstErr error
		if e.FromSprintID != nil {
			if err := h.recompute(ctx, *e.FromSprintID, false); err != nil {
				firstErr = err
			}
		}
		if e.ToSprintID != nil {
			if err := h.recompute(ctx, *e.ToSprintID, false); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return nil
}

func (h *SprintSummaryHandler) recompute(ctx context.Context, sprintID uint64, createIfMissing bool) error {
	sprint, err := h.repo.GetSprint(ctx, sprintID)
	if err != nil {
		return fmt.Errorf("load sprint %d: %w", sprintID, err)
	}
	existing, err := h.repo.GetSprintSummary(ctx, sprintID)
	if err != nil {
		return err
	}
	if existing == nil && !createIfMissing {
		h.log.Warnf("sprint summary %d missing, skipping recompute", sprintID)
		return nil
	}
	project, err := h.repo.GetProject(ctx, sprint.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", sprint.ProjectID, err)
	}
	tasks, err := h.repo.TasksBySprint(ctx, sprintID)
	if err != nil {
		return err
	}
	avgVelocity, _, err := velocityTrend(ctx, h.repo, sprint.ProjectID)
	if err != nil {
		return err
	}

	now := h.now()
	sum := &model.SprintSummary{
		SprintID:    sprintID,
		ProjectID:   sprint.ProjectID,
		OrgID:       project.OrgID,
		SprintName:  fmt.Sprintf("Sprint %d", sprint.Number),
		Status:      sprint.Status,
		StartDate:   sprint.StartDate,
		EndDate:     sprint.EndDate,
		AvgVelocity: avgVelocity,
		LastUpdated: now,
	}
	sum.PlannedPoints = decimal.Zero
	sum.CompletedPoints = decimal.Zero
	sum.InProgressPoints = decimal.Zero
	for _, t := range tasks {
		sum.TotalTasks++
		sum.PlannedPoints = sum.PlannedPoints.Add(t.StoryPoints)
		switch t.Status {
		case model.TaskTodo:
			sum.TodoTasks++
		case model.TaskInProgress:
			sum.InProgressTasks++
			sum.InProgressPoints = sum.InProgressPoints.Add(t.StoryPoints)
		case model.TaskDone:
			sum.DoneTasks++
			sum.CompletedPoints = sum.CompletedPoints.Add(t.StoryPoints)
		}
	}
	burn, err := encodeJSON(burndown(sprint, tasks, now))
	if err != nil {
		return err
	}
	sum.Burndown = burn

	if existing == nil {
		sum.Version = 1
		if err := h.repo.CreateSprintSummary(ctx, sum); err != nil {
			return err
		}
	} else {
		sum.Version = existing.Version + 1
		if err := h.repo.UpdateSprintSummary(ctx, sum, existing.Version); err != nil {
			if errors.Is(err, repo.ErrStaleReadModel) {
				h.log.Warnf("sprint summary %d version raced, newer state already written", sprintID)
				return nil
			}
			return err
		}
	}
	if err := h.repo.CacheSprintSummary(ctx, sum); err != nil {
		h.log.Warnf("cache sprint summary %d: %v", sprintID, err)
	}
	return nil
}
