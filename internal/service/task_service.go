package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/User159951/IntelliPM-sub015/internal/dispatch"
	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/model"
	"github.com/User159951/IntelliPM-sub015/internal/outbox"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
)

var (
	ErrEmptyTitle     = errors.New("task title must not be empty")
	ErrInvalidStatus  = errors.New("invalid task status")
	ErrSprintMismatch = errors.New("target sprint belongs to a different project")
)

// CreateTaskInput bundles the optional fields of a new task.
type CreateTaskInput struct {
	Title       string
	Type        string
	StoryPoints decimal.Decimal
	SprintID    *uint64
	AssigneeID  *uint64
}

type TaskService struct {
	repo       repo.RepositoryInterface
	outbox     *outbox.Store
	dispatcher *dispatch.Dispatcher
	log        *zap.SugaredLogger
	now        event.Clock
}

func NewTaskService(r repo.RepositoryInterface, ob *outbox.Store, d *dispatch.Dispatcher, logger *zap.SugaredLogger, now event.Clock) *TaskService {
	return &TaskService{repo: r, outbox: ob, dispatcher: d, log: logger, now: now}
}

func (s *TaskService) CreateTask(ctx context.Context, projectID uint64, in CreateTaskInput, actorID uint64) (*model.Task, error) {
	if in.Title == "" {
		return nil, ErrEmptyTitle
	}
	if in.Type == "" {
		in.Type = model.TaskTypeTask
	}
	now := s.now()
	t := &model.Task{
		ProjectID:   projectID,
		SprintID:    in.SprintID,
		AssigneeID:  in.AssigneeID,
		Title:       in.Title,
		Type:        in.Type,
		Status:      model.TaskTodo,
		StoryPoints: in.StoryPoints,
	}
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetProjectTx(ctx, tx, projectID); err != nil {
			return fmt.Errorf("load project %d: %w", projectID, err)
		}
		if in.SprintID != nil {
			sp, err := s.repo.GetSprintTx(ctx, tx, *in.SprintID)
			if err != nil {
				return fmt.Errorf("load sprint %d: %w", *in.SprintID, err)
			}
			if sp.ProjectID != projectID {
				return ErrSprintMismatch
			}
		}
		if err := s.repo.CreateTask(ctx, tx, t); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: projectID, ActorID: actorID, Action: "task-created", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.TaskCreated{
			Base: event.NewBase(now), TaskID: t.ID, ProjectID: projectID,
			SprintID: t.SprintID, Type: t.Type, Status: t.Status, StoryPoints: t.StoryPoints,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("task-created-%d", t.ID)); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return t, nil
}

// ChangeTaskStatus moves a task through its board columns. Completion stamps
// CompletedAt so burndown series can place the points on the right day.
func (s *TaskService) ChangeTaskStatus(ctx context.Context, taskID uint64, status string, actorID uint64) (*model.Task, error) {
	if status != model.TaskTodo && status != model.TaskInProgress && status != model.TaskDone {
		return nil, ErrInvalidStatus
	}
	now := s.now()
	var t *model.Task
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = s.repo.GetTaskForUpdate(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("load task %d: %w", taskID, err)
		}
		if t.Status == status {
			return nil
		}
		t.Status = status
		if status == model.TaskDone {
			completed := now
			t.CompletedAt = &completed
		} else {
			t.CompletedAt = nil
		}
		if err := s.repo.SaveTask(ctx, tx, t); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: t.ProjectID, ActorID: actorID, Action: "task-status-changed", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.TaskStatusChanged{
			Base: event.NewBase(now), TaskID: taskID, ProjectID: t.ProjectID,
			SprintID: t.SprintID, Status: status,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("task-status-%d-%s-%d", taskID, status, now.UnixNano())); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return t, nil
}

// MoveTask reassigns a task to another sprint (or to the backlog when
// toSprintID is nil). The emitted event carries both sprint ids so the
// projection recomputes both summaries.
func (s *TaskService) MoveTask(ctx context.Context, taskID uint64, toSprintID *uint64, actorID uint64) (*model.Task, error) {
	now := s.now()
	var t *model.Task
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = s.repo.GetTaskForUpdate(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("load task %d: %w", taskID, err)
		}
		if equalSprintRef(t.SprintID, toSprintID) {
			return nil
		}
		if toSprintID != nil {
			sp, err := s.repo.GetSprintTx(ctx, tx, *toSprintID)
			if err != nil {
				return fmt.Errorf("load sprint %d: %w", *toSprintID, err)
			}
			if sp.ProjectID != t.ProjectID {
				return ErrSprintMismatch
			}
		}
		from := t.SprintID
		t.SprintID = toSprintID
		if err := s.repo.SaveTask(ctx, tx, t); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: t.ProjectID, ActorID: actorID, Action: "task-moved", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.TaskMoved{
			Base: event.NewBase(now), TaskID: taskID, ProjectID: t.ProjectID,
			FromSprintID: from, ToSprintID: toSprintID,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("task-moved-%d-%d", taskID, now.UnixNano())); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return t, nil
}

func equalSprintRef(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
