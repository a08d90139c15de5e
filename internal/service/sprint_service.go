package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/User159951/IntelliPM-sub015/internal/dispatch"
	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/model"
	"github.com/User159951/IntelliPM-sub015/internal/outbox"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
)

var (
	ErrInvalidSprintNumber = errors.New("sprint number must be positive")
	ErrInvalidTransition   = errors.New("invalid sprint status transition")
)

type SprintService struct {
	repo       repo.RepositoryInterface
	outbox     *outbox.Store
	dispatcher *dispatch.Dispatcher
	log        *zap.SugaredLogger
	now        event.Clock
}

func NewSprintService(r repo.RepositoryInterface, ob *outbox.Store, d *dispatch.Dispatcher, logger *zap.SugaredLogger, now event.Clock) *SprintService {
	return &SprintService{repo: r, outbox: ob, dispatcher: d, log: logger, now: now}
}

func (s *SprintService) CreateSprint(ctx context.Context, projectID uint64, number int, start, end time.Time, actorID uint64) (*model.Sprint, error) {
	if number <= 0 {
		return nil, ErrInvalidSprintNumber
	}
	now := s.now()
	sp := &model.Sprint{
		ProjectID: projectID,
		Number:    number,
		Status:    model.SprintPlanned,
		StartDate: start,
		EndDate:   end,
	}
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetProjectTx(ctx, tx, projectID); err != nil {
			return fmt.Errorf("load project %d: %w", projectID, err)
		}
		if err := s.repo.CreateSprint(ctx, tx, sp); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: projectID, ActorID: actorID, Action: "sprint-created", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.SprintCreated{
			Base: event.NewBase(now), SprintID: sp.ID, ProjectID: projectID,
			Number: number, Status: sp.Status,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("sprint-created-%d", sp.ID)); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return sp, nil
}

// ChangeSprintStatus enforces Planned -> Active -> Completed.
func (s *SprintService) ChangeSprintStatus(ctx context.Context, sprintID uint64, status string, actorID uint64) (*model.Sprint, error) {
	now := s.now()
	var sp *model.Sprint
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sp, err = s.repo.GetSprintForUpdate(ctx, tx, sprintID)
		if err != nil {
			return fmt.Errorf("load sprint %d: %w", sprintID, err)
		}
		if sp.Status == status {
			return nil
		}
		if !validSprintTransition(sp.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sp.Status, status)
		}
		sp.Status = status
		if err := s.repo.SaveSprint(ctx, tx, sp); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: sp.ProjectID, ActorID: actorID, Action: "sprint-status-changed", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.SprintStatusChanged{
			Base: event.NewBase(now), SprintID: sprintID, ProjectID: sp.ProjectID, Status: status,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("sprint-status-%d-%s-%d", sprintID, status, now.UnixNano())); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return sp, nil
}

func validSprintTransition(from, to string) bool {
	switch from {
	case model.SprintPlanned:
		return to == model.SprintActive
	case model.SprintActive:
		return to == model.SprintCompleted
	default:
		return false
	}
}
