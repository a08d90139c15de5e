package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/User159951/IntelliPM-sub015/internal/dispatch"
	"github.com/User159951/IntelliPM-sub015/internal/event"
	"github.com/User159951/IntelliPM-sub015/internal/model"
	"github.com/User159951/IntelliPM-sub015/internal/outbox"
	"github.com/User159951/IntelliPM-sub015/internal/repo"
)

var (
	ErrEmptyName = errors.New("name must not be empty")
	ErrEmptyBody = errors.New("comment body must not be empty")
)

// ProjectService is a producer: it mutates project-scoped entities, enqueues
// the matching outbox entries in the same transaction, and dispatches the
// committed events best-effort on the request thread.
type ProjectService struct {
	repo       repo.RepositoryInterface
	outbox     *outbox.Store
	dispatcher *dispatch.Dispatcher
	log        *zap.SugaredLogger
	now        event.Clock
}

func NewProjectService(r repo.RepositoryInterface, ob *outbox.Store, d *dispatch.Dispatcher, logger *zap.SugaredLogger, now event.Clock) *ProjectService {
	return &ProjectService{repo: r, outbox: ob, dispatcher: d, log: logger, now: now}
}

func (s *ProjectService) CreateProject(ctx context.Context, orgID uint64, name string, actorID uint64) (*model.Project, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	now := s.now()
	p := &model.Project{OrgID: orgID, Name: name, Status: "Active"}
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateProject(ctx, tx, p); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: p.ID, ActorID: actorID, Action: "project-created", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.ProjectCreated{Base: event.NewBase(now), ProjectID: p.ID, OrgID: orgID, Name: name}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("project-created-%d", p.ID)); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return p, nil
}

// AddMember is idempotent: adding a user who is already on the roster returns
// the existing state without a second event.
func (s *ProjectService) AddMember(ctx context.Context, projectID, userID uint64, displayName, role string, actorID uint64) (*model.ProjectMember, error) {
	if displayName == "" {
		return nil, ErrEmptyName
	}
	if role == "" {
		role = "Member"
	}
	now := s.now()
	m := &model.ProjectMember{ProjectID: projectID, UserID: userID, DisplayName: displayName, Role: role}
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.GetProjectTx(ctx, tx, projectID); err != nil {
			return fmt.Errorf("load project %d: %w", projectID, err)
		}
		existed, err := s.repo.MemberExists(ctx, tx, projectID, userID)
		if err != nil {
			return err
		}
		if existed {
			return nil
		}
		if err := s.repo.CreateMember(ctx, tx, m); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: projectID, ActorID: actorID, Action: "member-added", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.MemberAdded{
			Base: event.NewBase(now), ProjectID: projectID, UserID: userID,
			DisplayName: displayName, Role: role,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("member-added-%d-%d", projectID, userID)); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return m, nil
}

func (s *ProjectService) AddComment(ctx context.Context, taskID, authorID uint64, body string) (*model.Comment, error) {
	if body == "" {
		return nil, ErrEmptyBody
	}
	now := s.now()
	var c *model.Comment
	var evts []event.Event
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("load task %d: %w", taskID, err)
		}
		c = &model.Comment{TaskID: taskID, ProjectID: task.ProjectID, AuthorID: authorID, Body: body}
		if err := s.repo.CreateComment(ctx, tx, c); err != nil {
			return err
		}
		if err := s.repo.CreateActivity(ctx, tx, &model.Activity{
			ProjectID: task.ProjectID, ActorID: authorID, Action: "comment-added", CreatedAt: now,
		}); err != nil {
			return err
		}
		evt := event.CommentAdded{
			Base: event.NewBase(now), CommentID: c.ID, TaskID: taskID,
			ProjectID: task.ProjectID, AuthorID: authorID,
		}
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if _, err := s.outbox.Enqueue(ctx, tx, evt.EventType(), payload,
			fmt.Sprintf("comment-added-%d-%d", c.ID, now.UnixNano())); err != nil {
			return err
		}
		evts = append(evts, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchBatch(ctx, evts)
	return c, nil
}
