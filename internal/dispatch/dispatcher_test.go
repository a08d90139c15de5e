package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/User159951/IntelliPM-sub015/internal/event"
)

type fakeHandler struct {
	name   string
	types  []string
	calls  int
	err    error
	panics bool
}

func (h *fakeHandler) Name() string         { return h.name }
func (h *fakeHandler) EventTypes() []string { return h.types }
func (h *fakeHandler) Handle(ctx context.Context, evt event.Event) error {
	h.calls++
	if h.panics {
		panic("boom")
	}
	return h.err
}

func testEvent() event.Event {
	return event.ProjectCreated{
		Base:      event.NewBase(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		ProjectID: 1,
		OrgID:     1,
		Name:      "Apollo",
	}
}

func TestDispatch_FailingHandlerDoesNotBlockSiblings(t *testing.T) {
	bad := &fakeHandler{name: "bad", types: []string{event.TypeProjectCreated}, err: errors.New("boom")}
	good := &fakeHandler{name: "good", types: []string{event.TypeProjectCreated}}
	d := NewDispatcher(NewRegistry(bad, good), zap.NewNop().Sugar())

	d.Dispatch(context.Background(), testEvent())

	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
}

func TestDispatch_PanicIsContained(t *testing.T) {
	panicky := &fakeHandler{name: "panicky", types: []string{event.TypeProjectCreated}, panics: true}
	good := &fakeHandler{name: "good", types: []string{event.TypeProjectCreated}}
	d := NewDispatcher(NewRegistry(panicky, good), zap.NewNop().Sugar())

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), testEvent())
	})
	assert.Equal(t, 1, good.calls)
}

func TestDispatch_NoHandlersIsANoOp(t *testing.T) {
	d := NewDispatcher(NewRegistry(), zap.NewNop().Sugar())
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), testEvent())
	})
}

func TestDispatchBatch_InvokesAllInOrder(t *testing.T) {
	h := &fakeHandler{name: "h", types: []string{event.TypeProjectCreated}}
	d := NewDispatcher(NewRegistry(h), zap.NewNop().Sugar())

	d.DispatchBatch(context.Background(), []event.Event{testEvent(), testEvent(), testEvent()})

	assert.Equal(t, 3, h.calls)
}

func TestRegistryDeliver_StopsAtFirstFailure(t *testing.T) {
	bad := &fakeHandler{name: "bad", types: []string{event.TypeProjectCreated}, err: errors.New("boom")}
	after := &fakeHandler{name: "after", types: []string{event.TypeProjectCreated}}
	reg := NewRegistry(bad, after)

	err := reg.Deliver(context.Background(), testEvent())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 0, after.calls)
}

func TestRegistry_HandlersForUnknownTypeEmpty(t *testing.T) {
	reg := NewRegistry(&fakeHandler{name: "h", types: []string{event.TypeTaskCreated}})
	assert.Empty(t, reg.HandlersFor(event.TypeCommentAdded))
	assert.Len(t, reg.HandlersFor(event.TypeTaskCreated), 1)
}
