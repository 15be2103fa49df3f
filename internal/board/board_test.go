package board

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
	"taskboard-api/internal/policy"
	"taskboard-api/internal/realtime"

	"github.com/stretchr/testify/require"
)

var serverNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory task store that runs the real engine and policy.
type fakeRemote struct {
	engine *lifecycle.Engine
	role   models.Role

	// gate, when set, holds every Update until a value is received.
	gate chan struct{}
	// listHold, when set, holds every List after its snapshot is taken;
	// listTaken hears about each snapshot.
	listHold  chan struct{}
	listTaken chan struct{}

	mu          sync.Mutex
	tasks       map[string]models.Task
	seq         int
	updateErr   error
	listErr     error
	listCalls   int
	updateCalls int
	inFlight    int
	maxInFlight int
	sent        []lifecycle.Patch
}

func newFakeRemote(role models.Role) *fakeRemote {
	return &fakeRemote{
		engine: lifecycle.NewEngineWithClock(func() time.Time { return serverNow }),
		role:   role,
		tasks:  make(map[string]models.Task),
	}
}

func (f *fakeRemote) seed(id, assignee string, status models.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.tasks[id] = models.Task{
		ID:         id,
		Title:      "Task " + id,
		AssigneeID: assignee,
		Assignee:   models.Assignee{ID: assignee, Name: assignee},
		Status:     status,
		Priority:   models.PriorityMedium,
		CreatedAt:  serverNow.Add(time.Duration(f.seq) * time.Minute),
	}
}

func (f *fakeRemote) List(context.Context) ([]models.Task, error) {
	f.mu.Lock()
	f.listCalls++
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := make([]models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Clone())
	}
	hold, taken := f.listHold, f.listTaken
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if hold != nil {
		taken <- struct{}{}
		<-hold
	}
	return out, nil
}

func (f *fakeRemote) Create(_ context.Context, p lifecycle.Patch) (models.Task, error) {
	if err := policy.CanCreate(f.role); err != nil {
		return models.Task{}, err
	}
	task, err := f.engine.Create(p)
	if err != nil {
		return models.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	task.ID = "new-" + string(rune('a'+f.seq))
	task.CreatedAt = serverNow.Add(time.Duration(f.seq) * time.Minute)
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, p lifecycle.Patch) (models.Task, error) {
	f.mu.Lock()
	f.updateCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.sent = append(f.sent, p)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.updateErr != nil {
		return models.Task{}, f.updateErr
	}
	if _, err := policy.AllowedFields(f.role, p.Fields()); err != nil {
		return models.Task{}, err
	}
	current, ok := f.tasks[id]
	if !ok {
		return models.Task{}, apperr.New(apperr.NotFound, "Task not found", nil)
	}
	next, _, err := f.engine.Apply(current, p)
	if err != nil {
		return models.Task{}, err
	}
	f.tasks[id] = next
	return next.Clone(), nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	if err := policy.CanDelete(f.role); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return apperr.New(apperr.NotFound, "Task not found", nil)
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRemote) counts() (lists, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.updateCalls
}

func loadedBoard(t *testing.T, remote *fakeRemote, opts ...Option) *Board {
	t.Helper()
	b := New(remote, "u-self", remote.role, opts...)
	require.NoError(t, b.Reload(context.Background()))
	return b
}

func statusOf(t *testing.T, b *Board, id string) models.TaskStatus {
	t.Helper()
	task, ok := b.Task(id)
	require.True(t, ok)
	return task.Status
}

func TestDragEnd_OptimisticThenCanonical(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	remote.gate = make(chan struct{})
	b := loadedBoard(t, remote)
	ctx := context.Background()

	require.True(t, b.DragStart("t-1"))
	b.DragOver(models.StatusDone)
	drag, ok := b.Dragging()
	require.True(t, ok)
	require.Equal(t, models.StatusDone, drag.Over)
	require.Equal(t, models.StatusTodo, drag.Origin.Status)

	dispatched, err := b.DragEnd(ctx, "t-1", models.StatusDone)
	require.NoError(t, err)
	require.True(t, dispatched)

	// shown before the server answers; the stamp is server-computed
	task, _ := b.Task("t-1")
	require.Equal(t, models.StatusDone, task.Status)
	require.Nil(t, task.ActualDeliveryDate)
	require.Equal(t, models.StatusTodo, b.Confirmed()[0].Status)

	remote.gate <- struct{}{}
	b.Wait()

	task, _ = b.Task("t-1")
	require.Equal(t, models.StatusDone, task.Status)
	require.NotNil(t, task.ActualDeliveryDate)
	require.True(t, serverNow.Equal(*task.ActualDeliveryDate))
	require.Zero(t, b.Pending("t-1"))

	require.Len(t, remote.sent, 1)
	require.Equal(t, []models.Field{models.FieldStatus}, remote.sent[0].Fields())
}

func TestDragEnd_InReviewLeavesDeliveryDateAbsent(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	b := loadedBoard(t, remote)

	require.True(t, b.DragStart("t-1"))
	dispatched, err := b.DragEnd(context.Background(), "t-1", models.StatusInReview)
	require.NoError(t, err)
	require.True(t, dispatched)
	b.Wait()

	task, _ := b.Task("t-1")
	require.Equal(t, models.StatusInReview, task.Status)
	require.Nil(t, task.ActualDeliveryDate)
}

func TestDragEnd_OutsideStagesIsNoop(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	var renders int
	b := loadedBoard(t, remote, WithObserver(func([]models.Task) { renders++ }))
	before := b.View()
	rendersBefore := renders
	ctx := context.Background()

	for _, target := range []models.TaskStatus{NoTarget, "archived", "DONE"} {
		require.True(t, b.DragStart("t-1"))
		b.DragOver(target)
		dispatched, err := b.DragEnd(ctx, "t-1", target)
		require.NoError(t, err)
		require.False(t, dispatched, target)
	}
	b.Wait()

	_, updates := remote.counts()
	require.Zero(t, updates)
	require.Equal(t, before, b.View())
	require.Equal(t, rendersBefore, renders)
	_, dragging := b.Dragging()
	require.False(t, dragging)
}

func TestDragEnd_SameStageOrUnknownIsNoop(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusInProgress)
	b := loadedBoard(t, remote)
	ctx := context.Background()

	require.True(t, b.DragStart("t-1"))
	dispatched, err := b.DragEnd(ctx, "t-1", models.StatusInProgress)
	require.NoError(t, err)
	require.False(t, dispatched)

	require.False(t, b.DragStart("ghost"))
	dispatched, err = b.DragEnd(ctx, "ghost", models.StatusDone)
	require.NoError(t, err)
	require.False(t, dispatched)

	// release without a start
	dispatched, err = b.DragEnd(ctx, "t-1", models.StatusDone)
	require.NoError(t, err)
	require.False(t, dispatched)

	_, updates := remote.counts()
	require.Zero(t, updates)
}

func TestDragEnd_RejectedRollsBackWithFullReload(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	remote.updateErr = apperr.New(apperr.StoreFailure, "server error", errors.New("disk full"))

	var failures []Failure
	b := loadedBoard(t, remote, WithFailureHandler(func(f Failure) { failures = append(failures, f) }))
	listsBefore, _ := remote.counts()

	require.True(t, b.DragStart("t-1"))
	dispatched, err := b.DragEnd(context.Background(), "t-1", models.StatusDone)
	require.NoError(t, err)
	require.True(t, dispatched)
	b.Wait()

	require.Equal(t, models.StatusTodo, statusOf(t, b, "t-1"))
	require.Zero(t, b.Pending("t-1"))
	lists, _ := remote.counts()
	require.Equal(t, listsBefore+1, lists)
	require.Len(t, failures, 1)
	require.Equal(t, "t-1", failures[0].TaskID)
	require.True(t, apperr.Is(failures[0].Err, apperr.StoreFailure))
}

func TestDragEnd_RejectedWithFailedReloadFallsBackToConfirmed(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	b := loadedBoard(t, remote)

	remote.updateErr = errors.New("connection reset")
	remote.listErr = errors.New("connection reset")

	require.True(t, b.DragStart("t-1"))
	_, err := b.DragEnd(context.Background(), "t-1", models.StatusInReview)
	require.NoError(t, err)
	b.Wait()

	require.Equal(t, models.StatusTodo, statusOf(t, b, "t-1"))
}

func TestDragEnd_SameTaskMutationsAreSerialized(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	remote.gate = make(chan struct{})
	b := loadedBoard(t, remote)
	ctx := context.Background()

	require.True(t, b.DragStart("t-1"))
	_, err := b.DragEnd(ctx, "t-1", models.StatusInProgress)
	require.NoError(t, err)

	require.True(t, b.DragStart("t-1"))
	dispatched, err := b.DragEnd(ctx, "t-1", models.StatusDone)
	require.NoError(t, err)
	require.True(t, dispatched)
	require.Equal(t, 2, b.Pending("t-1"))
	require.Equal(t, models.StatusDone, statusOf(t, b, "t-1"))

	remote.gate <- struct{}{}
	remote.gate <- struct{}{}
	b.Wait()

	_, updates := remote.counts()
	require.Equal(t, 2, updates)
	require.Equal(t, 1, remote.maxInFlight)
	task, _ := b.Task("t-1")
	require.Equal(t, models.StatusDone, task.Status)
	require.NotNil(t, task.ActualDeliveryDate)
}

func TestDragEnd_MemberIsRefusedLocally(t *testing.T) {
	remote := newFakeRemote(models.RoleMember)
	remote.seed("t-1", "u-self", models.StatusTodo)
	b := loadedBoard(t, remote)

	require.True(t, b.DragStart("t-1"))
	dispatched, err := b.DragEnd(context.Background(), "t-1", models.StatusDone)
	require.True(t, apperr.Is(err, apperr.Forbidden))
	require.False(t, dispatched)
	require.Equal(t, models.StatusTodo, statusOf(t, b, "t-1"))
	_, updates := remote.counts()
	require.Zero(t, updates)
}

func TestEdit_MemberNoteOnly(t *testing.T) {
	remote := newFakeRemote(models.RoleMember)
	remote.seed("t-1", "u-other", models.StatusTodo)
	b := loadedBoard(t, remote)
	ctx := context.Background()

	title := "hijack"
	note := "checked"
	err := b.Edit(ctx, "t-1", lifecycle.Patch{Title: &title, Note: &note})
	require.True(t, apperr.Is(err, apperr.Forbidden))
	_, updates := remote.counts()
	require.Zero(t, updates)

	require.NoError(t, b.Edit(ctx, "t-1", lifecycle.NotePatch("checked")))
	b.Wait()
	task, _ := b.Task("t-1")
	require.Equal(t, "checked", task.Note)
	require.Equal(t, "Task t-1", task.Title)
}

func TestEdit_ServerRejectionRollsBack(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	b := loadedBoard(t, remote)

	// the server no longer considers this session an admin
	remote.role = models.RoleMember
	title := "renamed"
	require.NoError(t, b.Edit(context.Background(), "t-1", lifecycle.Patch{Title: &title}))
	b.Wait()

	task, _ := b.Task("t-1")
	require.Equal(t, "Task t-1", task.Title)
}

func TestEdit_UnknownTask(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	b := loadedBoard(t, remote)
	err := b.Edit(context.Background(), "ghost", lifecycle.StatusPatch(models.StatusDone))
	require.True(t, apperr.Is(err, apperr.NotFound))
}

func TestReload_KeepsPendingOverlay(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	remote.gate = make(chan struct{})
	b := loadedBoard(t, remote)
	ctx := context.Background()

	require.True(t, b.DragStart("t-1"))
	_, err := b.DragEnd(ctx, "t-1", models.StatusInReview)
	require.NoError(t, err)

	remote.seed("t-2", "u-3", models.StatusTodo)
	require.NoError(t, b.Reload(ctx))
	require.Equal(t, models.StatusInReview, statusOf(t, b, "t-1"))
	require.Equal(t, "t-2", b.View()[0].ID)

	remote.gate <- struct{}{}
	b.Wait()
	require.Equal(t, models.StatusInReview, statusOf(t, b, "t-1"))
}

func TestReload_OverlappingStaleReloadsKeepConfirmedDrag(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	b := loadedBoard(t, remote)
	ctx := context.Background()

	remote.mu.Lock()
	remote.listHold = make(chan struct{})
	remote.listTaken = make(chan struct{}, 2)
	remote.mu.Unlock()

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- b.Reload(ctx) }()
	}
	<-remote.listTaken
	<-remote.listTaken

	// both reloads now hold a list where t-1 is still todo
	require.True(t, b.DragStart("t-1"))
	_, err := b.DragEnd(ctx, "t-1", models.StatusInProgress)
	require.NoError(t, err)
	b.Wait()
	require.Equal(t, models.StatusInProgress, statusOf(t, b, "t-1"))

	for range 2 {
		remote.listHold <- struct{}{}
		require.NoError(t, <-errs)
		require.Equal(t, models.StatusInProgress, statusOf(t, b, "t-1"))
		require.Equal(t, models.StatusInProgress, b.Confirmed()[0].Status)
	}

	// a reload started after the drag sees the server copy
	remote.mu.Lock()
	remote.listHold = nil
	remote.mu.Unlock()
	require.NoError(t, b.Reload(ctx))
	require.Equal(t, models.StatusInProgress, statusOf(t, b, "t-1"))
}

func TestReload_OlderResultIsDiscarded(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	b := loadedBoard(t, remote)
	ctx := context.Background()

	remote.mu.Lock()
	remote.listHold = make(chan struct{})
	remote.listTaken = make(chan struct{}, 1)
	remote.mu.Unlock()

	older := make(chan error, 1)
	go func() { older <- b.Reload(ctx) }()
	<-remote.listTaken

	remote.mu.Lock()
	hold := remote.listHold
	remote.listHold = nil
	remote.mu.Unlock()
	remote.seed("t-2", "u-3", models.StatusTodo)
	require.NoError(t, b.Reload(ctx))
	require.Len(t, b.View(), 2)

	close(hold)
	require.NoError(t, <-older)
	require.Len(t, b.View(), 2)
}

func TestColumn_FiltersByStageAndAssignee(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	remote.seed("t-1", "u-2", models.StatusTodo)
	remote.seed("t-2", "u-3", models.StatusTodo)
	remote.seed("t-3", "u-2", models.StatusDone)
	b := loadedBoard(t, remote)

	require.Len(t, b.Column(models.StatusTodo, ""), 2)
	todo := b.Column(models.StatusTodo, "u-2")
	require.Len(t, todo, 1)
	require.Equal(t, "t-1", todo[0].ID)
	require.Empty(t, b.Column(models.StatusInReview, ""))
}

func TestCreateAndDeleteReload(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	b := loadedBoard(t, remote)
	ctx := context.Background()

	p, err := lifecycle.DecodePatch([]byte(`{"title":"New","startDate":"2025-01-01","assignDate":"2025-01-01","expectedDeliveryDate":"2025-01-05","assignee":"u-2"}`))
	require.NoError(t, err)
	created, err := b.Create(ctx, p)
	require.NoError(t, err)
	_, ok := b.Task(created.ID)
	require.True(t, ok)

	require.NoError(t, b.Delete(ctx, created.ID))
	_, ok = b.Task(created.ID)
	require.False(t, ok)
	require.True(t, apperr.Is(b.Delete(ctx, created.ID), apperr.NotFound))
}

func TestCreateAndDelete_MemberRefusedLocally(t *testing.T) {
	remote := newFakeRemote(models.RoleMember)
	remote.seed("t-1", "u-2", models.StatusTodo)
	b := loadedBoard(t, remote)
	ctx := context.Background()

	_, err := b.Create(ctx, lifecycle.Patch{})
	require.True(t, apperr.Is(err, apperr.Forbidden))
	require.True(t, apperr.Is(b.Delete(ctx, "t-1"), apperr.Forbidden))
	_, ok := b.Task("t-1")
	require.True(t, ok)
}

func TestHandleEvent_ReloadsOnlyForOtherActors(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	b := loadedBoard(t, remote)
	ctx := context.Background()
	lists, _ := remote.counts()

	require.NoError(t, b.HandleEvent(ctx, realtime.Event{Type: realtime.EventTaskUpdated, ActorID: "u-self"}))
	after, _ := remote.counts()
	require.Equal(t, lists, after)

	remote.seed("t-9", "u-2", models.StatusTodo)
	require.NoError(t, b.HandleEvent(ctx, realtime.Event{Type: realtime.EventTaskCreated, TaskID: "t-9", ActorID: "u-other"}))
	_, ok := b.Task("t-9")
	require.True(t, ok)
}

func TestRun_ReloadsOnEventsUntilCancelled(t *testing.T) {
	remote := newFakeRemote(models.RoleAdmin)
	b := New(remote, "u-self", models.RoleAdmin)
	events := make(chan realtime.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, time.Hour, events) }()

	remote.seed("t-1", "u-2", models.StatusTodo)
	events <- realtime.Event{Type: realtime.EventTaskCreated, TaskID: "t-1", ActorID: "u-other"}
	require.Eventually(t, func() bool {
		_, ok := b.Task("t-1")
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
