// Package board is the client-side shadow of the task collection. It applies
// changes optimistically, sends them to a Remote, and reconciles: a success
// folds the canonical record in, a failure discards local state in favour of a
// full reload.
//
// State is a confirmed snapshot (the last server truth) plus a queue of pending
// patches per task. What a renderer shows is the snapshot with every pending
// patch overlaid in order. Mutations of one task are sent one at a time;
// different tasks proceed in parallel.
package board

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
	"taskboard-api/internal/policy"
	"taskboard-api/internal/realtime"
)

// Remote is the authoritative task store as seen from the client.
type Remote interface {
	List(ctx context.Context) ([]models.Task, error)
	Create(ctx context.Context, p lifecycle.Patch) (models.Task, error)
	Update(ctx context.Context, id string, p lifecycle.Patch) (models.Task, error)
	Delete(ctx context.Context, id string) error
}

// Failure reports a mutation the server rejected after it was shown locally.
type Failure struct {
	TaskID string
	Err    error
}

type Option func(*Board)

// WithObserver registers fn to receive the rendered view after every change.
// fn runs outside the board lock and may call back into the board.
func WithObserver(fn func([]models.Task)) Option {
	return func(b *Board) { b.observer = fn }
}

// WithFailureHandler registers fn to hear about rolled back mutations.
func WithFailureHandler(fn func(Failure)) Option {
	return func(b *Board) { b.onFailure = fn }
}

type Board struct {
	remote Remote
	userID string
	role   models.Role

	observer  func([]models.Task)
	onFailure func(Failure)

	mu        sync.Mutex
	order     []string
	confirmed map[string]models.Task
	// confirmedAt is the clock value of the last per-task confirmation; a
	// reload that started earlier must not overwrite it.
	confirmedAt map[string]uint64
	clock       uint64
	// loadedAt is the start clock of the reload that produced the snapshot.
	loadedAt uint64
	pending  map[string][]lifecycle.Patch
	drag     *dragState

	workers conc.WaitGroup
}

func New(remote Remote, userID string, role models.Role, opts ...Option) *Board {
	b := &Board{
		remote:      remote,
		userID:      userID,
		role:        role,
		confirmed:   make(map[string]models.Task),
		confirmedAt: make(map[string]uint64),
		pending:     make(map[string][]lifecycle.Patch),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Board) Role() models.Role { return b.role }

// Reload replaces the confirmed snapshot with the server's collection.
// Tasks confirmed by a mutation after the reload started keep that newer copy.
// A reload that finishes after a later-started one is discarded.
func (b *Board) Reload(ctx context.Context) error {
	b.mu.Lock()
	b.clock++
	startedAt := b.clock
	b.mu.Unlock()

	tasks, err := b.remote.List(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if startedAt < b.loadedAt {
		b.mu.Unlock()
		return nil
	}
	b.loadedAt = startedAt
	next := make(map[string]models.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if at, ok := b.confirmedAt[t.ID]; ok && at > startedAt {
			t = b.confirmed[t.ID]
		}
		next[t.ID] = t.Clone()
		order = append(order, t.ID)
	}
	for id, at := range b.confirmedAt {
		if _, listed := next[id]; !listed && at > startedAt {
			// confirmed after the list was read; it is newer than the list.
			next[id] = b.confirmed[id]
			order = append([]string{id}, order...)
		}
	}
	b.confirmed = next
	b.order = order
	for id, at := range b.confirmedAt {
		if at <= startedAt {
			delete(b.confirmedAt, id)
		}
	}
	for id := range b.pending {
		if _, ok := next[id]; !ok {
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	b.notify()
	return nil
}

// View returns the tasks as a renderer should show them, newest first.
func (b *Board) View() []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

// Confirmed returns the last server-confirmed copy of every task, newest first.
func (b *Board) Confirmed() []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.confirmed[id].Clone())
	}
	return out
}

// Task returns the rendered copy of one task.
func (b *Board) Task(id string) (models.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renderLocked(id)
}

// Column returns the rendered tasks in stage, optionally limited to one assignee.
func (b *Board) Column(stage models.TaskStatus, assigneeID string) []models.Task {
	var out []models.Task
	for _, t := range b.View() {
		if t.Status != stage {
			continue
		}
		if assigneeID != "" && assigneeOf(t) != assigneeID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Pending returns the number of unconfirmed mutations queued for a task.
func (b *Board) Pending(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[id])
}

// Edit applies p locally and sends it. The role filter mirrors the server's
// permission policy so a member never sends a request that must be refused.
func (b *Board) Edit(ctx context.Context, id string, p lifecycle.Patch) error {
	allowed, err := policy.AllowedFields(b.role, p.Fields())
	if err != nil {
		return err
	}
	p = p.Only(allowed...)
	if p.Empty() {
		return nil
	}
	return b.enqueue(ctx, id, p)
}

// Create sends a new task, then reloads. Creation is not optimistic: the
// server assigns the id.
func (b *Board) Create(ctx context.Context, p lifecycle.Patch) (models.Task, error) {
	if err := policy.CanCreate(b.role); err != nil {
		return models.Task{}, err
	}
	task, err := b.remote.Create(ctx, p)
	if err != nil {
		return models.Task{}, err
	}
	return task, b.Reload(ctx)
}

// Delete removes a task on the server, then reloads.
func (b *Board) Delete(ctx context.Context, id string) error {
	if err := policy.CanDelete(b.role); err != nil {
		return err
	}
	if err := b.remote.Delete(ctx, id); err != nil {
		if reloadErr := b.Reload(ctx); reloadErr != nil {
			slog.WarnContext(ctx, "board reload failed", "error", reloadErr)
		}
		return err
	}
	return b.Reload(ctx)
}

// HandleEvent reloads when another session changed the board.
func (b *Board) HandleEvent(ctx context.Context, evt realtime.Event) error {
	if evt.ActorID == b.userID {
		return nil
	}
	return b.Reload(ctx)
}

// Wait blocks until every dispatched mutation has been reconciled.
func (b *Board) Wait() {
	b.workers.Wait()
}

func (b *Board) enqueue(ctx context.Context, id string, p lifecycle.Patch) error {
	b.mu.Lock()
	if _, ok := b.confirmed[id]; !ok {
		b.mu.Unlock()
		return apperr.New(apperr.NotFound, "Task not found", nil)
	}
	queue := b.pending[id]
	b.pending[id] = append(queue, p)
	start := len(queue) == 0
	b.mu.Unlock()

	b.notify()
	if start {
		// once sent a mutation is not cancelled with its caller
		sendCtx := context.WithoutCancel(ctx)
		b.workers.Go(func() { b.drain(sendCtx, id) })
	}
	return nil
}

// drain sends the queued patches of one task in order until the queue is empty
// or one fails.
func (b *Board) drain(ctx context.Context, id string) {
	for {
		b.mu.Lock()
		queue := b.pending[id]
		if len(queue) == 0 {
			delete(b.pending, id)
			b.mu.Unlock()
			return
		}
		head := queue[0]
		b.mu.Unlock()

		canonical, err := b.remote.Update(ctx, id, head)
		if err != nil {
			b.rollback(ctx, id, err)
			return
		}

		b.mu.Lock()
		if _, known := b.confirmed[id]; !known {
			b.order = append([]string{id}, b.order...)
		}
		b.clock++
		b.confirmed[id] = canonical.Clone()
		b.confirmedAt[id] = b.clock
		rest := b.pending[id]
		if len(rest) > 0 {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			delete(b.pending, id)
		} else {
			b.pending[id] = rest
		}
		b.mu.Unlock()
		b.notify()
		if len(rest) == 0 {
			return
		}
	}
}

// rollback drops the task's queued patches and reloads everything from the
// server. If the reload fails too, the view falls back to the last confirmed
// snapshot.
func (b *Board) rollback(ctx context.Context, id string, cause error) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()

	slog.WarnContext(ctx, "board mutation rejected", "task_id", id, "code", apperr.CodeOf(cause).String(), "error", cause)
	if err := b.Reload(ctx); err != nil {
		slog.WarnContext(ctx, "board reload after rejection failed", "error", err)
		b.notify()
	}
	if b.onFailure != nil {
		b.onFailure(Failure{TaskID: id, Err: cause})
	}
}

func (b *Board) viewLocked() []models.Task {
	out := make([]models.Task, 0, len(b.order))
	for _, id := range b.order {
		t, _ := b.renderLocked(id)
		out = append(out, t)
	}
	return out
}

func (b *Board) renderLocked(id string) (models.Task, bool) {
	t, ok := b.confirmed[id]
	if !ok {
		return models.Task{}, false
	}
	t = t.Clone()
	for _, p := range b.pending[id] {
		t = keepAssigneeName(lifecycle.Merge(t, p), t)
	}
	return t, true
}

// keepAssigneeName holds on to the resolved assignee when a patch leaves it alone.
func keepAssigneeName(next, prev models.Task) models.Task {
	if next.Assignee.ID == prev.Assignee.ID {
		next.Assignee = prev.Assignee
	}
	return next
}

func assigneeOf(t models.Task) string {
	if t.AssigneeID != "" {
		return t.AssigneeID
	}
	return t.Assignee.ID
}

func (b *Board) notify() {
	if b.observer == nil {
		return
	}
	b.observer(b.View())
}
