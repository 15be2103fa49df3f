package board

import (
	"context"

	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
)

// NoTarget is the DragEnd target for a release outside every column.
const NoTarget models.TaskStatus = ""

type dragState struct {
	taskID string
	origin models.Task
	over   models.TaskStatus
}

// Drag describes a gesture in progress.
type Drag struct {
	TaskID string
	// Origin is the task as it looked when the gesture started.
	Origin models.Task
	// Over is the column under the pointer, NoTarget when none.
	Over models.TaskStatus
}

// DragStart begins a gesture on taskID. It reports false for a task the board
// does not hold.
func (b *Board) DragStart(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.renderLocked(taskID)
	if !ok {
		b.drag = nil
		return false
	}
	b.drag = &dragState{taskID: taskID, origin: t}
	return true
}

// DragOver records the column under the pointer. A value outside the stage
// set is kept as NoTarget.
func (b *Board) DragOver(target models.TaskStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drag == nil {
		return
	}
	if !target.Valid() {
		target = NoTarget
	}
	b.drag.over = target
}

// Dragging returns the gesture in progress, if any.
func (b *Board) Dragging() (Drag, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drag == nil {
		return Drag{}, false
	}
	return Drag{TaskID: b.drag.taskID, Origin: b.drag.origin.Clone(), Over: b.drag.over}, true
}

// DragEnd finishes the gesture. A release over a valid column other than the
// task's current one rewrites the local status at once and sends {status}.
// Anything else is a no-op. It reports whether a mutation was dispatched.
func (b *Board) DragEnd(ctx context.Context, taskID string, target models.TaskStatus) (bool, error) {
	b.mu.Lock()
	drag := b.drag
	b.drag = nil
	current, known := b.renderLocked(taskID)
	b.mu.Unlock()

	if drag == nil || drag.taskID != taskID || !known {
		return false, nil
	}
	if !target.Valid() || target == current.Status {
		return false, nil
	}
	if err := b.Edit(ctx, taskID, lifecycle.StatusPatch(target)); err != nil {
		return false, err
	}
	return true, nil
}

// CancelDrag abandons the gesture without any change.
func (b *Board) CancelDrag() {
	b.mu.Lock()
	b.drag = nil
	b.mu.Unlock()
}
