package lifecycle

import (
	"sort"
	"strings"
	"time"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/models"
)

// Engine computes the next persisted state of a task from a proposed patch.
// Any stage may move to any other stage.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock is used by tests that need a fixed stamp time.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Apply returns current with p merged in, and the fields whose stored value must be written.
// When the resulting status is terminal and neither p nor current carries an actual
// delivery date, the date is stamped with the processing time.
func (e *Engine) Apply(current models.Task, p Patch) (models.Task, []models.Field, error) {
	if err := validate(p); err != nil {
		return models.Task{}, nil, err
	}

	next, changed := merge(current, p)
	if next.Status.IsTerminal() && next.ActualDeliveryDate == nil {
		stamp := e.now().UTC()
		next.ActualDeliveryDate = &stamp
		changed[models.FieldActualDeliveryDate] = struct{}{}
	}

	return next, sortedFields(changed), nil
}

// Merge overlays p on current without validation or derived fields. The board
// uses it to show a pending change before the server answers.
func Merge(current models.Task, p Patch) models.Task {
	next, _ := merge(current, p)
	return next
}

func merge(current models.Task, p Patch) (models.Task, map[models.Field]struct{}) {
	next := current.Clone()
	changed := make(map[models.Field]struct{})
	mark := func(f models.Field) { changed[f] = struct{}{} }

	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
		mark(models.FieldTitle)
	}
	if p.Desc != nil {
		next.Desc = *p.Desc
		mark(models.FieldDesc)
	}
	if p.Note != nil {
		next.Note = *p.Note
		mark(models.FieldNote)
	}
	if p.StartDate != nil {
		next.StartDate = *p.StartDate
		mark(models.FieldStartDate)
	}
	if p.AssignDate != nil {
		next.AssignDate = *p.AssignDate
		mark(models.FieldAssignDate)
	}
	if p.ExpectedDeliveryDate != nil {
		next.ExpectedDeliveryDate = *p.ExpectedDeliveryDate
		mark(models.FieldExpectedDeliveryDate)
	}
	if p.ActualDeliveryDate != nil {
		d := *p.ActualDeliveryDate
		next.ActualDeliveryDate = &d
		mark(models.FieldActualDeliveryDate)
	}
	if p.AssigneeID != nil {
		next.AssigneeID = *p.AssigneeID
		next.Assignee = models.Assignee{ID: *p.AssigneeID}
		mark(models.FieldAssignee)
	}
	if p.Status != nil {
		next.Status = *p.Status
		mark(models.FieldStatus)
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
		mark(models.FieldPriority)
	}

	return next, changed
}

func sortedFields(set map[models.Field]struct{}) []models.Field {
	out := make([]models.Field, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Create builds a new task from p, applying defaults for status and priority.
// The id and timestamps are left for the store.
func (e *Engine) Create(p Patch) (models.Task, error) {
	if err := p.Err(); err != nil {
		return models.Task{}, err
	}
	var missing []string
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		missing = append(missing, string(models.FieldTitle))
	}
	if p.StartDate == nil {
		missing = append(missing, string(models.FieldStartDate))
	}
	if p.AssignDate == nil {
		missing = append(missing, string(models.FieldAssignDate))
	}
	if p.ExpectedDeliveryDate == nil {
		missing = append(missing, string(models.FieldExpectedDeliveryDate))
	}
	if p.AssigneeID == nil || *p.AssigneeID == "" {
		missing = append(missing, string(models.FieldAssignee))
	}
	if len(missing) > 0 {
		return models.Task{}, apperr.New(apperr.InvalidArgument, "missing required fields: "+strings.Join(missing, ", "), nil)
	}

	base := models.Task{Status: models.StatusTodo, Priority: models.PriorityMedium}
	next, _, err := e.Apply(base, p)
	if err != nil {
		return models.Task{}, err
	}
	return next, nil
}

func validate(p Patch) error {
	if err := p.Err(); err != nil {
		return err
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("invalid status %q", *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return invalid("invalid priority %q", *p.Priority)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return invalid("title must not be empty")
	}
	if p.AssigneeID != nil && strings.TrimSpace(*p.AssigneeID) == "" {
		return invalid("assignee must not be empty")
	}
	return nil
}
