package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/models"
)

// Patch is a proposed change to a task. Nil fields are left untouched.
//
// Requested records every top-level key the caller sent, including keys whose
// value was blank or outside the Task schema; the permission policy is judged
// on that set, not on the values that survive normalisation.
type Patch struct {
	Title                *string
	Desc                 *string
	Note                 *string
	StartDate            *time.Time
	AssignDate           *time.Time
	ExpectedDeliveryDate *time.Time
	ActualDeliveryDate   *time.Time
	AssigneeID           *string
	Status               *models.TaskStatus
	Priority             *models.TaskPriority

	requested map[models.Field]struct{}
	invalid   error
}

// StatusPatch is the body a drag gesture sends.
func StatusPatch(s models.TaskStatus) Patch {
	return Patch{Status: &s}
}

// NotePatch is the only patch a member may send.
func NotePatch(note string) Patch {
	return Patch{Note: &note}
}

// Fields returns the requested field set, sorted.
func (p Patch) Fields() []models.Field {
	set := make(map[models.Field]struct{}, len(p.requested)+10)
	for f := range p.requested {
		set[f] = struct{}{}
	}
	for _, f := range p.valued() {
		set[f] = struct{}{}
	}
	out := make([]models.Field, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// valued lists the fields that carry a value.
func (p Patch) valued() []models.Field {
	var out []models.Field
	add := func(ok bool, f models.Field) {
		if ok {
			out = append(out, f)
		}
	}
	add(p.Title != nil, models.FieldTitle)
	add(p.Desc != nil, models.FieldDesc)
	add(p.Note != nil, models.FieldNote)
	add(p.StartDate != nil, models.FieldStartDate)
	add(p.AssignDate != nil, models.FieldAssignDate)
	add(p.ExpectedDeliveryDate != nil, models.FieldExpectedDeliveryDate)
	add(p.ActualDeliveryDate != nil, models.FieldActualDeliveryDate)
	add(p.AssigneeID != nil, models.FieldAssignee)
	add(p.Status != nil, models.FieldStatus)
	add(p.Priority != nil, models.FieldPriority)
	return out
}

func (p Patch) Empty() bool {
	return len(p.Fields()) == 0
}

// Only returns a copy of p keeping just the given fields, values and requested keys alike.
func (p Patch) Only(keep ...models.Field) Patch {
	allowed := make(map[models.Field]bool, len(keep))
	for _, f := range keep {
		allowed[f] = true
	}
	var out Patch
	if allowed[models.FieldTitle] {
		out.Title = p.Title
	}
	if allowed[models.FieldDesc] {
		out.Desc = p.Desc
	}
	if allowed[models.FieldNote] {
		out.Note = p.Note
	}
	if allowed[models.FieldStartDate] {
		out.StartDate = p.StartDate
	}
	if allowed[models.FieldAssignDate] {
		out.AssignDate = p.AssignDate
	}
	if allowed[models.FieldExpectedDeliveryDate] {
		out.ExpectedDeliveryDate = p.ExpectedDeliveryDate
	}
	if allowed[models.FieldActualDeliveryDate] {
		out.ActualDeliveryDate = p.ActualDeliveryDate
	}
	if allowed[models.FieldAssignee] {
		out.AssigneeID = p.AssigneeID
	}
	if allowed[models.FieldStatus] {
		out.Status = p.Status
	}
	if allowed[models.FieldPriority] {
		out.Priority = p.Priority
	}
	for f := range p.requested {
		if allowed[f] {
			out.markRequested(f)
		}
	}
	out.invalid = p.invalid
	return out
}

func (p *Patch) markRequested(f models.Field) {
	if p.requested == nil {
		p.requested = make(map[models.Field]struct{})
	}
	p.requested[f] = struct{}{}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2 Jan 2006",
	"02 Jan 2006",
}

// ParseDate accepts the date layouts the board forms produce.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func invalid(format string, args ...any) error {
	return apperr.New(apperr.InvalidArgument, fmt.Sprintf(format, args...), nil)
}

// DecodePatch parses a JSON object into a Patch. Blank values of non-text
// fields are treated as absent; desc and note keep empty strings.
//
// Only a body that is not a JSON object fails here. A malformed value is kept
// on the patch and reported by Err, so the caller can judge the requested key
// set before rejecting the values.
func DecodePatch(data []byte) (Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Patch{}, invalid("request body must be a JSON object")
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var p Patch
	for _, key := range keys {
		f := models.Field(key)
		p.markRequested(f)
		if err := p.decodeField(f, raw[key]); err != nil && p.invalid == nil {
			p.invalid = err
		}
	}
	return p, nil
}

// Err reports the first malformed value DecodePatch saw.
func (p Patch) Err() error {
	return p.invalid
}

func (p *Patch) decodeField(f models.Field, val json.RawMessage) error {
	if isNull(val) {
		return nil
	}
	switch f {
	case models.FieldTitle:
		s, err := decodeString(f, val)
		if err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			p.Title = &s
		}
	case models.FieldDesc, models.FieldNote:
		s, err := decodeString(f, val)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if f == models.FieldDesc {
			p.Desc = &s
		} else {
			p.Note = &s
		}
	case models.FieldStartDate, models.FieldAssignDate, models.FieldExpectedDeliveryDate, models.FieldActualDeliveryDate:
		d, err := decodeDate(f, val)
		if err != nil || d == nil {
			return err
		}
		switch f {
		case models.FieldStartDate:
			p.StartDate = d
		case models.FieldAssignDate:
			p.AssignDate = d
		case models.FieldExpectedDeliveryDate:
			p.ExpectedDeliveryDate = d
		default:
			p.ActualDeliveryDate = d
		}
	case models.FieldAssignee:
		id, err := decodeAssignee(val)
		if err != nil {
			return err
		}
		if id != "" {
			p.AssigneeID = &id
		}
	case models.FieldStatus:
		s, err := decodeString(f, val)
		if err != nil || s == "" {
			return err
		}
		st := models.TaskStatus(s)
		if !st.Valid() {
			return invalid("invalid status %q", s)
		}
		p.Status = &st
	case models.FieldPriority:
		s, err := decodeString(f, val)
		if err != nil || s == "" {
			return err
		}
		pr := models.TaskPriority(s)
		if !pr.Valid() {
			return invalid("invalid priority %q", s)
		}
		p.Priority = &pr
	}
	return nil
}

func isNull(val json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(val), []byte("null"))
}

func decodeString(f models.Field, val json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		return "", invalid("%s must be a string", f)
	}
	return s, nil
}

func decodeDate(f models.Field, val json.RawMessage) (*time.Time, error) {
	s, err := decodeString(f, val)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, ok := ParseDate(s)
	if !ok {
		return nil, invalid("%s is not a valid date", f)
	}
	return &d, nil
}

// decodeAssignee accepts either a bare user id or an object carrying one.
func decodeAssignee(val json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(val, &id); err == nil {
		return strings.TrimSpace(id), nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(val, &obj); err != nil {
		return "", invalid("assignee must be a user id")
	}
	return strings.TrimSpace(obj.ID), nil
}

// MarshalJSON writes the fields that carry a value.
func (p Patch) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	date := func(t *time.Time) string { return t.UTC().Format(time.RFC3339) }
	if p.Title != nil {
		out[string(models.FieldTitle)] = *p.Title
	}
	if p.Desc != nil {
		out[string(models.FieldDesc)] = *p.Desc
	}
	if p.Note != nil {
		out[string(models.FieldNote)] = *p.Note
	}
	if p.StartDate != nil {
		out[string(models.FieldStartDate)] = date(p.StartDate)
	}
	if p.AssignDate != nil {
		out[string(models.FieldAssignDate)] = date(p.AssignDate)
	}
	if p.ExpectedDeliveryDate != nil {
		out[string(models.FieldExpectedDeliveryDate)] = date(p.ExpectedDeliveryDate)
	}
	if p.ActualDeliveryDate != nil {
		out[string(models.FieldActualDeliveryDate)] = date(p.ActualDeliveryDate)
	}
	if p.AssigneeID != nil {
		out[string(models.FieldAssignee)] = *p.AssigneeID
	}
	if p.Status != nil {
		out[string(models.FieldStatus)] = *p.Status
	}
	if p.Priority != nil {
		out[string(models.FieldPriority)] = *p.Priority
	}
	return json.Marshal(out)
}
