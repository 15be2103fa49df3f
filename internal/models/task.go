package models

import (
	"time"
)

// TaskStatus is a board stage. Each value is one column.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusInReview   TaskStatus = "in_review"
	StatusDone       TaskStatus = "done"
)

// Stages returns the board columns in display order.
func Stages() []TaskStatus {
	return []TaskStatus{StatusTodo, StatusInProgress, StatusInReview, StatusDone}
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	}
	return false
}

// IsTerminal reports whether reaching s stamps the actual delivery date.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone
}

func (s TaskStatus) Label() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusInReview:
		return "In Review"
	case StatusDone:
		return "Done"
	default:
		return string(s)
	}
}

// TaskPriority represents the priority of a task
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Assignee is the resolved view of the user a task is assigned to.
type Assignee struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task represents a task on the board
type Task struct {
	ID                   string       `json:"id" gorm:"primaryKey"`
	Title                string       `json:"title" gorm:"not null"`
	Desc                 string       `json:"desc"`
	Note                 string       `json:"note"`
	StartDate            time.Time    `json:"startDate" gorm:"column:start_date;not null"`
	AssignDate           time.Time    `json:"assignDate" gorm:"column:assign_date;not null"`
	ExpectedDeliveryDate time.Time    `json:"expectedDeliveryDate" gorm:"column:expected_delivery_date;not null"`
	ActualDeliveryDate   *time.Time   `json:"actualDeliveryDate,omitempty" gorm:"column:actual_delivery_date"`
	AssigneeID           string       `json:"-" gorm:"column:assignee_id;not null;index"`
	Assignee             Assignee     `json:"assignee" gorm:"-"`
	Status               TaskStatus   `json:"status" gorm:"not null;default:'todo';index"`
	Priority             TaskPriority `json:"priority" gorm:"not null;default:'medium'"`
	CreatedAt            time.Time    `json:"createdAt" gorm:"index"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

// TableName specifies the table name for Task Model
func (Task) TableName() string {
	return "tasks"
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	if t.ActualDeliveryDate != nil {
		d := *t.ActualDeliveryDate
		t.ActualDeliveryDate = &d
	}
	return t
}
