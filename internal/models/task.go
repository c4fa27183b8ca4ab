package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string       `json:"title" gorm:"not null"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority" gorm:"type:varchar(20);not null;default:'medium'"`
	Status      TaskStatus   `json:"status" gorm:"type:varchar(20);not null;default:'todo';index"`
	Deadline    *time.Time   `json:"deadline"`
	ProjectID   uuid.UUID    `json:"project_id" gorm:"type:uuid;not null;index"`
	AssignedTo  *uuid.UUID   `json:"assigned_to" gorm:"type:uuid;index"`
	CreatedBy   uuid.UUID    `json:"created_by" gorm:"type:uuid;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	return assignID(&t.ID)
}

func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// ActivityLog is append-only.
type ActivityLog struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Action    string    `json:"action" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	return assignID(&a.ID)
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Project{}, &ProjectMember{}, &Task{}, &ActivityLog{}, &Token{}}
}
