// Package events defines the domain events published on the bus.
//
// Each kind is its own struct. On the wire an event is a flat JSON object
// whose "event" field carries the kind, for example
//
//	{"event":"task_moved","task_id":"...","old_status":"todo","new_status":"done",...}
package events

import (
	"github.com/gofrs/uuid"
)

type Topic string

const (
	TopicTaskUpdates    Topic = "task_updates"
	TopicProjectUpdates Topic = "project_updates"
	TopicKanbanUpdates  Topic = "kanban_updates"
	TopicNotifications  Topic = "notifications"
)

// Topics is the fixed set a notification listener subscribes to.
var Topics = []Topic{TopicTaskUpdates, TopicProjectUpdates, TopicKanbanUpdates, TopicNotifications}

type Kind string

const (
	KindProjectCreated Kind = "project_created"
	KindProjectUpdated Kind = "project_updated"
	KindProjectDeleted Kind = "project_deleted"
	KindTaskCreated    Kind = "task_created"
	KindTaskUpdated    Kind = "task_updated"
	KindTaskDeleted    Kind = "task_deleted"
	KindTaskMoved      Kind = "task_moved"
	KindNotification   Kind = "notification"
)

// Event is implemented only by the types in this package.
type Event interface {
	Kind() Kind
	Topic() Topic
	sealed()
}

type ProjectCreated struct {
	ProjectID   uuid.UUID `json:"project_id"`
	ProjectName string    `json:"project_name"`
	CreatedBy   uuid.UUID `json:"created_by"`
}

type ProjectUpdated struct {
	ProjectID uuid.UUID `json:"project_id"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}

type ProjectDeleted struct {
	ProjectID uuid.UUID `json:"project_id"`
	DeletedBy uuid.UUID `json:"deleted_by"`
}

type TaskCreated struct {
	TaskID     uuid.UUID  `json:"task_id"`
	TaskTitle  string     `json:"task_title"`
	ProjectID  uuid.UUID  `json:"project_id"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
	CreatedBy  uuid.UUID  `json:"created_by"`
}

type StatusChange struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

type TaskUpdated struct {
	TaskID        uuid.UUID     `json:"task_id"`
	TaskTitle     string        `json:"task_title"`
	ProjectID     uuid.UUID     `json:"project_id"`
	UpdatedBy     uuid.UUID     `json:"updated_by"`
	StatusChanged *StatusChange `json:"status_changed,omitempty"`
}

type TaskDeleted struct {
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title"`
	ProjectID uuid.UUID `json:"project_id"`
	DeletedBy uuid.UUID `json:"deleted_by"`
}

type TaskMoved struct {
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ProjectID uuid.UUID `json:"project_id"`
	MovedBy   uuid.UUID `json:"moved_by"`
}

// Notification is a free-form message. When Recipient is set only that
// user's connection receives it.
type Notification struct {
	Message   string     `json:"message"`
	Title     string     `json:"title,omitempty"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`
	Recipient *uuid.UUID `json:"user_id,omitempty"`
}

func (ProjectCreated) Kind() Kind { return KindProjectCreated }
func (ProjectUpdated) Kind() Kind { return KindProjectUpdated }
func (ProjectDeleted) Kind() Kind { return KindProjectDeleted }
func (TaskCreated) Kind() Kind    { return KindTaskCreated }
func (TaskUpdated) Kind() Kind    { return KindTaskUpdated }
func (TaskDeleted) Kind() Kind    { return KindTaskDeleted }
func (TaskMoved) Kind() Kind      { return KindTaskMoved }
func (Notification) Kind() Kind   { return KindNotification }

func (ProjectCreated) Topic() Topic { return TopicProjectUpdates }
func (ProjectUpdated) Topic() Topic { return TopicProjectUpdates }
func (ProjectDeleted) Topic() Topic { return TopicProjectUpdates }
func (TaskCreated) Topic() Topic    { return TopicTaskUpdates }
func (TaskUpdated) Topic() Topic    { return TopicTaskUpdates }
func (TaskDeleted) Topic() Topic    { return TopicTaskUpdates }
func (TaskMoved) Topic() Topic      { return TopicKanbanUpdates }
func (Notification) Topic() Topic   { return TopicNotifications }

func (ProjectCreated) sealed() {}
func (ProjectUpdated) sealed() {}
func (ProjectDeleted) sealed() {}
func (TaskCreated) sealed()    {}
func (TaskUpdated) sealed()    {}
func (TaskDeleted) sealed()    {}
func (TaskMoved) sealed()      {}
func (Notification) sealed()   {}
