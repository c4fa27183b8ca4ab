// Package policy holds the access rules for projects and tasks.
//
// Every function is pure: callers load the resource, ask the policy, and turn
// a false answer into either an empty result, a not-found, or a permission
// error depending on the operation.
package policy

import (
	"flowtrack/backend/internal/models"

	"github.com/gofrs/uuid"
)

// Principal is the authenticated actor behind a request.
type Principal struct {
	ID   uuid.UUID
	Role models.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// ProjectScope restricts a project listing. A zero MemberID with
// Unrestricted set means every project is visible.
type ProjectScope struct {
	Unrestricted bool
	MemberID     uuid.UUID
}

// TaskScope restricts a task listing to tasks assigned to AssigneeID
// unless Unrestricted is set.
type TaskScope struct {
	Unrestricted bool
	AssigneeID   uuid.UUID
}

func CanListProjects(p Principal) ProjectScope {
	if p.IsAdmin() {
		return ProjectScope{Unrestricted: true}
	}
	return ProjectScope{MemberID: p.ID}
}

func CanListTasks(p Principal) TaskScope {
	if p.IsAdmin() {
		return TaskScope{Unrestricted: true}
	}
	return TaskScope{AssigneeID: p.ID}
}

// CanReadProject expects project.Members to be loaded.
func CanReadProject(p Principal, project *models.Project) bool {
	if p.IsAdmin() {
		return true
	}
	return project != nil && project.HasMember(p.ID)
}

// CanWriteProject lets members update but never delete.
func CanWriteProject(p Principal, project *models.Project) bool {
	return CanReadProject(p, project)
}

func CanDeleteProject(p Principal) bool {
	return p.IsAdmin()
}

func CanCreateProject(p Principal) bool {
	return p.IsAdmin()
}

func CanManageMembers(p Principal) bool {
	return p.IsAdmin()
}

func CanReadTask(p Principal, task *models.Task) bool {
	if p.IsAdmin() {
		return true
	}
	return task != nil && task.IsAssignedTo(p.ID)
}

func CanWriteTask(p Principal, task *models.Task) bool {
	return CanReadTask(p, task)
}

func CanReassignTask(p Principal) bool {
	return p.IsAdmin()
}

func CanCreateTask(p Principal, project *models.Project) bool {
	return CanReadProject(p, project)
}

// CanManageUsers gates the user administration surface and the
// organisation-wide reports.
func CanManageUsers(p Principal) bool {
	return p.IsAdmin()
}
