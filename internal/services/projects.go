package services

import (
	"context"
	"strings"
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/policy"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type ProjectInput struct {
	Name        string     `json:"name" binding:"required,min=1,max=200"`
	Description string     `json:"description" binding:"max=2000"`
	Deadline    *time.Time `json:"deadline"`
}

// ProjectPatch changes only the fields that are non-nil.
type ProjectPatch struct {
	Name        *string               `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string               `json:"description" binding:"omitempty,max=2000"`
	Deadline    *time.Time            `json:"deadline"`
	Status      *models.ProjectStatus `json:"status"`
}

type ProjectFilters struct {
	Status *models.ProjectStatus
	Name   string
	Skip   int
	Limit  int
}

type ProjectProgress struct {
	ProjectID          uuid.UUID `json:"project_id"`
	TotalTasks         int64     `json:"total_tasks"`
	CompletedTasks     int64     `json:"completed_tasks"`
	InProgressTasks    int64     `json:"in_progress_tasks"`
	TodoTasks          int64     `json:"todo_tasks"`
	ProgressPercentage float64   `json:"progress_percentage"`
}

func newProjectProgress(projectID uuid.UUID, c repositories.StatusCounts) *ProjectProgress {
	return &ProjectProgress{
		ProjectID:          projectID,
		TotalTasks:         c.Total,
		CompletedTasks:     c.Done,
		InProgressTasks:    c.InProgress,
		TodoTasks:          c.Todo,
		ProgressPercentage: percent(c.Done, c.Total),
	}
}

type ProjectService struct {
	store     repositories.Store
	publisher EventPublisher
	progress  ProgressCache
}

func NewProjectService(store repositories.Store, publisher EventPublisher, progress ProgressCache) *ProjectService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if progress == nil {
		progress = noopCache{}
	}
	return &ProjectService{store: store, publisher: publisher, progress: progress}
}

func (s *ProjectService) Create(ctx context.Context, p policy.Principal, in ProjectInput) (*models.Project, error) {
	if !policy.CanCreateProject(p) {
		return nil, apperrors.PermissionDenied("only admins can create projects")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Validation("project name is required")
	}

	project := &models.Project{
		Name:        name,
		Description: in.Description,
		Deadline:    in.Deadline,
		Status:      models.ProjectPending,
		CreatedBy:   p.ID,
	}
	if err := s.store.Projects().Create(ctx, project); err != nil {
		return nil, storeError(err, "project not found")
	}

	s.publisher.Publish(ctx, events.ProjectCreated{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		CreatedBy:   p.ID,
	})
	return project, nil
}

// List never fails for lack of access; it returns only visible projects.
func (s *ProjectService) List(ctx context.Context, p policy.Principal, f ProjectFilters) ([]models.Project, error) {
	scope := policy.CanListProjects(p)
	projects, err := s.store.Projects().List(ctx, repositories.ProjectFilter{
		AllProjects: scope.Unrestricted,
		MemberID:    scope.MemberID,
		Status:      f.Status,
		Name:        f.Name,
		Page:        page(f.Skip, f.Limit),
	})
	if err != nil {
		return nil, storeError(err, "project not found")
	}
	return projects, nil
}

// Get reports NotFound both for missing projects and for projects the
// principal may not read.
func (s *ProjectService) Get(ctx context.Context, p policy.Principal, id uuid.UUID) (*models.Project, error) {
	project, err := s.store.Projects().FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "project not found")
	}
	if !policy.CanReadProject(p, project) {
		return nil, apperrors.NotFound("project not found")
	}
	return project, nil
}

func (s *ProjectService) Update(ctx context.Context, p policy.Principal, id uuid.UUID, patch ProjectPatch) (*models.Project, error) {
	project, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanWriteProject(p, project) {
		return nil, apperrors.PermissionDenied("not allowed to update this project")
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.Validation("project name must not be empty")
		}
		project.Name = name
	}
	if patch.Description != nil {
		project.Description = *patch.Description
	}
	if patch.Deadline != nil {
		project.Deadline = patch.Deadline
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperrors.Validationf("invalid project status %q", *patch.Status)
		}
		project.Status = *patch.Status
	}
	project.UpdatedAt = time.Now()

	if err := s.store.Projects().Update(ctx, project); err != nil {
		return nil, storeError(err, "project not found")
	}

	s.publisher.Publish(ctx, events.ProjectUpdated{ProjectID: project.ID, UpdatedBy: p.ID})
	return project, nil
}

func (s *ProjectService) Delete(ctx context.Context, p policy.Principal, id uuid.UUID) error {
	if !policy.CanDeleteProject(p) {
		return apperrors.PermissionDenied("only admins can delete projects")
	}
	if err := s.store.Projects().Delete(ctx, id); err != nil {
		return storeError(err, "project not found")
	}

	s.progress.Invalidate(ctx, id)
	s.publisher.Publish(ctx, events.ProjectDeleted{ProjectID: id, DeletedBy: p.ID})
	return nil
}

// Progress reads through the progress cache.
func (s *ProjectService) Progress(ctx context.Context, p policy.Principal, id uuid.UUID) (*ProjectProgress, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}

	var cached ProjectProgress
	version, hit := s.progress.Get(ctx, id, &cached)
	if hit {
		return &cached, nil
	}

	counts, err := s.store.Tasks().CountByStatus(ctx, repositories.TaskFilter{AllTasks: true, ProjectID: &id})
	if err != nil {
		return nil, storeError(err, "project not found")
	}
	progress := newProjectProgress(id, counts)
	s.progress.Set(ctx, id, version, progress)
	return progress, nil
}

// AddMember is idempotent.
func (s *ProjectService) AddMember(ctx context.Context, p policy.Principal, projectID, userID uuid.UUID) error {
	if !policy.CanManageMembers(p) {
		return apperrors.PermissionDenied("only admins can manage project members")
	}
	if _, err := s.store.Projects().FindByID(ctx, projectID); err != nil {
		return storeError(err, "project not found")
	}
	if _, err := s.store.Users().FindByID(ctx, userID); err != nil {
		return storeError(err, "user not found")
	}
	return storeError(s.store.Projects().AddMember(ctx, projectID, userID), "project not found")
}

// RemoveMember is idempotent.
func (s *ProjectService) RemoveMember(ctx context.Context, p policy.Principal, projectID, userID uuid.UUID) error {
	if !policy.CanManageMembers(p) {
		return apperrors.PermissionDenied("only admins can manage project members")
	}
	if _, err := s.store.Projects().FindByID(ctx, projectID); err != nil {
		return storeError(err, "project not found")
	}
	return storeError(s.store.Projects().RemoveMember(ctx, projectID, userID), "project not found")
}

func (s *ProjectService) Members(ctx context.Context, p policy.Principal, projectID uuid.UUID) ([]models.User, error) {
	project, err := s.Get(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	if project.Members == nil {
		return []models.User{}, nil
	}
	return project.Members, nil
}
