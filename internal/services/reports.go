package services

import (
	"context"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/policy"
	"flowtrack/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type DashboardStats struct {
	TotalProjects   int64 `json:"total_projects"`
	TotalTasks      int64 `json:"total_tasks"`
	CompletedTasks  int64 `json:"completed_tasks"`
	InProgressTasks int64 `json:"in_progress_tasks"`
	TodoTasks       int64 `json:"todo_tasks"`
}

type Dashboard struct {
	Projects []models.Project `json:"projects"`
	Tasks    []models.Task    `json:"tasks"`
	Stats    DashboardStats   `json:"stats"`
}

type DashboardService struct {
	store    repositories.Store
	projects *ProjectService
	tasks    *TaskService
}

func NewDashboardService(store repositories.Store, projects *ProjectService, tasks *TaskService) *DashboardService {
	return &DashboardService{store: store, projects: projects, tasks: tasks}
}

// Get composes the visible projects and tasks. Counts cover everything
// visible, the lists only the first page.
func (s *DashboardService) Get(ctx context.Context, p policy.Principal) (*Dashboard, error) {
	projects, err := s.projects.List(ctx, p, ProjectFilters{})
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, p, TaskFilters{})
	if err != nil {
		return nil, err
	}

	ps := policy.CanListProjects(p)
	projectCount, err := s.store.Projects().Count(ctx, repositories.ProjectFilter{AllProjects: ps.Unrestricted, MemberID: ps.MemberID})
	if err != nil {
		return nil, storeError(err, "project not found")
	}
	ts := policy.CanListTasks(p)
	counts, err := s.store.Tasks().CountByStatus(ctx, repositories.TaskFilter{AllTasks: ts.Unrestricted, AssigneeID: ts.AssigneeID})
	if err != nil {
		return nil, storeError(err, "task not found")
	}

	return &Dashboard{
		Projects: projects,
		Tasks:    tasks,
		Stats: DashboardStats{
			TotalProjects:   projectCount,
			TotalTasks:      counts.Total,
			CompletedTasks:  counts.Done,
			InProgressTasks: counts.InProgress,
			TodoTasks:       counts.Todo,
		},
	}, nil
}

type ProjectReport struct {
	ProjectName string `json:"project_name"`
	ProjectProgress
}

type TeamPerformance struct {
	UserID          uuid.UUID `json:"user_id"`
	UserName        string    `json:"user_name"`
	TotalTasks      int64     `json:"total_tasks"`
	CompletedTasks  int64     `json:"completed_tasks"`
	InProgressTasks int64     `json:"in_progress_tasks"`
	TodoTasks       int64     `json:"todo_tasks"`
	CompletionRate  float64   `json:"completion_rate"`
}

type Workload struct {
	UserID              uuid.UUID `json:"user_id"`
	UserName            string    `json:"user_name"`
	AssignedTasks       int64     `json:"assigned_tasks"`
	HighPriorityTasks   int64     `json:"high_priority_tasks"`
	MediumPriorityTasks int64     `json:"medium_priority_tasks"`
	LowPriorityTasks    int64     `json:"low_priority_tasks"`
}

type ReportService struct {
	store    repositories.Store
	projects *ProjectService
}

func NewReportService(store repositories.Store, projects *ProjectService) *ReportService {
	return &ReportService{store: store, projects: projects}
}

func (s *ReportService) Project(ctx context.Context, p policy.Principal, id uuid.UUID) (*ProjectReport, error) {
	project, err := s.projects.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	progress, err := s.projects.Progress(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return &ProjectReport{ProjectName: project.Name, ProjectProgress: *progress}, nil
}

// breakdown loads every user with their assigned-task rows. Users without
// tasks are included with zero counts.
func (s *ReportService) breakdown(ctx context.Context, p policy.Principal) ([]models.User, map[uuid.UUID][]repositories.AssigneeBreakdown, error) {
	if !policy.CanManageUsers(p) {
		return nil, nil, apperrors.PermissionDenied("admin access required")
	}
	users, err := s.store.Users().All(ctx)
	if err != nil {
		return nil, nil, storeError(err, "user not found")
	}
	rows, err := s.store.Tasks().BreakdownByAssignee(ctx)
	if err != nil {
		return nil, nil, storeError(err, "task not found")
	}
	byUser := make(map[uuid.UUID][]repositories.AssigneeBreakdown, len(users))
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}
	return users, byUser, nil
}

func (s *ReportService) TeamPerformance(ctx context.Context, p policy.Principal) ([]TeamPerformance, error) {
	users, byUser, err := s.breakdown(ctx, p)
	if err != nil {
		return nil, err
	}

	reports := make([]TeamPerformance, 0, len(users))
	for _, u := range users {
		r := TeamPerformance{UserID: u.ID, UserName: u.Name}
		for _, row := range byUser[u.ID] {
			r.TotalTasks += row.TaskCount
			switch row.Status {
			case models.TaskDone:
				r.CompletedTasks += row.TaskCount
			case models.TaskInProgress:
				r.InProgressTasks += row.TaskCount
			case models.TaskTodo:
				r.TodoTasks += row.TaskCount
			}
		}
		r.CompletionRate = percent(r.CompletedTasks, r.TotalTasks)
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *ReportService) Workload(ctx context.Context, p policy.Principal) ([]Workload, error) {
	users, byUser, err := s.breakdown(ctx, p)
	if err != nil {
		return nil, err
	}

	reports := make([]Workload, 0, len(users))
	for _, u := range users {
		r := Workload{UserID: u.ID, UserName: u.Name}
		for _, row := range byUser[u.ID] {
			r.AssignedTasks += row.TaskCount
			switch row.Priority {
			case models.PriorityHigh:
				r.HighPriorityTasks += row.TaskCount
			case models.PriorityMedium:
				r.MediumPriorityTasks += row.TaskCount
			case models.PriorityLow:
				r.LowPriorityTasks += row.TaskCount
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}
