// Package repositories is the relational data access layer.
package repositories

import (
	"context"
	"errors"

	"flowtrack/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

// Page is skip/limit pagination.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 || p.Limit > MaxLimit {
		p.Limit = DefaultLimit
	}
	return p
}

// StatusCounts tallies tasks by status.
type StatusCounts struct {
	Total      int64 `json:"total"`
	Todo       int64 `json:"todo"`
	InProgress int64 `json:"in_progress"`
	Done       int64 `json:"done"`
}

func (s *StatusCounts) add(status models.TaskStatus, n int64) {
	s.Total += n
	switch status {
	case models.TaskTodo:
		s.Todo += n
	case models.TaskInProgress:
		s.InProgress += n
	case models.TaskDone:
		s.Done += n
	}
}

// Store groups the repositories behind one connection or transaction.
type Store interface {
	Users() UserRepository
	Projects() ProjectRepository
	Tasks() TaskRepository
	Activity() ActivityRepository
	Tokens() TokenRepository

	// Transaction runs fn against a Store bound to a single transaction.
	// Returning an error from fn rolls it back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	Ping(ctx context.Context) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, page Page) ([]models.User, error)
	// All returns every user ordered by name, for reporting.
	All(ctx context.Context) ([]models.User, error)
	// Update saves every column of user.
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProjectFilter narrows a project listing. Scope comes from the access
// policy; the rest are optional user filters.
type ProjectFilter struct {
	AllProjects bool
	MemberID    uuid.UUID
	Status      *models.ProjectStatus
	Name        string
	Page        Page
}

type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	// FindByID loads the project with its members.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context, filter ProjectFilter) ([]models.Project, error)
	Count(ctx context.Context, filter ProjectFilter) (int64, error)
	// Update saves project columns; membership is left untouched.
	Update(ctx context.Context, project *models.Project) error
	// Delete removes the project, its tasks and its memberships.
	Delete(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, projectID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
	Members(ctx context.Context, projectID uuid.UUID) ([]models.User, error)
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	AllTasks   bool
	AssigneeID uuid.UUID
	ProjectID  *uuid.UUID
	Status     *models.TaskStatus
	Priority   *models.TaskPriority
	AssignedTo *uuid.UUID
	Page       Page
}

// AssigneeBreakdown is one row of per-user task counts.
type AssigneeBreakdown struct {
	UserID    uuid.UUID
	Status    models.TaskStatus
	Priority  models.TaskPriority
	TaskCount int64
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	CountByStatus(ctx context.Context, filter TaskFilter) (StatusCounts, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	// BreakdownByAssignee groups assigned tasks by user, status and priority.
	BreakdownByAssignee(ctx context.Context) ([]AssigneeBreakdown, error)
}

type ActivityRepository interface {
	Append(ctx context.Context, userID uuid.UUID, action string) error
	ListByUser(ctx context.Context, userID uuid.UUID, page Page) ([]models.ActivityLog, error)
}

type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	FindByRefreshToken(ctx context.Context, refreshToken string) (*models.Token, error)
	Delete(ctx context.Context, refreshToken string) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository       { return &gormUserRepository{db: s.db} }
func (s *GormStore) Projects() ProjectRepository { return &gormProjectRepository{db: s.db} }
func (s *GormStore) Tasks() TaskRepository       { return &gormTaskRepository{db: s.db} }
func (s *GormStore) Activity() ActivityRepository {
	return &gormActivityRepository{db: s.db}
}
func (s *GormStore) Tokens() TokenRepository { return &gormTokenRepository{db: s.db} }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
