package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPending, ProjectInProgress, ProjectCompleted:
		return true
	}
	return false
}

type Project struct {
	ID          uuid.UUID     `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string        `json:"name" gorm:"not null;index"`
	Description string        `json:"description"`
	Deadline    *time.Time    `json:"deadline"`
	Status      ProjectStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedBy   uuid.UUID     `json:"created_by" gorm:"type:uuid;not null"`
	Members     []User        `json:"members" gorm:"many2many:project_members;"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	return assignID(&p.ID)
}

// HasMember reports whether userID is in the loaded member set.
func (p *Project) HasMember(userID uuid.UUID) bool {
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// ProjectMember is the join row behind Project.Members.
type ProjectMember struct {
	ProjectID uuid.UUID `gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID `gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time
}

func (ProjectMember) TableName() string {
	return "project_members"
}
