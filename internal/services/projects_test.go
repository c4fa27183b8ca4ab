package services_test

import (
	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/services"

	"github.com/gofrs/uuid"
)

func (suite *ServiceTestSuite) TestCreateProject_AdminOnly() {
	_, err := suite.projects.Create(suite.ctx, suite.u1, services.ProjectInput{Name: "Nope"})
	suite.ErrorIs(err, apperrors.ErrAuthorization)
	suite.Empty(suite.publisher.all())

	project, err := suite.projects.Create(suite.ctx, suite.admin, services.ProjectInput{Name: "  Atlas  "})
	suite.Require().NoError(err)
	suite.Equal("Atlas", project.Name)
	suite.Equal(models.ProjectPending, project.Status)
	suite.Equal(suite.admin.ID, project.CreatedBy)

	suite.Equal(events.ProjectCreated{
		ProjectID:   project.ID,
		ProjectName: "Atlas",
		CreatedBy:   suite.admin.ID,
	}, suite.publisher.last())
}

func (suite *ServiceTestSuite) TestListProjects_MembersSeeOnlyTheirs() {
	atlas := suite.atlas()
	_, err := suite.projects.Create(suite.ctx, suite.admin, services.ProjectInput{Name: "Zephyr"})
	suite.Require().NoError(err)

	mine, err := suite.projects.List(suite.ctx, suite.u1, services.ProjectFilters{})
	suite.Require().NoError(err)
	suite.Require().Len(mine, 1)
	suite.Equal(atlas.ID, mine[0].ID)

	none, err := suite.projects.List(suite.ctx, suite.u2, services.ProjectFilters{})
	suite.Require().NoError(err)
	suite.NotNil(none)
	suite.Empty(none)

	all, err := suite.projects.List(suite.ctx, suite.admin, services.ProjectFilters{Name: "zeph"})
	suite.Require().NoError(err)
	suite.Len(all, 1)
}

func (suite *ServiceTestSuite) TestGetProject_NonMemberGetsNotFound() {
	atlas := suite.atlas()

	_, err := suite.projects.Get(suite.ctx, suite.u2, atlas.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.NotErrorIs(err, apperrors.ErrAuthorization)

	_, err = suite.projects.Get(suite.ctx, suite.admin, uuid.Must(uuid.NewV4()))
	suite.ErrorIs(err, apperrors.ErrNotFound)

	got, err := suite.projects.Get(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.True(got.HasMember(suite.u1.ID))
}

func (suite *ServiceTestSuite) TestUpdateProject_PartialPatch() {
	atlas := suite.atlas()
	status := models.ProjectInProgress

	updated, err := suite.projects.Update(suite.ctx, suite.u1, atlas.ID, services.ProjectPatch{Status: &status})
	suite.Require().NoError(err)
	suite.Equal("Atlas", updated.Name)
	suite.Equal(models.ProjectInProgress, updated.Status)
	suite.Equal(events.ProjectUpdated{ProjectID: atlas.ID, UpdatedBy: suite.u1.ID}, suite.publisher.last())

	_, err = suite.projects.Update(suite.ctx, suite.u2, atlas.ID, services.ProjectPatch{Status: &status})
	suite.ErrorIs(err, apperrors.ErrNotFound)

	bad := models.ProjectStatus("archived")
	_, err = suite.projects.Update(suite.ctx, suite.admin, atlas.ID, services.ProjectPatch{Status: &bad})
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *ServiceTestSuite) TestDeleteProject_CascadesAndRequiresAdmin() {
	atlas := suite.atlas()
	task := suite.design(atlas)

	suite.ErrorIs(suite.projects.Delete(suite.ctx, suite.u1, atlas.ID), apperrors.ErrAuthorization)

	suite.Require().NoError(suite.projects.Delete(suite.ctx, suite.admin, atlas.ID))
	suite.Equal(events.ProjectDeleted{ProjectID: atlas.ID, DeletedBy: suite.admin.ID}, suite.publisher.last())

	_, err := suite.tasks.Get(suite.ctx, suite.admin, task.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.ErrorIs(suite.projects.Delete(suite.ctx, suite.admin, atlas.ID), apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestProgress_ZeroTasks() {
	atlas := suite.atlas()

	progress, err := suite.projects.Progress(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.Zero(progress.TotalTasks)
	suite.Zero(progress.ProgressPercentage)
}

func (suite *ServiceTestSuite) TestProgress_RoundsAndCaches() {
	atlas := suite.atlas()
	for i, status := range []models.TaskStatus{models.TaskDone, models.TaskTodo, models.TaskInProgress} {
		_, err := suite.tasks.Create(suite.ctx, suite.admin, services.TaskInput{
			Title:     []string{"a", "b", "c"}[i],
			Status:    status,
			ProjectID: atlas.ID,
		})
		suite.Require().NoError(err)
	}

	progress, err := suite.projects.Progress(suite.ctx, suite.admin, atlas.ID)
	suite.Require().NoError(err)
	suite.EqualValues(3, progress.TotalTasks)
	suite.EqualValues(1, progress.CompletedTasks)
	suite.EqualValues(1, progress.InProgressTasks)
	suite.EqualValues(1, progress.TodoTasks)
	suite.Equal(33.33, progress.ProgressPercentage)

	var cached services.ProjectProgress
	_, hit := suite.cache.Get(suite.ctx, atlas.ID, &cached)
	suite.True(hit)
	suite.Equal(*progress, cached)

	_, err = suite.projects.Progress(suite.ctx, suite.u2, atlas.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestProgress_InvalidatedByTaskMutation() {
	atlas := suite.atlas()
	task := suite.design(atlas)

	_, err := suite.projects.Progress(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)

	_, err = suite.tasks.Move(suite.ctx, suite.u1, task.ID, models.TaskDone)
	suite.Require().NoError(err)

	progress, err := suite.projects.Progress(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.Equal(100.0, progress.ProgressPercentage)
}

func (suite *ServiceTestSuite) TestProgress_MutationDuringReadIsNotCached() {
	atlas := suite.atlas()
	suite.design(atlas)

	// A task mutation lands after the miss but before the summary is written.
	suite.cache.afterMiss = func(id uuid.UUID) {
		suite.cache.afterMiss = nil
		suite.cache.Invalidate(suite.ctx, id)
	}
	progress, err := suite.projects.Progress(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.EqualValues(1, progress.TotalTasks)
	suite.False(suite.cache.cached(atlas.ID))

	_, err = suite.projects.Progress(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.True(suite.cache.cached(atlas.ID))
}

func (suite *ServiceTestSuite) TestAddMember_Idempotent() {
	atlas := suite.atlas()

	suite.Require().NoError(suite.projects.AddMember(suite.ctx, suite.admin, atlas.ID, suite.u1.ID))
	members, err := suite.projects.Members(suite.ctx, suite.admin, atlas.ID)
	suite.Require().NoError(err)
	suite.Len(members, 1)

	suite.Require().NoError(suite.projects.RemoveMember(suite.ctx, suite.admin, atlas.ID, suite.u2.ID))
	members, err = suite.projects.Members(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.Len(members, 1)

	suite.ErrorIs(suite.projects.AddMember(suite.ctx, suite.u1, atlas.ID, suite.u2.ID), apperrors.ErrAuthorization)
	suite.ErrorIs(suite.projects.AddMember(suite.ctx, suite.admin, atlas.ID, uuid.Must(uuid.NewV4())), apperrors.ErrNotFound)
	suite.ErrorIs(suite.projects.AddMember(suite.ctx, suite.admin, uuid.Must(uuid.NewV4()), suite.u2.ID), apperrors.ErrNotFound)
}
