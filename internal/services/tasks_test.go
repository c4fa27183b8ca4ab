package services_test

import (
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/events"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/services"

	"github.com/gofrs/uuid"
)

func (suite *ServiceTestSuite) TestCreateTask_MemberInOwnProject() {
	atlas := suite.atlas()

	task := suite.design(atlas)
	suite.Equal(models.TaskTodo, task.Status)
	suite.Equal(models.PriorityMedium, task.Priority)
	suite.Equal(suite.u1.ID, task.CreatedBy)

	suite.Equal(events.TaskCreated{
		TaskID:     task.ID,
		TaskTitle:  "Design",
		ProjectID:  atlas.ID,
		AssignedTo: &suite.u1.ID,
		CreatedBy:  suite.u1.ID,
	}, suite.publisher.last())
	suite.Equal([]string{"created task: Design"}, suite.activity(suite.u1.ID))
	suite.Contains(suite.cache.invalidated, atlas.ID)
}

func (suite *ServiceTestSuite) TestCreateTask_Rejections() {
	atlas := suite.atlas()
	before := len(suite.publisher.all())

	_, err := suite.tasks.Create(suite.ctx, suite.u2, services.TaskInput{Title: "x", ProjectID: atlas.ID})
	suite.ErrorIs(err, apperrors.ErrAuthorization)

	_, err = suite.tasks.Create(suite.ctx, suite.admin, services.TaskInput{Title: "x", ProjectID: atlas.ID, AssignedTo: &suite.u2.ID})
	suite.ErrorIs(err, apperrors.ErrValidation)

	_, err = suite.tasks.Create(suite.ctx, suite.admin, services.TaskInput{Title: "x", ProjectID: uuid.Must(uuid.NewV4())})
	suite.ErrorIs(err, apperrors.ErrNotFound)

	_, err = suite.tasks.Create(suite.ctx, suite.admin, services.TaskInput{Title: "x", ProjectID: atlas.ID, Priority: "urgent"})
	suite.ErrorIs(err, apperrors.ErrValidation)

	suite.Len(suite.publisher.all(), before)
	suite.Empty(suite.activity(suite.admin.ID))
}

func (suite *ServiceTestSuite) TestGetTask_OnlyAssigneeOrAdmin() {
	atlas := suite.atlas()
	task := suite.design(atlas)

	_, err := suite.tasks.Get(suite.ctx, suite.u1, task.ID)
	suite.NoError(err)
	_, err = suite.tasks.Get(suite.ctx, suite.admin, task.ID)
	suite.NoError(err)

	suite.Require().NoError(suite.projects.AddMember(suite.ctx, suite.admin, atlas.ID, suite.u2.ID))
	_, err = suite.tasks.Get(suite.ctx, suite.u2, task.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.NotErrorIs(err, apperrors.ErrAuthorization)
}

func (suite *ServiceTestSuite) TestListTasks_ScopedAndFiltered() {
	atlas := suite.atlas()
	suite.design(atlas)
	_, err := suite.tasks.Create(suite.ctx, suite.admin, services.TaskInput{Title: "Unassigned", ProjectID: atlas.ID, Priority: models.PriorityHigh})
	suite.Require().NoError(err)

	mine, err := suite.tasks.List(suite.ctx, suite.u1, services.TaskFilters{})
	suite.Require().NoError(err)
	suite.Len(mine, 1)

	theirs, err := suite.tasks.List(suite.ctx, suite.u2, services.TaskFilters{})
	suite.Require().NoError(err)
	suite.Empty(theirs)

	high := models.PriorityHigh
	all, err := suite.tasks.List(suite.ctx, suite.admin, services.TaskFilters{ProjectID: &atlas.ID, Priority: &high})
	suite.Require().NoError(err)
	suite.Require().Len(all, 1)
	suite.Equal("Unassigned", all[0].Title)
}

func (suite *ServiceTestSuite) TestUpdateTask_StatusChangeEmbedded() {
	atlas := suite.atlas()
	task := suite.design(atlas)

	title := "Design v2"
	status := models.TaskInProgress
	updated, err := suite.tasks.Update(suite.ctx, suite.u1, task.ID, services.TaskPatch{Title: &title, Status: &status})
	suite.Require().NoError(err)
	suite.Equal("Design v2", updated.Title)

	suite.Equal(events.TaskUpdated{
		TaskID:        task.ID,
		TaskTitle:     "Design v2",
		ProjectID:     atlas.ID,
		UpdatedBy:     suite.u1.ID,
		StatusChanged: &events.StatusChange{OldStatus: "todo", NewStatus: "in_progress"},
	}, suite.publisher.last())

	desc := "details"
	_, err = suite.tasks.Update(suite.ctx, suite.u1, task.ID, services.TaskPatch{Description: &desc})
	suite.Require().NoError(err)
	evt := suite.publisher.last().(events.TaskUpdated)
	suite.Nil(evt.StatusChanged)

	suite.ElementsMatch([]string{"updated task: Design v2", "updated task: Design v2", "created task: Design"}, suite.activity(suite.u1.ID))
}

func (suite *ServiceTestSuite) TestUpdateTask_Reassignment() {
	atlas := suite.atlas()
	task := suite.design(atlas)
	suite.Require().NoError(suite.projects.AddMember(suite.ctx, suite.admin, atlas.ID, suite.u2.ID))

	_, err := suite.tasks.Update(suite.ctx, suite.u1, task.ID, services.TaskPatch{AssignedTo: &suite.u2.ID})
	suite.ErrorIs(err, apperrors.ErrAuthorization)

	_, err = suite.tasks.Update(suite.ctx, suite.u1, task.ID, services.TaskPatch{AssignedTo: &suite.u1.ID})
	suite.NoError(err, "same assignee is not a reassignment")

	outsider := suite.createUser("Out", "out@example.com", models.RoleMember)
	_, err = suite.tasks.Update(suite.ctx, suite.admin, task.ID, services.TaskPatch{AssignedTo: &outsider.ID})
	suite.ErrorIs(err, apperrors.ErrValidation)

	deadline := time.Now().Add(72 * time.Hour)
	updated, err := suite.tasks.Update(suite.ctx, suite.admin, task.ID, services.TaskPatch{AssignedTo: &suite.u2.ID, Deadline: &deadline})
	suite.Require().NoError(err)
	suite.True(updated.IsAssignedTo(suite.u2.ID))
	suite.Contains(suite.scheduler.tasks, task.ID)

	_, err = suite.tasks.Get(suite.ctx, suite.u1, task.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestUpdateTask_NonAssigneeGetsNotFound() {
	atlas := suite.atlas()
	task := suite.design(atlas)
	title := "hijack"

	_, err := suite.tasks.Update(suite.ctx, suite.u2, task.ID, services.TaskPatch{Title: &title})
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.ErrorIs(suite.tasks.Delete(suite.ctx, suite.u2, task.ID), apperrors.ErrNotFound)
	_, err = suite.tasks.Move(suite.ctx, suite.u2, task.ID, models.TaskDone)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestMoveTask_AnyTransition() {
	atlas := suite.atlas()
	task := suite.design(atlas)

	moved, err := suite.tasks.Move(suite.ctx, suite.u1, task.ID, models.TaskInProgress)
	suite.Require().NoError(err)
	suite.Equal(models.TaskInProgress, moved.Status)

	evt, ok := suite.publisher.last().(events.TaskMoved)
	suite.Require().True(ok)
	suite.Equal(events.TopicKanbanUpdates, evt.Topic())
	suite.Equal("todo", evt.OldStatus)
	suite.Equal("in_progress", evt.NewStatus)
	suite.Equal(atlas.ID, evt.ProjectID)
	suite.Equal(suite.u1.ID, evt.MovedBy)
	suite.Contains(suite.activity(suite.u1.ID), "moved task 'Design' from todo to in_progress")

	for _, to := range []models.TaskStatus{models.TaskDone, models.TaskTodo, models.TaskTodo, models.TaskDone} {
		before := len(suite.publisher.all())
		_, err := suite.tasks.Move(suite.ctx, suite.u1, task.ID, to)
		suite.Require().NoError(err)
		suite.Len(suite.publisher.all(), before+1)
	}

	_, err = suite.tasks.Move(suite.ctx, suite.u1, task.ID, "blocked")
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *ServiceTestSuite) TestDeleteTask() {
	atlas := suite.atlas()
	task := suite.design(atlas)

	suite.Require().NoError(suite.tasks.Delete(suite.ctx, suite.u1, task.ID))
	suite.Equal(events.TaskDeleted{
		TaskID:    task.ID,
		TaskTitle: "Design",
		ProjectID: atlas.ID,
		DeletedBy: suite.u1.ID,
	}, suite.publisher.last())
	suite.Contains(suite.activity(suite.u1.ID), "deleted task: Design")

	suite.ErrorIs(suite.tasks.Delete(suite.ctx, suite.u1, task.ID), apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestCreateTask_SchedulesReminder() {
	atlas := suite.atlas()
	deadline := time.Now().Add(48 * time.Hour)

	task, err := suite.tasks.Create(suite.ctx, suite.u1, services.TaskInput{
		Title:      "Ship",
		ProjectID:  atlas.ID,
		AssignedTo: &suite.u1.ID,
		Deadline:   &deadline,
	})
	suite.Require().NoError(err)
	suite.Equal([]uuid.UUID{task.ID}, suite.scheduler.tasks)
}
