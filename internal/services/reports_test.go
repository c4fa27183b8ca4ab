package services_test

import (
	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/services"
)

func (suite *ServiceTestSuite) TestDashboard_ScopedCounts() {
	atlas := suite.atlas()
	suite.design(atlas)
	_, err := suite.tasks.Create(suite.ctx, suite.admin, services.TaskInput{Title: "Other", ProjectID: atlas.ID, Status: models.TaskDone})
	suite.Require().NoError(err)

	mine, err := suite.dashboard.Get(suite.ctx, suite.u1)
	suite.Require().NoError(err)
	suite.Len(mine.Projects, 1)
	suite.Len(mine.Tasks, 1)
	suite.Equal(services.DashboardStats{TotalProjects: 1, TotalTasks: 1, TodoTasks: 1}, mine.Stats)

	all, err := suite.dashboard.Get(suite.ctx, suite.admin)
	suite.Require().NoError(err)
	suite.Equal(services.DashboardStats{TotalProjects: 1, TotalTasks: 2, TodoTasks: 1, CompletedTasks: 1}, all.Stats)

	empty, err := suite.dashboard.Get(suite.ctx, suite.u2)
	suite.Require().NoError(err)
	suite.Empty(empty.Projects)
	suite.Zero(empty.Stats.TotalTasks)
}

func (suite *ServiceTestSuite) TestReports_ProjectReport() {
	atlas := suite.atlas()
	suite.design(atlas)

	report, err := suite.reports.Project(suite.ctx, suite.u1, atlas.ID)
	suite.Require().NoError(err)
	suite.Equal("Atlas", report.ProjectName)
	suite.EqualValues(1, report.TotalTasks)

	_, err = suite.reports.Project(suite.ctx, suite.u2, atlas.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestReports_TeamPerformanceAndWorkload() {
	atlas := suite.atlas()
	for _, in := range []services.TaskInput{
		{Title: "a", Status: models.TaskDone, Priority: models.PriorityHigh},
		{Title: "b", Status: models.TaskDone, Priority: models.PriorityLow},
		{Title: "c", Status: models.TaskTodo, Priority: models.PriorityHigh},
	} {
		in.ProjectID = atlas.ID
		in.AssignedTo = &suite.u1.ID
		_, err := suite.tasks.Create(suite.ctx, suite.admin, in)
		suite.Require().NoError(err)
	}

	_, err := suite.reports.TeamPerformance(suite.ctx, suite.u1)
	suite.ErrorIs(err, apperrors.ErrAuthorization)

	perf, err := suite.reports.TeamPerformance(suite.ctx, suite.admin)
	suite.Require().NoError(err)
	suite.Len(perf, 3)
	for _, r := range perf {
		if r.UserID == suite.u1.ID {
			suite.EqualValues(3, r.TotalTasks)
			suite.EqualValues(2, r.CompletedTasks)
			suite.EqualValues(1, r.TodoTasks)
			suite.Equal(66.67, r.CompletionRate)
		} else {
			suite.Zero(r.TotalTasks)
			suite.Zero(r.CompletionRate)
		}
	}

	load, err := suite.reports.Workload(suite.ctx, suite.admin)
	suite.Require().NoError(err)
	for _, r := range load {
		if r.UserID == suite.u1.ID {
			suite.EqualValues(3, r.AssignedTasks)
			suite.EqualValues(2, r.HighPriorityTasks)
			suite.EqualValues(1, r.LowPriorityTasks)
			suite.Zero(r.MediumPriorityTasks)
		}
	}
}
