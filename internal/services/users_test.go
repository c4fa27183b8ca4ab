package services_test

import (
	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/services"
)

func (suite *ServiceTestSuite) TestUsers_AdminSurface() {
	_, err := suite.users.List(suite.ctx, suite.u1, 0, 10)
	suite.ErrorIs(err, apperrors.ErrAuthorization)

	users, err := suite.users.List(suite.ctx, suite.admin, 0, 10)
	suite.Require().NoError(err)
	suite.Len(users, 3)

	role := models.RoleAdmin
	email := "UMA2@example.com"
	updated, err := suite.users.Update(suite.ctx, suite.admin, suite.u1.ID, services.UserUpdate{Role: &role, Email: &email})
	suite.Require().NoError(err)
	suite.Equal(models.RoleAdmin, updated.Role)
	suite.Equal("uma2@example.com", updated.Email)

	taken := "ugo@example.com"
	_, err = suite.users.Update(suite.ctx, suite.admin, suite.u1.ID, services.UserUpdate{Email: &taken})
	suite.ErrorIs(err, apperrors.ErrConflict)

	bad := models.Role("owner")
	_, err = suite.users.Update(suite.ctx, suite.admin, suite.u1.ID, services.UserUpdate{Role: &bad})
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *ServiceTestSuite) TestUsers_Delete() {
	suite.ErrorIs(suite.users.Delete(suite.ctx, suite.u1, suite.u2.ID), apperrors.ErrAuthorization)
	suite.ErrorIs(suite.users.Delete(suite.ctx, suite.admin, suite.admin.ID), apperrors.ErrValidation)

	suite.Require().NoError(suite.users.Delete(suite.ctx, suite.admin, suite.u2.ID))
	_, err := suite.users.Get(suite.ctx, suite.admin, suite.u2.ID)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.ErrorIs(suite.users.Delete(suite.ctx, suite.admin, suite.u2.ID), apperrors.ErrNotFound)
}

func (suite *ServiceTestSuite) TestUsers_SelfProfile() {
	me, err := suite.users.Me(suite.ctx, suite.u1)
	suite.Require().NoError(err)
	suite.Equal("Uma", me.Name)

	name := "Uma B"
	password := "new-password"
	updated, err := suite.users.UpdateMe(suite.ctx, suite.u1, services.ProfileUpdate{Name: &name, Password: &password})
	suite.Require().NoError(err)
	suite.Equal("Uma B", updated.Name)
	suite.Equal(models.RoleMember, updated.Role)

	_, err = suite.auth.Login(suite.ctx, services.LoginRequest{Email: "uma@example.com", Password: "new-password"})
	suite.NoError(err)
}

func (suite *ServiceTestSuite) TestUsers_EnsureAdmin() {
	suite.Require().NoError(suite.users.EnsureAdmin(suite.ctx, "", "Root@example.com", "rootpassword"))
	suite.Require().NoError(suite.users.EnsureAdmin(suite.ctx, "", "root@example.com", "rootpassword"))
	suite.Require().NoError(suite.users.EnsureAdmin(suite.ctx, "", "", ""))

	root, err := suite.store.Users().FindByEmail(suite.ctx, "root@example.com")
	suite.Require().NoError(err)
	suite.True(root.IsAdmin())
	suite.Equal("Administrator", root.Name)
}
