package services_test

import (
	"time"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/config"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/repositories"
	"flowtrack/backend/internal/services"

	"github.com/golang-jwt/jwt/v5"
)

func (suite *ServiceTestSuite) TestRegisterAndLogin() {
	res, err := suite.auth.Register(suite.ctx, services.RegisterRequest{Name: "Nia", Email: " NIA@example.com ", Password: "longenough"})
	suite.Require().NoError(err)
	suite.Equal("nia@example.com", res.User.Email)
	suite.Equal(models.RoleMember, res.User.Role)
	suite.NotEmpty(res.AccessToken)
	suite.NotEmpty(res.RefreshToken)
	suite.Equal("bearer", res.TokenType)
	suite.EqualValues(3600, res.ExpiresIn)

	_, err = suite.auth.Register(suite.ctx, services.RegisterRequest{Name: "Dup", Email: "nia@example.com", Password: "longenough"})
	suite.ErrorIs(err, apperrors.ErrConflict)

	_, err = suite.auth.Register(suite.ctx, services.RegisterRequest{Name: "Short", Email: "s@example.com", Password: "short"})
	suite.ErrorIs(err, apperrors.ErrValidation)

	login, err := suite.auth.Login(suite.ctx, services.LoginRequest{Email: "nia@example.com", Password: "longenough"})
	suite.Require().NoError(err)

	principal, err := suite.auth.ParseAccessToken(login.AccessToken)
	suite.Require().NoError(err)
	suite.Equal(res.User.ID, principal.ID)
	suite.Equal(models.RoleMember, principal.Role)

	_, err = suite.auth.Login(suite.ctx, services.LoginRequest{Email: "nia@example.com", Password: "wrong-password"})
	suite.ErrorIs(err, apperrors.ErrAuthentication)
	_, err = suite.auth.Login(suite.ctx, services.LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	suite.ErrorIs(err, apperrors.ErrAuthentication)
}

func (suite *ServiceTestSuite) TestLogin_DisabledAccount() {
	inactive := false
	_, err := suite.users.Update(suite.ctx, suite.admin, suite.u1.ID, services.UserUpdate{IsActive: &inactive})
	suite.Require().NoError(err)

	_, err = suite.auth.Login(suite.ctx, services.LoginRequest{Email: "uma@example.com", Password: "password123"})
	suite.ErrorIs(err, apperrors.ErrAuthentication)
}

func (suite *ServiceTestSuite) TestRefresh_RotatesToken() {
	login, err := suite.auth.Login(suite.ctx, services.LoginRequest{Email: "uma@example.com", Password: "password123"})
	suite.Require().NoError(err)

	refreshed, err := suite.auth.Refresh(suite.ctx, login.RefreshToken)
	suite.Require().NoError(err)
	suite.NotEqual(login.RefreshToken, refreshed.RefreshToken)
	suite.Equal(suite.u1.ID, refreshed.User.ID)

	_, err = suite.auth.Refresh(suite.ctx, login.RefreshToken)
	suite.ErrorIs(err, apperrors.ErrAuthentication)

	suite.Require().NoError(suite.auth.Logout(suite.ctx, refreshed.RefreshToken))
	_, err = suite.auth.Refresh(suite.ctx, refreshed.RefreshToken)
	suite.ErrorIs(err, apperrors.ErrAuthentication)

	suite.NoError(suite.auth.Logout(suite.ctx, "unknown"))
	_, err = suite.auth.Refresh(suite.ctx, "")
	suite.ErrorIs(err, apperrors.ErrAuthentication)
}

func (suite *ServiceTestSuite) TestRefresh_ExpiredToken() {
	short := services.NewAuthService(suite.store, config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Nanosecond,
		BCryptCost:      4,
	})
	login, err := short.Login(suite.ctx, services.LoginRequest{Email: "uma@example.com", Password: "password123"})
	suite.Require().NoError(err)
	time.Sleep(time.Millisecond)

	_, err = short.Refresh(suite.ctx, login.RefreshToken)
	suite.ErrorIs(err, apperrors.ErrAuthentication)

	_, err = suite.store.Tokens().FindByRefreshToken(suite.ctx, login.RefreshToken)
	suite.ErrorIs(err, repositories.ErrNotFound, "expired token should be removed")
}

func (suite *ServiceTestSuite) TestParseAccessToken_Rejections() {
	_, err := suite.auth.ParseAccessToken("not-a-jwt")
	suite.ErrorIs(err, apperrors.ErrAuthentication)

	other := services.NewAuthService(suite.store, config.AuthConfig{JWTSecret: "other-secret", Issuer: "flowtrack-test"})
	login, err := other.Login(suite.ctx, services.LoginRequest{Email: "uma@example.com", Password: "password123"})
	suite.Require().NoError(err)
	_, err = suite.auth.ParseAccessToken(login.AccessToken)
	suite.ErrorIs(err, apperrors.ErrAuthentication)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, services.Claims{
		Role: "member",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   suite.u1.ID.String(),
			Issuer:    "flowtrack-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	suite.Require().NoError(err)
	_, err = suite.auth.ParseAccessToken(signed)
	suite.ErrorIs(err, apperrors.ErrAuthentication)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, services.Claims{Role: "admin"})
	unsigned, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	suite.Require().NoError(err)
	_, err = suite.auth.ParseAccessToken(unsigned)
	suite.ErrorIs(err, apperrors.ErrAuthentication)
}
