package handlers

import (
	"github.com/gin-gonic/gin"
)

// Routes groups every handler the API mounts.
type Routes struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Projects  *ProjectHandler
	Tasks     *TaskHandler
	Reports   *ReportHandler
	WebSocket *WebSocketHandler
}

// Register mounts the API under /api/v1 and the notification socket under
// /ws. authenticate guards everything except the auth endpoints and the
// socket, which checks its own query token.
func (r Routes) Register(router gin.IRouter, authenticate gin.HandlerFunc) {
	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", r.Auth.Register)
	auth.POST("/login", r.Auth.Login)
	auth.POST("/refresh", r.Auth.Refresh)
	auth.POST("/logout", r.Auth.Logout)

	protected := api.Group("", authenticate)

	users := protected.Group("/users")
	users.GET("/me", r.Users.Me)
	users.PUT("/me", r.Users.UpdateMe)
	users.GET("", r.Users.List)
	users.GET("/:id", r.Users.Get)
	users.PUT("/:id", r.Users.Update)
	users.DELETE("/:id", r.Users.Delete)

	projects := protected.Group("/projects")
	projects.POST("", r.Projects.Create)
	projects.GET("", r.Projects.List)
	projects.GET("/:id", r.Projects.Get)
	projects.PUT("/:id", r.Projects.Update)
	projects.DELETE("/:id", r.Projects.Delete)
	projects.GET("/:id/progress", r.Projects.Progress)
	projects.GET("/:id/members", r.Projects.Members)
	projects.POST("/:id/members", r.Projects.AddMember)
	projects.DELETE("/:id/members/:user_id", r.Projects.RemoveMember)

	tasks := protected.Group("/tasks")
	tasks.POST("", r.Tasks.Create)
	tasks.GET("", r.Tasks.List)
	tasks.GET("/:id", r.Tasks.Get)
	tasks.PUT("/:id", r.Tasks.Update)
	tasks.DELETE("/:id", r.Tasks.Delete)
	tasks.PATCH("/:id/move", r.Tasks.Move)

	protected.GET("/dashboard", r.Reports.Dashboard)
	reports := protected.Group("/reports")
	reports.GET("/project/:id", r.Reports.Project)
	reports.GET("/team-performance", r.Reports.TeamPerformance)
	reports.GET("/workload", r.Reports.Workload)

	if r.WebSocket != nil {
		router.GET("/ws/notifications/:user_id", r.WebSocket.Notifications)
	}
}
