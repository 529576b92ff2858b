package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/homeschool-api/internal/middleware"
	"github.com/noah-isme/homeschool-api/internal/models"
	"github.com/noah-isme/homeschool-api/pkg/config"
	"github.com/noah-isme/homeschool-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/homeschool-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/homeschool-api/pkg/middleware/requestid"
)

func requestSubject(c *gin.Context) string {
	if claims := middleware.CurrentClaims(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func newRouter(cfg *config.Config, logr *zap.Logger, a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, requestSubject))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", a.ops.Health)
	r.GET("/ready", a.ops.Ready)
	r.GET("/metrics", a.ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var (
		admin       = string(models.RoleAdmin)
		parent      = string(models.RoleParent)
		student     = string(models.RoleStudent)
		anyone      = middleware.RBAC(admin, parent, student)
		guardians   = middleware.RBAC(admin, parent)
		adminOnly   = middleware.RequireRoles(models.RoleAdmin)
		auditAction = func(action, resource string) gin.HandlerFunc {
			return middleware.Audit(a.audit, logr, action, resource)
		}
	)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", a.authH.Login)
	auth.POST("/refresh", a.authH.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth))

	secured.POST("/auth/logout", a.authH.Logout)
	secured.POST("/auth/change-password", a.authH.ChangePassword)
	secured.GET("/auth/me", a.authH.Me)

	users := secured.Group("/users", adminOnly)
	users.GET("", a.users.List)
	users.POST("", a.users.Create)
	users.GET("/:id", a.users.Get)
	users.PUT("/:id", a.users.Update)
	users.DELETE("/:id", a.users.Delete)

	students := secured.Group("/students")
	students.GET("", anyone, a.students.List)
	students.POST("", guardians, auditAction(models.AuditActionStudentCreate, "students"), a.students.Create)
	students.GET("/:id", middleware.RBAC(admin, parent, middleware.RoleSelf), a.students.Get)
	students.PUT("/:id", guardians, auditAction(models.AuditActionStudentUpdate, "students"), a.students.Update)
	students.DELETE("/:id", guardians, auditAction(models.AuditActionStudentDelete, "students"), a.students.Delete)

	assignments := secured.Group("/assignments")
	assignments.GET("", anyone, a.assignment.List)
	assignments.POST("", guardians, auditAction(models.AuditActionAssignmentCreate, "assignments"), a.assignment.Create)
	assignments.GET("/:id", anyone, a.assignment.Get)
	assignments.GET("/:id/instances", anyone, a.assignment.Instances)
	assignments.PUT("/:id", guardians, auditAction(models.AuditActionAssignmentUpdate, "assignments"), a.assignment.Update)
	assignments.DELETE("/:id", guardians, auditAction(models.AuditActionAssignmentDelete, "assignments"), a.assignment.Delete)

	secured.POST("/completions/toggle", anyone, a.completion.Toggle)

	dashboard := secured.Group("/dashboard", anyone)
	dashboard.GET("", a.dashboard.Live)
	dashboard.GET("/history", a.dashboard.History)
	dashboard.GET("/history/export", a.export.History)

	secured.GET("/metrics/summary", adminOnly, a.ops.Summary)

	return r
}
