package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/SuperscriptSystems/Quillio/internal/handlers"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/middleware"
	"github.com/SuperscriptSystems/Quillio/internal/services"
)

type RouterConfig struct {
	Log *logger.Logger

	Auth services.AuthService

	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	AssessmentHandler *handlers.AssessmentHandler
	CourseHandler     *handlers.CourseHandler
	LessonHandler     *handlers.LessonHandler

	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// No-op until the tracer provider is installed at startup.
	r.Use(otelgin.Middleware("quillio"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: len(origins) != 1 || origins[0] != "*",
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	api := r.Group("/api")
	{
		api.POST("/auth/register", cfg.AuthHandler.Register)
		api.POST("/auth/login", cfg.AuthHandler.Login)

		authed := api.Group("", middleware.RequireAuth(cfg.Auth, cfg.Log))
		{
			authed.GET("/me", cfg.UserHandler.Me)
			authed.PATCH("/me", cfg.UserHandler.UpdateSettings)
			authed.GET("/events", cfg.UserHandler.Events)

			authed.POST("/assessment/start", cfg.AssessmentHandler.Start)
			authed.GET("/assessment/question", cfg.AssessmentHandler.Question)
			authed.POST("/assessment/answer", cfg.AssessmentHandler.Answer)
			authed.POST("/assessment/complete", cfg.AssessmentHandler.Complete)

			authed.GET("/courses", cfg.CourseHandler.List)
			authed.GET("/courses/:id", cfg.CourseHandler.Get)
			authed.PATCH("/courses/:id/archive", cfg.CourseHandler.Archive)
			authed.DELETE("/courses/:id", cfg.CourseHandler.Delete)
			authed.POST("/courses/:id/edit", cfg.CourseHandler.Edit)
			authed.POST("/courses/:id/duplicate", cfg.CourseHandler.Duplicate)
			authed.POST("/courses/:id/share", cfg.CourseHandler.Share)
			authed.POST("/shares/:token/accept", cfg.CourseHandler.ResolveShare)

			authed.POST("/courses/:id/unit-test/start", cfg.AssessmentHandler.StartUnitTest)
			authed.POST("/unit-test/finish", cfg.AssessmentHandler.FinishUnitTest)

			authed.GET("/lessons/:id/stream", cfg.LessonHandler.Stream)
			authed.POST("/tutor/ask", cfg.LessonHandler.Tutor)
		}
	}

	return r
}
