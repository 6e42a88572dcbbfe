package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SuperscriptSystems/Quillio/internal/ai"
	"github.com/SuperscriptSystems/Quillio/internal/db"
	"github.com/SuperscriptSystems/Quillio/internal/handlers"
	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/observability"
	"github.com/SuperscriptSystems/Quillio/internal/repos"
	"github.com/SuperscriptSystems/Quillio/internal/requestdata"
	"github.com/SuperscriptSystems/Quillio/internal/server"
	"github.com/SuperscriptSystems/Quillio/internal/services"
	"github.com/SuperscriptSystems/Quillio/internal/sse"
	"github.com/SuperscriptSystems/Quillio/internal/types"
	"github.com/SuperscriptSystems/Quillio/internal/utils"
)

func main() {
	appEnv := utils.GetEnv("APP_ENV", "dev", nil)
	log, err := logger.New(appEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if shutdown := observability.InitOTel(context.Background(), log, observability.Config{
		ServiceName: "quillio",
		Environment: appEnv,
		Version:     utils.GetEnv("APP_VERSION", "dev", nil),
	}); shutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn("otel shutdown", "error", err)
			}
		}()
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("auto migrate failed", "error", err)
	}

	userRepo := repos.NewUserRepo(pg.DB, log)
	courseRepo := repos.NewCourseRepo(pg.DB, log)
	lessonRepo := repos.NewLessonRepo(pg.DB, log)
	resultRepo := repos.NewUnitTestResultRepo(pg.DB, log)
	shareRepo := repos.NewCourseShareRepo(pg.DB, log)
	callLogRepo := repos.NewAICallLogRepo(pg.DB, log)

	recorder := func(ctx context.Context, entry ai.CallLog) {
		row := &types.AICallLog{
			ID:         uuid.New(),
			Kind:       entry.Kind,
			Model:      entry.Model,
			TokensUsed: entry.Tokens,
			DurationMS: entry.Duration.Milliseconds(),
		}
		if entry.Err != nil {
			row.Error = entry.Err.Error()
		}
		if u := requestdata.UserFrom(ctx); u != nil {
			row.UserID = &u.ID
		}
		// Audit rows must survive request cancellation.
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := callLogRepo.Create(logCtx, nil, []*types.AICallLog{row}); err != nil {
			log.Warn("record ai call", "error", err)
		}
	}

	client, err := ai.NewClient(log, recorder)
	if err != nil {
		log.Fatal("ai client init failed", "error", err)
	}

	sessions, err := services.NewRedisTestSessionStore(log)
	if err != nil {
		log.Warn("redis unavailable, using in-memory test sessions", "error", err)
		sessions = services.NewMemoryTestSessionStore()
	}

	hub := sse.NewHub(log)

	authService, err := services.NewAuthService(pg.DB, log, userRepo)
	if err != nil {
		log.Fatal("auth service init failed", "error", err)
	}
	assessmentService := services.NewAssessmentService(pg.DB, log, client, sessions, userRepo, courseRepo, lessonRepo, resultRepo)
	courseService := services.NewCourseService(pg.DB, log, client, userRepo, courseRepo, lessonRepo, resultRepo, shareRepo)
	editorService := services.NewEditorService(pg.DB, log, client, userRepo, courseRepo, lessonRepo)
	lessonService := services.NewLessonService(pg.DB, log, client, userRepo, courseRepo, lessonRepo)
	tutorService := services.NewTutorService(pg.DB, log, client, userRepo, courseRepo, lessonRepo)

	router := server.NewRouter(server.RouterConfig{
		Log:               log,
		Auth:              authService,
		AuthHandler:       handlers.NewAuthHandler(log, authService),
		UserHandler:       handlers.NewUserHandler(log, userRepo, hub),
		AssessmentHandler: handlers.NewAssessmentHandler(log, assessmentService, courseService, sessions, hub),
		CourseHandler:     handlers.NewCourseHandler(log, courseService, editorService, hub),
		LessonHandler:     handlers.NewLessonHandler(log, lessonService, tutorService, hub),
		AllowedOrigins:    splitOrigins(utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log)),
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("server starting", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("server exited", "error", err)
	}
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
