package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/types"
	"github.com/SuperscriptSystems/Quillio/internal/utils"
)

type PostgresService struct {
	DB  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(baseLog *logger.Logger) (*PostgresService, error) {
	log := baseLog.With("service", "PostgresService")

	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	pass := utils.GetEnv("POSTGRES_PASSWORD", "postgres", log)
	name := utils.GetEnv("POSTGRES_DB", "quillio", log)
	ssl := utils.GetEnv("POSTGRES_SSLMODE", "disable", log)

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, pass, name, ssl)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	log.Info("connected to postgres", "host", host, "db", name)
	return &PostgresService{DB: gdb, log: log}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrate(s.DB)
}

// AutoMigrate runs schema migration for every model. Shared with test
// databases.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&types.User{},
		&types.Course{},
		&types.Lesson{},
		&types.UnitTestResult{},
		&types.CourseShare{},
		&types.AICallLog{},
	)
}
