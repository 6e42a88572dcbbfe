package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type UnitTestResultRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.UnitTestResult) error
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) ([]*types.UnitTestResult, error)
	FullDeleteByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) error
}

type unitTestResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnitTestResultRepo(db *gorm.DB, baseLog *logger.Logger) UnitTestResultRepo {
	repoLog := baseLog.With("repo", "UnitTestResultRepo")
	return &unitTestResultRepo{db: db, log: repoLog}
}

// Upsert overwrites the score for (user, course, unit title); retaking a unit
// test keeps a single row.
func (r *unitTestResultRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.UnitTestResult) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	err := transaction.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "unit_title"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert unit test result: %w", err)
	}
	return nil
}

func (r *unitTestResultRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) ([]*types.UnitTestResult, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.UnitTestResult
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get unit test results: %w", err)
	}
	return rows, nil
}

func (r *unitTestResultRepo) FullDeleteByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(courseIDs) == 0 {
		return nil
	}
	if err := transaction.WithContext(ctx).Unscoped().Where("course_id IN ?", courseIDs).Delete(&types.UnitTestResult{}).Error; err != nil {
		return fmt.Errorf("full delete unit test results: %w", err)
	}
	return nil
}
