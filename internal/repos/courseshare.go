package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type CourseShareRepo interface {
	Create(ctx context.Context, tx *gorm.DB, shares []*types.CourseShare) ([]*types.CourseShare, error)
	GetByToken(ctx context.Context, tx *gorm.DB, token string) (*types.CourseShare, error)
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseShare, error)
	FullDeleteByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) error
}

type courseShareRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseShareRepo(db *gorm.DB, baseLog *logger.Logger) CourseShareRepo {
	repoLog := baseLog.With("repo", "CourseShareRepo")
	return &courseShareRepo{db: db, log: repoLog}
}

func (r *courseShareRepo) Create(ctx context.Context, tx *gorm.DB, shares []*types.CourseShare) ([]*types.CourseShare, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(shares) == 0 {
		return shares, nil
	}
	if err := transaction.WithContext(ctx).Create(&shares).Error; err != nil {
		return nil, fmt.Errorf("create course shares: %w", err)
	}
	return shares, nil
}

func (r *courseShareRepo) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*types.CourseShare, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.CourseShare
	err := transaction.WithContext(ctx).Where("token = ?", token).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get course share by token: %w", err)
	}
	return &row, nil
}

func (r *courseShareRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseShare, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(courseIDs) == 0 {
		return nil, nil
	}
	var rows []*types.CourseShare
	if err := transaction.WithContext(ctx).Where("course_id IN ?", courseIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get course shares by course ids: %w", err)
	}
	return rows, nil
}

func (r *courseShareRepo) FullDeleteByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(courseIDs) == 0 {
		return nil
	}
	if err := transaction.WithContext(ctx).Unscoped().Where("course_id IN ?", courseIDs).Delete(&types.CourseShare{}).Error; err != nil {
		return fmt.Errorf("full delete course shares: %w", err)
	}
	return nil
}
