package repository

import (
	"context"

	"github.com/andika/product-import/internal/domain"
	"gorm.io/gorm"
)

// ImportJobRepository handles import job records and their progress counters.
// It is the only component allowed to mutate a job row; callers never write
// counter fields directly.
type ImportJobRepository struct {
	db *gorm.DB
}

// NewImportJobRepository creates a new ImportJobRepository.
func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create inserts a new import job record.
func (r *ImportJobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves an import job by its ID.
func (r *ImportJobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// IncrementCounters atomically adds the given deltas to the job's success
// and failed counters. The addition happens inside a single UPDATE with SQL
// expressions, so concurrent chunk completions never lose an increment: the
// engine applies each expression under the row's write lock rather than
// overwriting a stale read.
func (r *ImportJobRepository) IncrementCounters(ctx context.Context, id string, successDelta, failedDelta int) error {
	if successDelta == 0 && failedDelta == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"success": gorm.Expr("success + ?", successDelta),
			"failed":  gorm.Expr("failed + ?", failedDelta),
		}).Error
}

// UpdateStatus sets the job status. Only the import coordinator may call
// this for terminal states; chunk workers never touch status.
func (r *ImportJobRepository) UpdateStatus(ctx context.Context, id string, status domain.ImportStatus) error {
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SetTotalIfUnset finalizes the job's total row count, but only when it is
// still zero. The guard lives in the WHERE clause so a pre-counted total is
// never overwritten.
func (r *ImportJobRepository) SetTotalIfUnset(ctx context.Context, id string, total int) error {
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND total = 0", id).
		Update("total", total).Error
}
