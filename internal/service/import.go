package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/andika/product-import/internal/domain"
	"github.com/andika/product-import/internal/logger"
	"github.com/andika/product-import/internal/repository"
	"github.com/andika/product-import/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportService is the submission facade. It stores the uploaded file,
// pre-counts its data rows, creates the job record, and hands off to the
// coordinator asynchronously. Submit returns before processing completes.
type ImportService struct {
	jobs        *repository.ImportJobRepository
	storage     storage.ObjectStorage
	coordinator *ImportCoordinator
	logger      *logger.Logger
}

// NewImportService creates an import service.
func NewImportService(
	jobs *repository.ImportJobRepository,
	objectStorage storage.ObjectStorage,
	coordinator *ImportCoordinator,
	log *logger.Logger,
) *ImportService {
	return &ImportService{
		jobs:        jobs,
		storage:     objectStorage,
		coordinator: coordinator,
		logger:      log,
	}
}

func (s *ImportService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// SubmitResult acknowledges an accepted import: the job is processing, not
// done.
type SubmitResult struct {
	JobID  string              `json:"job_id"`
	Status domain.ImportStatus `json:"status"`
}

// Submit stores the uploaded CSV, rejects it when it holds no data rows,
// creates the import job, and starts the coordinator in the background.
func (s *ImportService) Submit(ctx context.Context, filename string, file io.Reader, size int64) (*SubmitResult, error) {
	key := fmt.Sprintf("imports/%s.csv", uuid.New().String())
	if err := s.storage.Upload(ctx, key, file, size, "text/csv"); err != nil {
		return nil, fmt.Errorf("store uploaded file: %w", err)
	}

	total, err := s.countDataRows(ctx, key)
	if err != nil {
		s.cleanup(ctx, key)
		return nil, err
	}
	if total == 0 {
		// Reject before any job record or background work exists
		s.cleanup(ctx, key)
		return nil, ErrEmptyFile
	}

	job := &domain.ImportJob{
		ID:       uuid.New().String(),
		Filename: filename,
		Path:     key,
		Status:   domain.ImportStatusPending,
		Total:    total,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.cleanup(ctx, key)
		return nil, fmt.Errorf("create import job: %w", err)
	}

	// Detach from the request context: the import outlives the HTTP call
	runCtx := logger.SetJobID(s.log(ctx).WithContext(context.Background()), job.ID)
	go s.coordinator.Run(runCtx, job.ID, key)

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		"filename":        filename,
		"total":           total,
	}).Info("Import job started")

	return &SubmitResult{JobID: job.ID, Status: job.Status}, nil
}

// Status returns the current progress snapshot for a job.
func (s *ImportService) Status(ctx context.Context, id string) (*domain.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load import job: %w", err)
	}
	return job, nil
}

// countDataRows is the cheap pre-count pass: data rows excluding the
// header and fully blank rows.
func (s *ImportService) countDataRows(ctx context.Context, key string) (int, error) {
	reader, err := s.storage.Download(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	// Skip header
	if _, err := csvReader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	count := 0
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed lines still count as data rows; the chunking
			// scan will account them as failed
			count++
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *ImportService) cleanup(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.log(ctx).WithField("key", key).WithError(err).Warn("Failed to delete stored file")
	}
}
