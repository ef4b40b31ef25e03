package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andika/product-import/internal/domain"
	"github.com/andika/product-import/internal/logger"
	"github.com/andika/product-import/internal/repository"
	"github.com/andika/product-import/internal/storage"
	"github.com/andika/product-import/internal/task"
)

// Dispatcher submits a batch of independent work items for asynchronous
// execution. Satisfied by *task.Runner.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch *task.Batch) error
}

// CoordinatorConfig holds coordinator tuning.
type CoordinatorConfig struct {
	ChunkSize     int
	RetryBackoffs []time.Duration // delays between coordinator attempts
}

// ImportCoordinator reads a stored CSV, validates its header, partitions
// the data rows into fixed-size chunks, submits the chunks for concurrent
// execution, and decides the job's terminal status. It is the sole writer
// of terminal status transitions.
type ImportCoordinator struct {
	jobs       *repository.ImportJobRepository
	worker     *ChunkWorker
	storage    storage.ObjectStorage
	dispatcher Dispatcher
	logger     *logger.Logger
	chunkSize  int
	backoffs   []time.Duration
}

// NewImportCoordinator creates an import coordinator.
func NewImportCoordinator(
	jobs *repository.ImportJobRepository,
	worker *ChunkWorker,
	objectStorage storage.ObjectStorage,
	dispatcher Dispatcher,
	log *logger.Logger,
	cfg *CoordinatorConfig,
) *ImportCoordinator {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}
	backoffs := cfg.RetryBackoffs
	if backoffs == nil {
		backoffs = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	}
	return &ImportCoordinator{
		jobs:       jobs,
		worker:     worker,
		storage:    objectStorage,
		dispatcher: dispatcher,
		logger:     log,
		chunkSize:  chunkSize,
		backoffs:   backoffs,
	}
}

func (c *ImportCoordinator) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, c.logger)
}

// Run drives one import job to a terminal status. Transient errors before
// chunk submission are retried with backoff; structural input defects fail
// the job immediately, since retrying an unchanged bad file cannot succeed.
func (c *ImportCoordinator) Run(ctx context.Context, jobID, path string) {
	ctx = logger.SetJobID(ctx, jobID)

	var lastErr error
	attempts := len(c.backoffs)
	if attempts == 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.runOnce(ctx, jobID, path)
		if err == nil {
			return
		}
		if IsStructural(err) || ctx.Err() != nil {
			c.failJob(ctx, jobID, path, err)
			return
		}

		lastErr = err
		c.log(ctx).WithField("attempt", attempt).WithError(err).Warn("Import attempt failed")

		if attempt < attempts {
			select {
			case <-time.After(c.backoffs[attempt-1]):
			case <-ctx.Done():
				c.failJob(ctx, jobID, path, ctx.Err())
				return
			}
		}
	}

	c.failJob(ctx, jobID, path, lastErr)
}

// runOnce performs a single coordination attempt: read, chunk, submit.
// A nil return means the job's terminal status has been decided or handed
// to the batch continuations.
func (c *ImportCoordinator) runOnce(ctx context.Context, jobID, path string) error {
	if err := c.jobs.UpdateStatus(ctx, jobID, domain.ImportStatusInProgress); err != nil {
		return fmt.Errorf("mark job in progress: %w", err)
	}

	reader, err := c.storage.Download(ctx, path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer reader.Close()

	chunks, total, mismatched, err := c.partition(jobID, reader)
	if err != nil {
		return err
	}

	if err := c.jobs.SetTotalIfUnset(ctx, jobID, total); err != nil {
		return fmt.Errorf("finalize total: %w", err)
	}

	// Rows whose field count mismatched the header were dropped from the
	// chunks; account them as failed through the normal counter path. This
	// increment is the last retriable step before submission, so a transient
	// failure earlier in the attempt cannot recount these rows. A retry
	// after the increment itself fails can still count them twice.
	if mismatched > 0 {
		if err := c.jobs.IncrementCounters(ctx, jobID, 0, mismatched); err != nil {
			return fmt.Errorf("count mismatched rows: %w", err)
		}
	}

	// Header-only or all-mismatched file: nothing to await
	if len(chunks) == 0 {
		c.log(ctx).Info("Import produced no chunks, completing job")
		return c.jobs.UpdateStatus(ctx, jobID, domain.ImportStatusCompleted)
	}

	batch := &task.Batch{
		Tasks:      make([]task.Task, 0, len(chunks)),
		OnComplete: c.completeJob(jobID),
		OnError:    c.submitFailed(jobID, path),
	}
	for _, chunk := range chunks {
		chunk := chunk
		batch.Tasks = append(batch.Tasks, task.Task{
			Run: func(ctx context.Context) error {
				_, _, err := c.worker.Process(ctx, chunk)
				return err
			},
			OnFailure: func(ctx context.Context, err error) {
				if abandonErr := c.worker.Abandon(ctx, chunk); abandonErr != nil {
					c.log(ctx).WithError(abandonErr).Error("Failed to account abandoned chunk")
				}
			},
		})
	}

	c.log(ctx).WithFields(logger.Fields{
		"chunks": len(chunks),
		"total":  total,
	}).Info("Submitting import chunks")

	// A dispatch error has already been handled by the submission-failure
	// continuation; the job is terminal either way
	if err := c.dispatcher.Dispatch(ctx, batch); err != nil {
		return nil
	}
	return nil
}

// partition scans the CSV once, validating the header and accumulating
// data rows into fixed-size chunks. Chunk boundaries are fully materialized
// before any worker starts. Within a chunk, rows keep input order; across
// chunks, workers may commit in any order, so two chunks touching the same
// SKU resolve by last write.
func (c *ImportCoordinator) partition(jobID string, r io.Reader) (chunks []*domain.Chunk, total, mismatched int, err error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	for i, column := range header {
		header[i] = strings.ToLower(strings.TrimSpace(column))
	}
	for _, column := range requiredColumns {
		if !containsColumn(header, column) {
			return nil, 0, 0, &MissingColumnError{Column: column}
		}
	}

	current := make([]domain.Row, 0, c.chunkSize)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, &domain.Chunk{JobID: jobID, Rows: current})
			current = make([]domain.Row, 0, c.chunkSize)
		}
	}

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Unparseable line: drop it and count it as failed
			mismatched++
			total++
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			mismatched++
			total++
			continue
		}

		row := make(domain.Row, len(header))
		for i, column := range header {
			row[column] = record[i]
		}
		current = append(current, row)
		total++

		if len(current) == c.chunkSize {
			flush()
		}
	}
	flush()

	return chunks, total, mismatched, nil
}

// completeJob is the batch completion continuation. It fires after the join
// barrier opens and marks the job completed unconditionally; partial row
// failures are expected and visible in the failed counter, not in status.
func (c *ImportCoordinator) completeJob(jobID string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if err := c.jobs.UpdateStatus(ctx, jobID, domain.ImportStatusCompleted); err != nil {
			c.log(ctx).WithError(err).Error("Failed to mark import completed")
			return
		}
		c.log(ctx).Info("Import completed")
	}
}

// submitFailed is the submission-failure continuation, fired only when the
// batch mechanism itself cannot be started.
func (c *ImportCoordinator) submitFailed(jobID, path string) func(ctx context.Context, err error) {
	return func(ctx context.Context, err error) {
		c.failJob(ctx, jobID, path, err)
	}
}

func (c *ImportCoordinator) failJob(ctx context.Context, jobID, path string, cause error) {
	c.log(ctx).WithFields(logger.Fields{
		"file": path,
	}).WithError(cause).Error("Import failed")

	if err := c.jobs.UpdateStatus(ctx, jobID, domain.ImportStatusFailed); err != nil {
		c.log(ctx).WithError(err).Error("Failed to mark import failed")
	}
}

func containsColumn(header []string, column string) bool {
	for _, h := range header {
		if h == column {
			return true
		}
	}
	return false
}
