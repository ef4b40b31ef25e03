package service

import (
	"context"
	"fmt"

	"github.com/andika/product-import/internal/domain"
	"github.com/andika/product-import/internal/logger"
	"github.com/andika/product-import/internal/repository"
)

// ChunkWorker applies one chunk of rows to the product catalog and reports
// the aggregate outcome to the owning job's progress counters.
type ChunkWorker struct {
	products *repository.ProductRepository
	jobs     *repository.ImportJobRepository
	logger   *logger.Logger
}

// NewChunkWorker creates a chunk worker.
func NewChunkWorker(products *repository.ProductRepository, jobs *repository.ImportJobRepository, log *logger.Logger) *ChunkWorker {
	return &ChunkWorker{
		products: products,
		jobs:     jobs,
		logger:   log,
	}
}

// log returns the context logger, otherwise the worker's own
func (w *ChunkWorker) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, w.logger)
}

// Process iterates the chunk's rows in input order, running
// validate -> format -> upsert on each. A failure at any step counts the
// row as failed and moves on; nothing aborts the chunk. The resulting
// counters are committed in a single atomic increment per chunk to bound
// lock contention on the job row.
func (w *ChunkWorker) Process(ctx context.Context, chunk *domain.Chunk) (successCount, failedCount int, err error) {
	w.log(ctx).WithField(logger.FieldChunkSize, len(chunk.Rows)).Debug("Processing import chunk")

	for index, row := range chunk.Rows {
		if err := w.processRow(ctx, row); err != nil {
			failedCount++
			w.log(ctx).WithFields(logger.Fields{
				"row_index":     index,
				logger.FieldSKU: row["sku"],
			}).WithError(err).Warn("Row import failed")
			continue
		}
		successCount++
	}

	if err := w.jobs.IncrementCounters(ctx, chunk.JobID, successCount, failedCount); err != nil {
		return successCount, failedCount, fmt.Errorf("commit chunk counters: %w", err)
	}

	w.log(ctx).WithFields(logger.Fields{
		"success":             successCount,
		"failed":              failedCount,
		logger.FieldChunkSize: len(chunk.Rows),
	}).Info("Import chunk finished")

	return successCount, failedCount, nil
}

// processRow applies a single row. Unexpected panics from the storage
// layer are converted to per-row errors so one bad row cannot take down
// the whole chunk.
func (w *ChunkWorker) processRow(ctx context.Context, row domain.Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row processing panic: %v", r)
		}
	}()

	if err := ValidateRow(row); err != nil {
		return err
	}
	return w.products.Upsert(ctx, FormatRow(row))
}

// Abandon accounts every row of a chunk that permanently failed as failed,
// through the same counter path normal processing uses, so dispatched rows
// are never lost from the progress totals. It never touches job status;
// terminal status is the coordinator's decision alone.
func (w *ChunkWorker) Abandon(ctx context.Context, chunk *domain.Chunk) error {
	w.log(ctx).WithField(logger.FieldChunkSize, len(chunk.Rows)).Error("Import chunk abandoned, counting all rows as failed")
	return w.jobs.IncrementCounters(ctx, chunk.JobID, 0, len(chunk.Rows))
}
