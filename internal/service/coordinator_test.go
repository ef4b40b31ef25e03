package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andika/product-import/internal/domain"
	"github.com/andika/product-import/internal/repository"
	"github.com/andika/product-import/internal/storage"
	"github.com/andika/product-import/internal/task"
)

// syncDispatcher runs every task inline, in submission order, so tests can
// assert on final state without polling.
type syncDispatcher struct {
	retries int
}

func (d *syncDispatcher) Dispatch(ctx context.Context, batch *task.Batch) error {
	retries := d.retries
	if retries <= 0 {
		retries = 1
	}
	for _, item := range batch.Tasks {
		var err error
		for attempt := 0; attempt < retries; attempt++ {
			if err = item.Run(ctx); err == nil {
				break
			}
		}
		if err != nil && item.OnFailure != nil {
			item.OnFailure(ctx, err)
		}
	}
	if batch.OnComplete != nil {
		batch.OnComplete(ctx)
	}
	return nil
}

// refusingDispatcher rejects every batch, like a runner that has shut down.
type refusingDispatcher struct{}

func (refusingDispatcher) Dispatch(ctx context.Context, batch *task.Batch) error {
	if batch.OnError != nil {
		batch.OnError(ctx, task.ErrRunnerClosed)
	}
	return task.ErrRunnerClosed
}

// flakyStorage fails the first N downloads, then delegates.
type flakyStorage struct {
	storage.ObjectStorage
	failures  int
	downloads int
}

func (s *flakyStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.downloads++
	if s.downloads <= s.failures {
		return nil, errors.New("connection reset")
	}
	return s.ObjectStorage.Download(ctx, key)
}

type coordinatorFixture struct {
	jobs        *repository.ImportJobRepository
	products    *repository.ProductRepository
	storage     storage.ObjectStorage
	coordinator *ImportCoordinator
}

func newCoordinatorFixture(t *testing.T, st storage.ObjectStorage, dispatcher Dispatcher, cfg *CoordinatorConfig) *coordinatorFixture {
	t.Helper()
	db := newTestDB(t)
	jobs := repository.NewImportJobRepository(db)
	products := repository.NewProductRepository(db)
	worker := NewChunkWorker(products, jobs, quietLogger())
	return &coordinatorFixture{
		jobs:        jobs,
		products:    products,
		storage:     st,
		coordinator: NewImportCoordinator(jobs, worker, st, dispatcher, quietLogger(), cfg),
	}
}

func (f *coordinatorFixture) job(t *testing.T, id string) *domain.ImportJob {
	t.Helper()
	job, err := f.jobs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

func TestPartitionChunkBoundaries(t *testing.T) {
	fixture := newCoordinatorFixture(t, newTestStorage(t), &syncDispatcher{}, &CoordinatorConfig{ChunkSize: 2})

	csv := "sku,name,price,stock\n" +
		"S1,One,1,1\n" +
		"S2,Two,2,2\n" +
		"S3,Three,3,3\n" +
		"S4,Four,4,4\n" +
		"S5,Five,5,5\n"

	chunks, total, mismatched, err := fixture.coordinator.partition("job-1", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if total != 5 || mismatched != 0 {
		t.Errorf("totals: got total=%d mismatched=%d, want total=5 mismatched=0", total, mismatched)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunk count: got %d, want 3", len(chunks))
	}
	for i, want := range []int{2, 2, 1} {
		if len(chunks[i].Rows) != want {
			t.Errorf("chunk %d size: got %d, want %d", i, len(chunks[i].Rows), want)
		}
	}
	// Input order is preserved across chunk boundaries
	var skus []string
	for _, chunk := range chunks {
		for _, row := range chunk.Rows {
			skus = append(skus, row["sku"])
		}
	}
	want := []string{"S1", "S2", "S3", "S4", "S5"}
	for i := range want {
		if skus[i] != want[i] {
			t.Fatalf("row order: got %v, want %v", skus, want)
		}
	}
}

func TestPartitionHeaderNormalizationAndMismatches(t *testing.T) {
	fixture := newCoordinatorFixture(t, newTestStorage(t), &syncDispatcher{}, &CoordinatorConfig{ChunkSize: 500})

	csv := " SKU , Name ,PRICE,Stock\n" +
		"S1,One,1,1\n" +
		"S2,Two,2\n" +
		",,,\n" +
		"S3,Three,3,3\n"

	chunks, total, mismatched, err := fixture.coordinator.partition("job-1", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	if total != 3 {
		t.Errorf("total: got %d, want 3 (blank row excluded, short row included)", total)
	}
	if mismatched != 1 {
		t.Errorf("mismatched: got %d, want 1", mismatched)
	}
	if len(chunks) != 1 || len(chunks[0].Rows) != 2 {
		t.Fatalf("chunks: got %d chunks, want 1 chunk of 2 rows", len(chunks))
	}
	if chunks[0].Rows[0]["sku"] != "S1" || chunks[0].Rows[1]["sku"] != "S3" {
		t.Errorf("rows: got %v", chunks[0].Rows)
	}
}

func TestPartitionMissingColumn(t *testing.T) {
	fixture := newCoordinatorFixture(t, newTestStorage(t), &syncDispatcher{}, &CoordinatorConfig{ChunkSize: 500})

	_, _, _, err := fixture.coordinator.partition("job-1", strings.NewReader("sku,name,price\nS1,One,1\n"))
	var missing *MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("error: got %v, want MissingColumnError", err)
	}
	if missing.Column != "stock" {
		t.Errorf("column: got %q, want %q", missing.Column, "stock")
	}
	if !IsStructural(err) {
		t.Error("missing column must be structural")
	}
}

func TestRunCompletesJobWithMixedRows(t *testing.T) {
	st := newTestStorage(t)
	fixture := newCoordinatorFixture(t, st, &syncDispatcher{}, &CoordinatorConfig{
		ChunkSize:     2,
		RetryBackoffs: []time.Duration{time.Millisecond},
	})
	ctx := context.Background()

	csv := "sku,name,price,stock\n" +
		"S1,One,10.999,10\n" +
		"S2,,2,2\n" +
		"S3,Three,3,abc\n" +
		"S4,Four,4,4\n"
	uploadCSV(t, st, "imports/a.csv", csv)
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 4})

	fixture.coordinator.Run(ctx, "job-1", "imports/a.csv")

	job := fixture.job(t, "job-1")
	if job.Status != domain.ImportStatusCompleted {
		t.Fatalf("status: got %q, want completed", job.Status)
	}
	if job.Total != 4 || job.Success != 2 || job.Failed != 2 {
		t.Errorf("counters: got total=%d success=%d failed=%d, want 4/2/2", job.Total, job.Success, job.Failed)
	}

	product, err := fixture.products.GetBySKU(ctx, "S1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Price != 11.0 {
		t.Errorf("price: got %v, want 11.0 after rounding", product.Price)
	}
}

func TestRunFailsImmediatelyOnStructuralError(t *testing.T) {
	st := newTestStorage(t)
	flaky := &flakyStorage{ObjectStorage: st}
	fixture := newCoordinatorFixture(t, flaky, &syncDispatcher{}, &CoordinatorConfig{
		ChunkSize:     500,
		RetryBackoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})

	uploadCSV(t, st, "imports/a.csv", "sku,name\nS1,One\n")
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 1})

	fixture.coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	if got := fixture.job(t, "job-1").Status; got != domain.ImportStatusFailed {
		t.Fatalf("status: got %q, want failed", got)
	}
	if flaky.downloads != 1 {
		t.Errorf("downloads: got %d, structural defects must not be retried", flaky.downloads)
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	st := newTestStorage(t)
	flaky := &flakyStorage{ObjectStorage: st, failures: 2}
	fixture := newCoordinatorFixture(t, flaky, &syncDispatcher{}, &CoordinatorConfig{
		ChunkSize:     500,
		RetryBackoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})

	uploadCSV(t, st, "imports/a.csv", "sku,name,price,stock\nS1,One,1,1\n")
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 1})

	fixture.coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	job := fixture.job(t, "job-1")
	if job.Status != domain.ImportStatusCompleted {
		t.Fatalf("status: got %q, want completed after retries", job.Status)
	}
	if flaky.downloads != 3 {
		t.Errorf("downloads: got %d, want 3", flaky.downloads)
	}
	if job.Success != 1 || job.Failed != 0 {
		t.Errorf("counters: got success=%d failed=%d, want 1/0", job.Success, job.Failed)
	}
}

func TestRunRetryDoesNotRecountMismatchedRows(t *testing.T) {
	st := newTestStorage(t)
	flaky := &flakyStorage{ObjectStorage: st, failures: 2}
	fixture := newCoordinatorFixture(t, flaky, &syncDispatcher{}, &CoordinatorConfig{
		ChunkSize:     500,
		RetryBackoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	})

	csv := "sku,name,price,stock\n" +
		"S1,One,1,1\n" +
		"S2,Two\n"
	uploadCSV(t, st, "imports/a.csv", csv)
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 2})

	fixture.coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	job := fixture.job(t, "job-1")
	if job.Status != domain.ImportStatusCompleted {
		t.Fatalf("status: got %q, want completed after retries", job.Status)
	}
	if job.Success != 1 || job.Failed != 1 {
		t.Errorf("counters: got success=%d failed=%d, want 1/1 with no recount across attempts", job.Success, job.Failed)
	}
	if job.Success+job.Failed > job.Total {
		t.Errorf("conservation: success+failed=%d exceeds total=%d", job.Success+job.Failed, job.Total)
	}
}

func TestRunFailsAfterRetriesExhausted(t *testing.T) {
	st := newTestStorage(t)
	flaky := &flakyStorage{ObjectStorage: st, failures: 10}
	fixture := newCoordinatorFixture(t, flaky, &syncDispatcher{}, &CoordinatorConfig{
		ChunkSize:     500,
		RetryBackoffs: []time.Duration{time.Millisecond, time.Millisecond},
	})

	uploadCSV(t, st, "imports/a.csv", "sku,name,price,stock\nS1,One,1,1\n")
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 1})

	fixture.coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	if got := fixture.job(t, "job-1").Status; got != domain.ImportStatusFailed {
		t.Fatalf("status: got %q, want failed", got)
	}
	if flaky.downloads != 2 {
		t.Errorf("downloads: got %d, want one per attempt", flaky.downloads)
	}
}

func TestRunAllRowsMismatchedCompletesWithoutChunks(t *testing.T) {
	st := newTestStorage(t)
	fixture := newCoordinatorFixture(t, st, &syncDispatcher{}, &CoordinatorConfig{ChunkSize: 500})

	csv := "sku,name,price,stock\n" +
		"S1,One\n" +
		"S2,Two,2\n"
	uploadCSV(t, st, "imports/a.csv", csv)
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 2})

	fixture.coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	job := fixture.job(t, "job-1")
	if job.Status != domain.ImportStatusCompleted {
		t.Fatalf("status: got %q, want completed", job.Status)
	}
	if job.Total != 2 || job.Success != 0 || job.Failed != 2 {
		t.Errorf("counters: got total=%d success=%d failed=%d, want 2/0/2", job.Total, job.Success, job.Failed)
	}
}

func TestRunSubmissionFailureFailsJob(t *testing.T) {
	st := newTestStorage(t)
	fixture := newCoordinatorFixture(t, st, refusingDispatcher{}, &CoordinatorConfig{ChunkSize: 500})

	uploadCSV(t, st, "imports/a.csv", "sku,name,price,stock\nS1,One,1,1\n")
	seedJob(t, fixture.jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 1})

	fixture.coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	if got := fixture.job(t, "job-1").Status; got != domain.ImportStatusFailed {
		t.Fatalf("status: got %q, want failed when chunks cannot be submitted", got)
	}
}

func TestRunChunkFailureDoesNotFailJob(t *testing.T) {
	st := newTestStorage(t)

	db := newTestDB(t)
	jobs := repository.NewImportJobRepository(db)
	products := repository.NewProductRepository(db)
	worker := NewChunkWorker(products, jobs, quietLogger())

	coordinator := NewImportCoordinator(jobs, worker, st, &failAfterPartitionDispatcher{}, quietLogger(), &CoordinatorConfig{ChunkSize: 500})

	uploadCSV(t, st, "imports/a.csv", "sku,name,price,stock\nS1,One,1,1\nS2,Two,2,2\n")
	seedJob(t, jobs, &domain.ImportJob{ID: "job-1", Filename: "a.csv", Path: "imports/a.csv", Total: 2})

	coordinator.Run(context.Background(), "job-1", "imports/a.csv")

	job, err := jobs.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.ImportStatusCompleted {
		t.Fatalf("status: got %q, per-chunk failures must not fail the job", job.Status)
	}
	if job.Failed != 2 || job.Success != 0 {
		t.Errorf("counters: got success=%d failed=%d, want 0/2", job.Success, job.Failed)
	}
}

// failAfterPartitionDispatcher forces every task to fail, then invokes its
// failure continuation and completes the batch.
type failAfterPartitionDispatcher struct{}

func (failAfterPartitionDispatcher) Dispatch(ctx context.Context, batch *task.Batch) error {
	for _, item := range batch.Tasks {
		if item.OnFailure != nil {
			item.OnFailure(ctx, errors.New("worker crashed"))
		}
	}
	if batch.OnComplete != nil {
		batch.OnComplete(ctx)
	}
	return nil
}
