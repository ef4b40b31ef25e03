package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andika/product-import/internal/domain"
	"github.com/andika/product-import/internal/logger"
	"github.com/andika/product-import/internal/repository"
	"github.com/andika/product-import/internal/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a throwaway SQLite database. A single connection keeps
// concurrent test writers serialized at the pool instead of failing with
// SQLITE_BUSY.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.Exec("PRAGMA busy_timeout=5000")

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.ImportJob{}, &domain.Product{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json"})
}

// newTestStorage opens a local object store rooted in a temp directory.
func newTestStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return st
}

func uploadCSV(t *testing.T, st storage.ObjectStorage, key, content string) {
	t.Helper()
	if err := st.Upload(context.Background(), key, strings.NewReader(content), int64(len(content)), "text/csv"); err != nil {
		t.Fatalf("failed to upload test file: %v", err)
	}
}

func seedJob(t *testing.T, jobs *repository.ImportJobRepository, job *domain.ImportJob) {
	t.Helper()
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("failed to create test job: %v", err)
	}
}
