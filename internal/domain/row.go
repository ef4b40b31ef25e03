package domain

// Row is a raw CSV data row keyed by lower-cased header column name.
// Values are unvalidated strings; a Row never crosses the formatting
// boundary into storage.
type Row map[string]string

// Chunk is a bounded, ordered batch of rows assigned to one worker.
// It carries no identity beyond its contents; JobID names the owning
// import job without owning its lifecycle.
type Chunk struct {
	JobID string
	Rows  []Row
}
