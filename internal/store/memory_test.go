package store

import (
	"testing"
)

// initMemoryTestDB returns a fresh in-memory store for each test
func initMemoryTestDB(t *testing.T) Store {
	return NewMemoryStore()
}

// cleanupMemoryTestDB is a no-op: every test gets a fresh store
func cleanupMemoryTestDB(t *testing.T) {
}

// TestMemoryStore runs all store tests against the in-memory implementation
func TestMemoryStore(t *testing.T) {
	RunStoreTests(t, initMemoryTestDB, cleanupMemoryTestDB)
}
