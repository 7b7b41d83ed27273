package adapter

import (
	"os"
)

// FileSystem defines an interface for file system operations to enable mocking
//
//go:generate mockgen -source=filesystem.go -destination=../mocks/filesystem.go -package=mocks -mock_names=FileSystem=MockFileSystem
type FileSystem interface {
	// ReadFile reads the named file and returns its contents
	ReadFile(name string) ([]byte, error)

	// Stat returns the FileInfo describing the named file
	Stat(name string) (os.FileInfo, error)
}

// RealFileSystem implements FileSystem using the standard os package
type RealFileSystem struct{}

// NewFileSystem creates a new real file system
func NewFileSystem() FileSystem {
	return &RealFileSystem{}
}

// ReadFile reads the named file and returns its contents
func (fs *RealFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name) //nolint:gosec,G304
}

// Stat returns the FileInfo describing the named file
func (fs *RealFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}
