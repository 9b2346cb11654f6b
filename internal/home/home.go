package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the glean home directory.
	DefaultDirName = ".glean"

	// PagesDirName is the subdirectory for rasterized page images.
	PagesDirName = "pages"

	// ResultsDirName is the subdirectory for saved extraction results.
	ResultsDirName = "results"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// ProfilesFileName is the optional document-profile override file.
	ProfilesFileName = "profiles.yaml"
)

// Dir represents the glean home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.glean).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ProfilesPath returns the path to the profile override file.
func (d *Dir) ProfilesPath() string {
	return filepath.Join(d.path, ProfilesFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.PagesPath(), d.ResultsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ProfilesExist returns true if the profile override file exists.
func (d *Dir) ProfilesExist() bool {
	_, err := os.Stat(d.ProfilesPath())
	return err == nil
}

// PagesPath returns the page image cache directory.
func (d *Dir) PagesPath() string {
	return filepath.Join(d.path, PagesDirName)
}

// ResultsPath returns the saved-results directory.
func (d *Dir) ResultsPath() string {
	return filepath.Join(d.path, ResultsDirName)
}

// DocumentPagesDir returns the page cache directory for one document.
func (d *Dir) DocumentPagesDir(docID string) string {
	return filepath.Join(d.PagesPath(), docID)
}

// PageImagePath returns the cached image path for a specific page.
// Page numbers are 1-indexed.
func (d *Dir) PageImagePath(docID string, pageNum int) string {
	return filepath.Join(d.DocumentPagesDir(docID), fmt.Sprintf("page_%04d.png", pageNum))
}

// EnsureDocumentPagesDir creates the page cache directory for a document.
func (d *Dir) EnsureDocumentPagesDir(docID string) error {
	return os.MkdirAll(d.DocumentPagesDir(docID), 0o755)
}

// ResultPath returns the saved result path for a document.
func (d *Dir) ResultPath(docID string) string {
	return filepath.Join(d.ResultsPath(), docID+".json")
}
