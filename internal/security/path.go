package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilename checks that a stored filename cannot escape the media
// cache directory. Filenames are derived from content hashes or gateway
// URLs, so a traversal attempt here means a hostile payload.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	clean := filepath.Clean(name)
	if strings.Contains(clean, "..") {
		return fmt.Errorf("filename contains directory traversal: %s", name)
	}
	if filepath.IsAbs(clean) {
		return fmt.Errorf("absolute filenames not allowed: %s", name)
	}
	if strings.ContainsRune(clean, filepath.Separator) {
		return fmt.Errorf("filename must not contain path separators: %s", name)
	}

	return nil
}

// ValidatePathWithBase ensures a relative path resolves inside baseDir.
func ValidatePathWithBase(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}
	if filepath.IsAbs(clean) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	fullPath := filepath.Clean(filepath.Join(baseDir, clean))
	cleanBase := filepath.Clean(baseDir)
	if !strings.HasPrefix(fullPath, cleanBase) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}
