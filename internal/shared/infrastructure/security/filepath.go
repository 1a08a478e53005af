// Package security validates operator-supplied file paths before they are read.
package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileTooLarge is returned when a file exceeds the caller's limit.
var ErrFileTooLarge = errors.New("file too large")

// forbiddenChars are shell metacharacters never expected in a payload path.
var forbiddenChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r"}

// ValidateFilePath cleans path, makes it absolute and resolves symlinks.
// A path that does not exist yet is returned cleaned.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("file path cannot be empty")
	}
	for _, char := range forbiddenChars {
		if strings.Contains(path, char) {
			return "", fmt.Errorf("file path contains forbidden character %q: %s", char, path)
		}
	}

	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cleanPath, nil
		}
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	return resolved, nil
}

// ReadFileLimit reads a validated regular file of at most limit bytes.
func ReadFileLimit(path string, limit int64) ([]byte, error) {
	cleanPath, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - path is validated above
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), limit)
	}

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, path, limit)
	}
	return data, nil
}
