package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteMarkdown writes content to dir/name, creating dir when needed, and
// returns the written path.
func WriteMarkdown(dir, name, content string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("file name is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file %s: %w", path, err)
	}
	return path, nil
}
