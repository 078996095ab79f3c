package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CurrentRef returns the symbolic ref HEAD points at (e.g. "refs/heads/main").
// A detached HEAD yields an empty string and no error.
func CurrentRef(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
	if err != nil {
		return "", fmt.Errorf("could not read .git/HEAD: %w", err)
	}
	line := strings.TrimSpace(string(data))
	if ref, ok := strings.CutPrefix(line, "ref:"); ok {
		return strings.TrimSpace(ref), nil
	}
	return "", nil
}
