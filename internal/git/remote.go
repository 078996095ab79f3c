package git

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waabox/pipemetrics/internal/domain"
)

// DetectRepository reads the .git/config in the given directory and returns
// a Repository built from the origin remote URL. It is the last fallback when
// neither a flag nor the CI environment names the repository.
func DetectRepository(dir string) (domain.Repository, error) {
	configPath := filepath.Join(dir, ".git", "config")
	f, err := os.Open(configPath)
	if err != nil {
		return domain.Repository{}, fmt.Errorf("could not open .git/config: %w", err)
	}
	defer f.Close()

	var inOrigin bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == `[remote "origin"]` {
			inOrigin = true
			continue
		}
		if inOrigin && strings.HasPrefix(line, "[") {
			break
		}
		if inOrigin && strings.HasPrefix(line, "url") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return ParseRemoteURL(strings.TrimSpace(parts[1]))
			}
		}
	}
	return domain.Repository{}, errors.New("no origin remote found in .git/config")
}

// ParseRemoteURL parses a git remote URL and returns a Repository.
// Supports HTTPS (https://github.com/owner/repo.git) and SSH (git@github.com:owner/repo.git).
// Nested GitLab groups keep every leading segment in Owner.
// The RemoteURL field in the returned Repository preserves the original input URL unchanged.
func ParseRemoteURL(rawURL string) (domain.Repository, error) {
	normalized := strings.TrimSuffix(strings.TrimSpace(rawURL), ".git")

	var path string
	switch {
	case strings.HasPrefix(normalized, "git@"):
		parts := strings.SplitN(strings.TrimPrefix(normalized, "git@"), ":", 2)
		if len(parts) != 2 {
			return domain.Repository{}, fmt.Errorf("invalid SSH remote URL: %s", rawURL)
		}
		path = parts[1]
	case strings.HasPrefix(normalized, "https://") || strings.HasPrefix(normalized, "http://"):
		withoutScheme := strings.TrimPrefix(strings.TrimPrefix(normalized, "https://"), "http://")
		parts := strings.SplitN(withoutScheme, "/", 2)
		if len(parts) != 2 {
			return domain.Repository{}, fmt.Errorf("invalid HTTPS remote URL: %s", rawURL)
		}
		path = parts[1]
	default:
		return domain.Repository{}, fmt.Errorf("unsupported remote URL format: %s", rawURL)
	}

	repo, err := ParseSlug(path)
	if err != nil {
		return domain.Repository{}, fmt.Errorf("invalid remote URL path %q: %w", rawURL, err)
	}
	repo.RemoteURL = rawURL
	return repo, nil
}

// ParseSlug splits an "owner/name" repository slug, as found in GITHUB_REPOSITORY or
// CI_PROJECT_PATH, on its last slash.
func ParseSlug(slug string) (domain.Repository, error) {
	slug = strings.Trim(slug, "/")
	i := strings.LastIndex(slug, "/")
	if i <= 0 || i == len(slug)-1 {
		return domain.Repository{}, fmt.Errorf("expected owner/name, got %q", slug)
	}
	return domain.Repository{Owner: slug[:i], Name: slug[i+1:]}, nil
}
