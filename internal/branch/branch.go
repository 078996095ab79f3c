// Package branch derives the human-meaningful source branch from raw ref data.
package branch

import "strings"

const (
	headsPrefix = "refs/heads/"
	tagsPrefix  = "refs/tags/"
	pullPrefix  = "refs/pull/"
)

// Resolve returns the source branch for a run.
// A pull request head ref wins over the synthetic merge ref the run was triggered with.
// Branch and tag refs are stripped of their prefix; pull request refs and anything
// unrecognized are returned unchanged.
func Resolve(ref, pullRequestHeadRef string) string {
	if pullRequestHeadRef != "" {
		return pullRequestHeadRef
	}
	switch {
	case strings.HasPrefix(ref, headsPrefix):
		return strings.TrimPrefix(ref, headsPrefix)
	case strings.HasPrefix(ref, tagsPrefix):
		return strings.TrimPrefix(ref, tagsPrefix)
	case strings.HasPrefix(ref, pullPrefix):
		// refs/pull/N/merge already identifies the PR uniquely.
		return ref
	default:
		return ref
	}
}
