package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/waabox/pipemetrics/internal/domain"
)

// Registry maps provider names and remote URL hosts to RunProvider implementations.
type Registry struct {
	entries []entry
}

type entry struct {
	name     string
	host     string
	provider domain.RunProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register associates a provider with its name (e.g., "github") and a host pattern
// (e.g., "github.com"). Later registrations for the same name take precedence in Lookup;
// Detect tries hosts in registration order.
func (r *Registry) Register(name string, host string, p domain.RunProvider) {
	r.entries = append(r.entries, entry{name: name, host: host, provider: p})
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (domain.RunProvider, error) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; e.name == name {
			return e.provider, nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(r.Names(), ", "))
}

// Detect returns the first registered provider whose host pattern appears in the host of the
// given remote URL. Owner and repository names are never matched.
// Returns an error if no matching provider is registered.
func (r *Registry) Detect(remoteURL string) (domain.RunProvider, error) {
	host := remoteHost(remoteURL)
	for _, e := range r.entries {
		if e.host != "" && host != "" && strings.Contains(host, e.host) {
			return e.provider, nil
		}
	}
	return nil, fmt.Errorf("no provider found for remote: %s", remoteURL)
}

// remoteHost extracts the host from an HTTPS or SCP-style SSH remote URL.
func remoteHost(remoteURL string) string {
	if rest, ok := strings.CutPrefix(remoteURL, "git@"); ok {
		host, _, _ := strings.Cut(rest, ":")
		return host
	}
	u, err := url.Parse(remoteURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Names lists registered provider names without duplicates, in registration order.
func (r *Registry) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for _, e := range r.entries {
		if n := e.name; !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}
