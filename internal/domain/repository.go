package domain

// Repository represents the git repository whose pipelines are reported.
type Repository struct {
	Owner     string
	Name      string
	RemoteURL string
}

// FullName returns the "owner/name" identifier used in published records.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}
