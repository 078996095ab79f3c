package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/provider"
)

type fakeProvider struct{ name string }

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) GetRun(_ context.Context, _ domain.Repository, _ int64) (domain.RawPipelineRun, error) {
	return domain.RawPipelineRun{}, nil
}
func (f *fakeProvider) ListJobs(_ context.Context, _ domain.Repository, _ int64, _ int) ([]domain.RawJob, error) {
	return nil, nil
}

func TestRegistry_LooksUpByName(t *testing.T) {
	gh := &fakeProvider{name: "github"}
	gl := &fakeProvider{name: "gitlab"}

	reg := provider.NewRegistry()
	reg.Register("github", "github.com", gh)
	reg.Register("gitlab", "gitlab.com", gl)

	p, err := reg.Lookup("gitlab")
	require.NoError(t, err)
	assert.Same(t, gl, p)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	first := &fakeProvider{name: "gitlab"}
	selfHosted := &fakeProvider{name: "gitlab"}

	reg := provider.NewRegistry()
	reg.Register("gitlab", "gitlab.com", first)
	reg.Register("gitlab", "gitlab.mycompany.com", selfHosted)

	p, err := reg.Lookup("gitlab")
	require.NoError(t, err)
	assert.Same(t, selfHosted, p)
	assert.Equal(t, []string{"gitlab"}, reg.Names())
}

func TestRegistry_UnknownNameListsKnownProviders(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("github", "github.com", &fakeProvider{name: "github"})
	reg.Register("gitlab", "gitlab", &fakeProvider{name: "gitlab"})

	_, err := reg.Lookup("bitbucket")
	require.Error(t, err)
	assert.Equal(t, `unknown provider "bitbucket" (known: github, gitlab)`, err.Error())
}

func TestRegistry_DetectsGitHub(t *testing.T) {
	gh := &fakeProvider{name: "github"}
	gl := &fakeProvider{name: "gitlab"}

	reg := provider.NewRegistry()
	reg.Register("github", "github.com", gh)
	reg.Register("gitlab", "gitlab.com", gl)

	p, err := reg.Detect("https://github.com/waabox/pipemetrics.git")
	require.NoError(t, err)
	assert.Same(t, gh, p)

	p, err = reg.Detect("git@gitlab.com:mygroup/myproject.git")
	require.NoError(t, err)
	assert.Same(t, gl, p)
}

func TestRegistry_DetectMatchesHostNotPath(t *testing.T) {
	gh := &fakeProvider{name: "github"}
	gl := &fakeProvider{name: "gitlab"}

	reg := provider.NewRegistry()
	reg.Register("github", "github.com", gh)
	reg.Register("gitlab", "gitlab", gl)

	for _, remote := range []string{
		"https://github.com/gitlab-tools/widget.git",
		"git@github.com:waabox/gitlab-mirror.git",
	} {
		p, err := reg.Detect(remote)
		require.NoError(t, err, remote)
		assert.Same(t, gh, p, "remote %s", remote)
	}

	p, err := reg.Detect("https://gitlab.mycompany.com/team/project.git")
	require.NoError(t, err)
	assert.Same(t, gl, p)
}

func TestRegistry_DetectsSelfHostedGitLab(t *testing.T) {
	gl := &fakeProvider{name: "gitlab"}

	reg := provider.NewRegistry()
	reg.Register("gitlab", "gitlab.mycompany.com", gl)

	p, err := reg.Detect("https://gitlab.mycompany.com/team/project.git")
	require.NoError(t, err)
	assert.Same(t, gl, p)
}

func TestRegistry_ErrorOnUnknownHost(t *testing.T) {
	reg := provider.NewRegistry()
	reg.Register("github", "github.com", &fakeProvider{name: "github"})

	_, err := reg.Detect("https://bitbucket.org/github.com/repo.git")
	assert.Error(t, err)
}
