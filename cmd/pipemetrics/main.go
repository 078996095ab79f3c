package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/waabox/pipemetrics/internal/config"
	"github.com/waabox/pipemetrics/internal/delivery"
	"github.com/waabox/pipemetrics/internal/domain"
	"github.com/waabox/pipemetrics/internal/git"
	"github.com/waabox/pipemetrics/internal/logging"
	"github.com/waabox/pipemetrics/internal/provider"
	githubprovider "github.com/waabox/pipemetrics/internal/provider/github"
	gitlabprovider "github.com/waabox/pipemetrics/internal/provider/gitlab"
	"github.com/waabox/pipemetrics/internal/report"
	"github.com/waabox/pipemetrics/internal/tui"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	// .env must be loaded before flags read their environment fallbacks.
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "pipemetrics: loading .env: %v\n", err)
		os.Exit(1)
	}
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pipemetrics: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "pipemetrics"
	app.Usage = "publish normalized status and timing metrics for a CI pipeline run"
	app.Version = version
	app.Flags = commonFlags()
	app.Action = runReport
	app.Commands = []cli.Command{
		{
			Name:  "watch",
			Usage: "follow a run until it finishes, optionally reporting it at the end",
			Flags: append(commonFlags(),
				cli.DurationFlag{
					Name:  "interval",
					Usage: "polling interval",
					Value: tui.DefaultInterval,
				},
				cli.BoolFlag{
					Name:  "report",
					Usage: "deliver the final record once the run has finished",
				},
			),
			Action: runWatch,
		},
	}
	return app
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "run-id",
			Usage:  "id of the run to report on; defaults to the current run",
			EnvVar: "PIPEMETRICS_RUN_ID",
		},
		cli.StringFlag{
			Name:   "context-run-id",
			Usage:  "id of the run this process executes in",
			EnvVar: "GITHUB_RUN_ID, CI_PIPELINE_ID",
		},
		cli.StringFlag{
			Name:   "run-attempt",
			Usage:  "attempt of the current run",
			EnvVar: "GITHUB_RUN_ATTEMPT",
		},
		cli.StringFlag{
			Name:   "job-name",
			Usage:  "display name of the job running the reporter as the jobs API reports it, excluded from inline reports; GITHUB_JOB is the job key, so set PIPEMETRICS_JOB_NAME for jobs with a name: or a matrix",
			EnvVar: "PIPEMETRICS_JOB_NAME, GITHUB_JOB, CI_JOB_NAME",
		},
		cli.StringFlag{
			Name:   "runner-name",
			Usage:  "runner executing the reporter, used to tell same-named jobs apart",
			EnvVar: "RUNNER_NAME, CI_RUNNER_DESCRIPTION",
		},
		cli.StringFlag{
			Name:   "repository",
			Usage:  "owner/name; detected from the origin remote when empty",
			EnvVar: "GITHUB_REPOSITORY, CI_PROJECT_PATH",
		},
		cli.StringFlag{
			Name:   "ref",
			Usage:  "git ref the current run was triggered for",
			EnvVar: "GITHUB_REF, CI_COMMIT_REF_NAME",
		},
		cli.StringFlag{
			Name:   "head-ref",
			Usage:  "source branch of the pull request, if any",
			EnvVar: "GITHUB_HEAD_REF, CI_MERGE_REQUEST_SOURCE_BRANCH_NAME",
		},
		cli.StringFlag{
			Name:   "provider",
			Usage:  "github or gitlab",
			EnvVar: "PIPEMETRICS_PROVIDER",
		},
		cli.StringFlag{
			Name:  "endpoint",
			Usage: "ingestion endpoint URL (env PIPEMETRICS_ENDPOINT)",
		},
		cli.StringFlag{
			Name:  "api-key",
			Usage: "ingestion API key (env PIPEMETRICS_API_KEY)",
		},
		cli.StringFlag{
			Name:   "timeout",
			Usage:  "delivery timeout, e.g. 10s",
			EnvVar: "PIPEMETRICS_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "config",
			Usage:  "path to a TOML or YAML config file",
			Value:  config.DefaultConfigPath(),
			EnvVar: "PIPEMETRICS_CONFIG",
		},
		cli.BoolFlag{
			Name:   "debug",
			Usage:  "verbose logging",
			EnvVar: "RUNNER_DEBUG",
		},
		cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the record to stdout instead of delivering it",
		},
		cli.StringFlag{
			Name:   "output-file",
			Usage:  "write PIPELINE_* outputs to this file in dotenv format",
			EnvVar: "PIPEMETRICS_OUTPUT_FILE",
		},
	}
}

// invocation is everything a command needs, resolved from flags, config and environment.
type invocation struct {
	log       *slog.Logger
	reporter  *report.Reporter
	req       report.Request
	publisher report.Publisher
}

func setup(c *cli.Context, logOut io.Writer, needPublisher bool) (*invocation, error) {
	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if v := c.String("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v := c.String("api-key"); v != "" {
		cfg.APIKey = v
	}
	if v := c.String("timeout"); v != "" {
		cfg.Timeout = v
	}

	opts := logging.Options{Debug: c.Bool("debug") || cfg.Debug}
	if logging.InActions() {
		opts.Annotations = os.Stdout
	}
	log := logging.New(logOut, opts)

	req := report.Request{
		RunID:        c.String("run-id"),
		ContextRunID: c.String("context-run-id"),
		RunAttempt:   c.String("run-attempt"),
		Repository:   c.String("repository"),
		Ref:          c.String("ref"),
		HeadRef:      c.String("head-ref"),
		JobName:      c.String("job-name"),
		RunnerName:   c.String("runner-name"),
	}

	var remoteURL string
	if cwd, err := os.Getwd(); err == nil {
		if req.Repository == "" {
			if repo, err := git.DetectRepository(cwd); err == nil {
				req.Repository = repo.FullName()
				remoteURL = repo.RemoteURL
			} else {
				log.Debug("repository not detected from git remote", "error", err)
			}
		}
		if req.Ref == "" {
			if ref, err := git.CurrentRef(cwd); err == nil {
				req.Ref = ref
			}
		}
	}

	runProvider, err := selectProvider(c, cfg, remoteURL)
	if err != nil {
		return nil, err
	}

	var publisher report.Publisher
	if needPublisher {
		if c.Bool("dry-run") {
			publisher = report.JSONWriter{W: os.Stdout}
		} else {
			if err := delivery.ValidateEndpoint(cfg.Endpoint); err != nil {
				return nil, err
			}
			timeout, err := cfg.TimeoutOrDefault()
			if err != nil {
				return nil, &domain.InputError{Field: "timeout", Reason: err.Error()}
			}
			publisher = delivery.NewClient(cfg.Endpoint, cfg.APIKey, timeout)
		}
	}

	reporter := &report.Reporter{
		Provider:  runProvider,
		Publisher: publisher,
		Log:       log,
		Now:       time.Now,
	}
	return &invocation{log: log, reporter: reporter, req: req, publisher: publisher}, nil
}

// selectProvider resolves the provider from, in order: the flag, the config file, the remote
// host of a detected repository, the GitLab CI environment, and finally GitHub.
func selectProvider(c *cli.Context, cfg config.Config, remoteURL string) (domain.RunProvider, error) {
	reg := provider.NewRegistry()
	reg.Register("github", "github.com", githubprovider.NewAdapter(cfg.GitHub.Token, cfg.GitHub.URL))
	reg.Register("gitlab", gitLabHost(cfg.GitLab.URL), gitlabprovider.NewAdapter(cfg.GitLab.Token, cfg.GitLab.URL))

	name := c.String("provider")
	if name == "" {
		name = cfg.Provider
	}
	if name == "" && remoteURL != "" {
		if p, err := reg.Detect(remoteURL); err == nil {
			return p, nil
		}
	}
	if name == "" && os.Getenv("GITLAB_CI") == "true" {
		name = "gitlab"
	}
	if name == "" {
		name = cfg.ProviderOrDefault()
	}
	p, err := reg.Lookup(name)
	if err != nil {
		return nil, &domain.InputError{Field: "provider", Reason: err.Error()}
	}
	return p, nil
}

// gitLabHost returns the host of a self-hosted GitLab URL, or "gitlab" to match any GitLab remote.
func gitLabHost(baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "gitlab"
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runReport(c *cli.Context) error {
	inv, err := setup(c, os.Stderr, true)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	rec, err := inv.reporter.Run(ctx, inv.req)
	if err != nil {
		return err
	}
	return writeOutputs(c, inv.log, rec)
}

func runWatch(c *cli.Context) error {
	// The terminal belongs to the watch view; logs only go out when debugging.
	var logOut io.Writer = io.Discard
	if c.Bool("debug") {
		logOut = os.Stderr
	}
	inv, err := setup(c, logOut, c.Bool("report"))
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	rec, finished, err := tui.Run(ctx, inv.reporter, inv.req, c.Duration("interval"))
	if err != nil {
		return err
	}
	if !finished {
		if inv.publisher != nil {
			fmt.Fprintln(os.Stderr, "pipemetrics: run did not finish while watching; nothing was reported")
		}
		return nil
	}
	if inv.publisher != nil {
		if err := inv.publisher.Deliver(ctx, rec); err != nil {
			return err
		}
		inv.log.Info("published metrics", "repository", rec.Repository, "run_id", rec.RunID, "status", rec.Status)
	}
	return writeOutputs(c, inv.log, rec)
}

func writeOutputs(c *cli.Context, log *slog.Logger, rec domain.PipelineMetricsRecord) error {
	path := c.String("output-file")
	if path == "" {
		return nil
	}
	if err := report.WriteOutputs(path, rec); err != nil {
		return err
	}
	log.Debug("wrote outputs", "path", path)
	return nil
}
