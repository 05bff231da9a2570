// Package cli implements the persterm command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/g960059/persterm/internal/app"
	"github.com/g960059/persterm/internal/config"
	"github.com/g960059/persterm/internal/db"
	"github.com/g960059/persterm/internal/logging"
	"github.com/g960059/persterm/internal/metrics"
	"github.com/g960059/persterm/internal/notify"
	"github.com/g960059/persterm/internal/target"
	"github.com/g960059/persterm/internal/terminal"
)

// Exit codes returned by Runner.Run.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// HostFactory builds the terminal host for a command invocation.
type HostFactory func(cfg config.Config, logger *zap.Logger) (terminal.Host, error)

type Runner struct {
	out    io.Writer
	errOut io.Writer

	hostFactory HostFactory
	getwd       func() (string, error)
}

func NewRunner(out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{
		out:         out,
		errOut:      errOut,
		hostFactory: DefaultHost,
		getwd:       os.Getwd,
	}
}

// WithHostFactory replaces how hosts are built.
func (r *Runner) WithHostFactory(f HostFactory) *Runner {
	r.hostFactory = f
	return r
}

// usageError marks errors that should exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitError carries a non-zero status without printing anything further.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (r *Runner) Run(ctx context.Context, args []string) int {
	root := r.rootCmd()
	root.SetArgs(args)
	root.SetOut(r.out)
	root.SetErr(r.errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) || isCobraUsageErr(err) {
		return exitUsage
	}
	return exitFailure
}

func isCobraUsageErr(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "flag needs an argument") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "arg(s)")
}

type globalFlags struct {
	workspace string
	settings  string
	host      string
	logLevel  string
	dryRun    bool
}

func (r *Runner) rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "persterm",
		Short: "Create named, coloured terminal sessions and run their startup commands",
		Long: `persterm reads terminal definitions from a settings file and makes sure a
session exists for each one, running the configured commands once per process.

Commands matching the built-in denylist (rm -rf, sudo, ssh, git push --force, ...)
or a prefix from userRestrictedCommands are never sent to a session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.workspace, "workspace", "", "workspace root (default: $PERSTERM_WORKSPACE_ROOT or the current directory)")
	pf.StringVar(&flags.settings, "settings", "", "settings file (default: <workspace>/"+config.DefaultSettingsFile+")")
	pf.StringVar(&flags.host, "host", "", "terminal host: tmux, pty or memory")
	pf.StringVar(&flags.logLevel, "log-level", "", "diagnostic log level")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "use an in-memory host; nothing is started")

	root.AddCommand(
		r.upCmd(flags),
		r.watchCmd(flags),
		r.checkCmd(flags),
		r.sessionsCmd(flags),
		r.historyCmd(flags),
	)
	return root
}

// env is everything one command invocation needs.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	settings config.SettingsProvider
	host     terminal.Host
	journal  *db.Store
	metrics  *metrics.Metrics
	notifier notify.Notifier
	app      *app.App
}

func (e *env) close() {
	if e.journal != nil {
		_ = e.journal.Close()
	}
	_ = e.logger.Sync()
}

func (r *Runner) loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, usageError{err}
	}
	if flags.workspace != "" {
		cfg.WorkspaceRoot = flags.workspace
	}
	if cfg.WorkspaceRoot == "" {
		if wd, err := r.getwd(); err == nil {
			cfg.WorkspaceRoot = wd
		}
	}
	if flags.settings != "" {
		cfg.SettingsPath = flags.settings
	}
	if flags.host != "" {
		cfg.Host = config.HostKind(flags.host)
	}
	if flags.dryRun {
		cfg.Host = config.HostMemory
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, usageError{err}
	}
	return cfg, nil
}

// newEnv builds the dependencies of one command. The journal is opened only
// when withJournal is set; failing to open it is not fatal.
func (r *Runner) newEnv(ctx context.Context, flags *globalFlags, withJournal bool) (*env, error) {
	cfg, err := r.loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, usageError{fmt.Errorf("log level: %w", err)}
	}
	host, err := r.hostFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:      cfg,
		logger:   logger,
		settings: config.NewFileSettings(cfg.ResolvedSettingsPath()),
		host:     host,
		metrics:  metrics.New(),
		notifier: notify.NewConsole(r.out, r.errOut),
	}
	if withJournal && cfg.JournalPath != "" && !flags.dryRun {
		store, err := db.OpenMigrated(ctx, cfg.JournalPath)
		if err != nil {
			logger.Warn("audit journal unavailable", zap.String("path", cfg.JournalPath), zap.Error(err))
		} else {
			e.journal = store
		}
	}
	e.app = app.New(app.Deps{
		Config:   cfg,
		Settings: e.settings,
		Host:     e.host,
		Notifier: e.notifier,
		Logger:   logger,
		Journal:  e.journal,
		Metrics:  e.metrics,
	})
	return e, nil
}

// DefaultHost builds the host named by cfg.Host.
func DefaultHost(cfg config.Config, logger *zap.Logger) (terminal.Host, error) {
	switch cfg.Host {
	case config.HostTmux:
		ex := target.NewExecutor(cfg)
		return terminal.NewTmuxHost(ex, target.FromConfig(cfg), cfg.WorkspaceRoot, logger.Named("tmux")), nil
	case config.HostPTY:
		return terminal.NewPTYHost(cfg.Shell, cfg.WorkspaceRoot, logger.Named("pty")), nil
	case config.HostMemory:
		return terminal.NewMemoryHost(), nil
	default:
		return nil, usageError{fmt.Errorf("unsupported host %q", cfg.Host)}
	}
}
